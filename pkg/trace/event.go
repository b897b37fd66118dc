// Package trace defines the normalized trace event model that the replay
// core consumes (spec §3, §4.A) and the parser/registry machinery that
// turns a concrete simulator log into a trace.Sequence.
//
// Everything in this package is immutable once produced by a Parser: the
// core never mutates a trace, only its own overlay of the state the trace
// implies (see pkg/replay).
package trace

import "fmt"

// RegWrite records one register write retired by an instruction.
//
// OldValue is nil when the parser could not determine the prior value
// (spec §3: "old_value may be absent for the initial event, in which case
// rewinding to before index 0 is undefined"). Both bundled parsers leave it
// nil for the first write of each register in the trace.
type RegWrite struct {
	Reg      int
	OldValue *uint64
	NewValue uint64
}

// MemWrite records one memory write retired by an instruction.
//
// OldBytes is nil when the format doesn't carry a pre-image; retreating
// across such an event leaves the affected range unavailable rather than
// stale (spec §9).
type MemWrite struct {
	Addr     uint64
	OldBytes []byte // nil if unknown
	NewBytes []byte
}

// MemRead records a memory location observed (not written) during
// retirement. Reads are monotone: retreating never un-observes them.
type MemRead struct {
	Addr  uint64
	Bytes []byte
}

// Event is one retired instruction, dense and 0-indexed (spec §3).
type Event struct {
	Index      int
	PCBefore   uint64
	PCAfter    uint64
	RegWrites  []RegWrite
	MemWrites  []MemWrite
	MemReads   []MemRead
	DisasmHint string
}

// FormatError reports a trace that violates the dense-index invariant or is
// missing a field the core requires (spec §7, TraceError). It is fatal at
// session construction.
type FormatError struct {
	Index  int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed trace at event %d: %s", e.Index, e.Reason)
}
