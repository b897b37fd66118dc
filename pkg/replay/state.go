// Package replay implements the CPU state cursor, breakpoint table, and run
// controller that let an RSP session answer register/memory queries and
// stepping/continue requests by walking a trace.Sequence forward and
// backward instead of executing anything (spec §4.B-D).
//
// The reconstruction here is deliberately the mirror image of
// original_source/rsp_server's CpuState.update: that Python computes the
// reverse delta live, immediately before applying each forward write, by
// reading the register/memory value about to be overwritten. rspd's trace
// parsers do that same computation once, at parse time, and bake the result
// into trace.RegWrite.OldValue / trace.MemWrite.OldBytes — State only ever
// applies or unapplies a fully-formed Event, in either direction.
package replay

import (
	"github.com/tracedbg/rspd/pkg/arch"
	"github.com/tracedbg/rspd/pkg/trace"
)

// State is a CPU state cursor over a trace.Sequence: the architectural
// register file and a sparse memory overlay, both derived entirely from
// which events have been applied, plus an ephemeral shadow layer for
// debugger-issued writes (spec §4.B, I1-I3).
type State struct {
	cap arch.Capability
	seq trace.Sequence

	cursor int // index of the last applied event; -1 before the first

	regs     map[int]uint64
	regKnown map[int]bool
	shadow   map[int]uint64 // debugger P/G writes, cleared on every motion
	mem      map[uint64]byte
}

// NewState constructs a cursor positioned before the first event.
func NewState(cap arch.Capability, seq trace.Sequence) (*State, error) {
	s := &State{
		cap:      cap,
		seq:      seq,
		cursor:   -1,
		regs:     make(map[int]uint64),
		regKnown: make(map[int]bool),
		shadow:   make(map[int]uint64),
		mem:      make(map[uint64]byte),
	}
	if seq.Len() > 0 {
		first, err := seq.Event(0)
		if err != nil {
			return nil, err
		}
		// The PC the very first instruction retires from is well-defined
		// even though nothing has been "written" yet; every other
		// register stays unknown until its first write.
		s.regs[cap.PCRegnum()] = first.PCBefore
		s.regKnown[cap.PCRegnum()] = true
	}
	return s, nil
}

// AtStart reports whether the cursor is before the first event.
func (s *State) AtStart() bool { return s.cursor < 0 }

// AtEnd reports whether the cursor is at the last event, i.e. Advance would
// fail.
func (s *State) AtEnd() bool { return s.cursor >= s.seq.Len()-1 }

// Cursor returns the index of the last applied event, or -1 before the
// first event has been applied.
func (s *State) Cursor() int { return s.cursor }

// PC returns the current program counter. It is always available once a
// trace has at least one event.
func (s *State) PC() uint64 {
	v, _ := s.ReadReg(s.cap.PCRegnum())
	return v
}

// Advance applies event[cursor+1] and moves the cursor forward one step
// (spec §4.B advance, I1: registers/memory always reflect exactly the
// events applied so far). Debugger shadow writes are discarded, matching
// the decision that a shadow write is visible only until the next motion.
func (s *State) Advance() error {
	if s.AtEnd() {
		return &BoundaryError{AtEnd: true}
	}
	ev, err := s.seq.Event(s.cursor + 1)
	if err != nil {
		return err
	}
	s.applyForward(ev)
	s.cursor++
	s.clearShadow()
	return nil
}

// Retreat unapplies event[cursor] and moves the cursor back one step (spec
// §4.B retreat, I1). Memory reads are never unobserved (monotone-read
// semantics, per the Open Questions decision in SPEC_FULL.md): only writes
// are rolled back.
func (s *State) Retreat() error {
	if s.AtStart() {
		return &BoundaryError{AtStart: true}
	}
	ev, err := s.seq.Event(s.cursor)
	if err != nil {
		return err
	}
	s.applyBackward(ev)
	s.cursor--
	s.clearShadow()
	return nil
}

func (s *State) applyForward(ev trace.Event) {
	for _, rw := range ev.RegWrites {
		s.regs[rw.Reg] = rw.NewValue
		s.regKnown[rw.Reg] = true
	}
	for _, mw := range ev.MemWrites {
		for i, b := range mw.NewBytes {
			s.mem[mw.Addr+uint64(i)] = b
		}
	}
	for _, mr := range ev.MemReads {
		for i, b := range mr.Bytes {
			if _, known := s.mem[mr.Addr+uint64(i)]; !known {
				s.mem[mr.Addr+uint64(i)] = b
			}
		}
	}
}

func (s *State) applyBackward(ev trace.Event) {
	for _, rw := range ev.RegWrites {
		switch {
		case rw.OldValue != nil:
			s.regs[rw.Reg] = *rw.OldValue
			s.regKnown[rw.Reg] = true
		case rw.Reg == s.cap.PCRegnum():
			// PC has no OldValue for the trace's first event, but it is
			// never actually unknown: the event's own PCBefore is the
			// value the program counter held going in (see NewState).
			s.regs[rw.Reg] = ev.PCBefore
			s.regKnown[rw.Reg] = true
		default:
			delete(s.regs, rw.Reg)
			s.regKnown[rw.Reg] = false
		}
	}
	for _, mw := range ev.MemWrites {
		if mw.OldBytes != nil {
			for i, b := range mw.OldBytes {
				s.mem[mw.Addr+uint64(i)] = b
			}
		} else {
			for i := range mw.NewBytes {
				delete(s.mem, mw.Addr+uint64(i))
			}
		}
	}
	// MemReads are intentionally left untouched: an observation does not
	// un-observe when the cursor moves back past it.
}

func (s *State) clearShadow() {
	for k := range s.shadow {
		delete(s.shadow, k)
	}
}

// ReadReg returns a register's current value and whether it is known. A
// pending shadow write (WriteReg since the last motion) takes precedence
// over the trace-derived value.
func (s *State) ReadReg(regnum int) (uint64, bool) {
	if v, ok := s.shadow[regnum]; ok {
		return v, true
	}
	if s.regKnown[regnum] {
		return s.regs[regnum], true
	}
	return 0, false
}

// WriteReg records a debugger-issued register write. It is visible to
// ReadReg only until the next Advance/Retreat and is never written back
// into the trace (spec Non-goal: "write-through of debugger-issued
// register writes to the trace").
func (s *State) WriteReg(regnum int, value uint64) {
	s.shadow[regnum] = value
}

// MemByte is one byte of a ReadMem result, with its availability.
type MemByte struct {
	Value     byte
	Available bool
}

// ReadMem returns length bytes starting at addr. Bytes the trace has never
// established a value for come back with Available=false; the dispatcher
// renders those as RSP's `xx` placeholder, or an E14 StateError if none of
// the requested range is available (spec §4.F, §7).
func (s *State) ReadMem(addr uint64, length int) []MemByte {
	out := make([]MemByte, length)
	for i := 0; i < length; i++ {
		b, ok := s.mem[addr+uint64(i)]
		out[i] = MemByte{Value: b, Available: ok}
	}
	return out
}

// WriteMem records a debugger-issued memory write. Unlike register shadow
// writes this persists across motions: spec §4.B treats the memory overlay
// as a single mutable surface regardless of who wrote to it, since a
// replayed program never runs again to observe the discrepancy.
func (s *State) WriteMem(addr uint64, data []byte) {
	for i, b := range data {
		s.mem[addr+uint64(i)] = b
	}
}
