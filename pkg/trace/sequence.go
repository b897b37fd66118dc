package trace

// Sequence is a finite, restartable, ordered trace with O(1) random access
// by index, the interface pkg/replay's cursor is built against (spec §6:
// "the core requires O(1) random access by index for cursor jumps").
type Sequence interface {
	Len() int
	Event(i int) (Event, error)
}

// Slice is a fully materialized Sequence. Both bundled parsers (spike,
// sifive-rtl) build one directly since they read their whole input up
// front; it is the default the core sees.
type Slice []Event

func (s Slice) Len() int { return len(s) }

func (s Slice) Event(i int) (Event, error) {
	if i < 0 || i >= len(s) {
		return Event{}, &FormatError{Index: i, Reason: "index out of range"}
	}
	return s[i], nil
}

// Validate checks the dense-index and pc-chaining invariants from spec §3
// ("events are densely indexed; event[i].pc_after == event[i+1].pc_before
// when defined"). Parsers should call this before returning a Sequence so
// that malformed traces are rejected at session construction (spec §7,
// TraceError) rather than surfacing as confusing cursor bugs later.
func Validate(seq Sequence) error {
	n := seq.Len()
	for i := 0; i < n; i++ {
		ev, err := seq.Event(i)
		if err != nil {
			return err
		}
		if ev.Index != i {
			return &FormatError{Index: i, Reason: "non-dense index"}
		}
		if i+1 < n {
			next, err := seq.Event(i + 1)
			if err != nil {
				return err
			}
			if ev.PCAfter != next.PCBefore {
				return &FormatError{Index: i, Reason: "pc_after does not chain to next pc_before"}
			}
		}
	}
	return nil
}
