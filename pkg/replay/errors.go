package replay

import "fmt"

// StateError reports a read against a register or memory address the
// cursor has no recorded value for (spec §7, StateError). Recovery is
// never fatal: the dispatcher turns this into RSP's E14/`xx` conventions.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("unavailable: %s", e.Reason)
}

// BoundaryError reports Advance past the last event or Retreat past the
// first (spec §7, BoundaryError). Recovery is a stop reply, not a fault;
// the cursor stays pinned at the boundary it hit.
type BoundaryError struct {
	AtEnd   bool
	AtStart bool
}

func (e *BoundaryError) Error() string {
	if e.AtEnd {
		return "cursor already at trace end"
	}
	return "cursor already at trace start"
}
