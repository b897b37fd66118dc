package replay

// Kind distinguishes software from hardware breakpoints for bookkeeping
// only; the run controller treats both identically since nothing is ever
// actually executed (spec §4.C).
type Kind int

const (
	Software Kind = iota
	Hardware
)

// Breakpoint is one entry in a BreakpointTable.
type Breakpoint struct {
	Addr   uint64
	Kind   Kind
	Length int // byte length gdb sent with Z/z, informational only
}

type bpKey struct {
	addr uint64
	kind Kind
}

// BreakpointTable is the set of addresses that stop a continue (spec §4.C).
// A read/write watchpoint (Z2/Z3/Z4) is out of scope: spec.md restricts
// this to PC-based execution breakpoints (Z0/Z1).
type BreakpointTable struct {
	set map[bpKey]Breakpoint
}

// NewBreakpointTable returns an empty table.
func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{set: make(map[bpKey]Breakpoint)}
}

// Insert adds or replaces a breakpoint at addr. Reinserting the same
// (addr, kind) is idempotent, matching gdb's own retry-on-timeout behavior
// for Z packets.
func (t *BreakpointTable) Insert(addr uint64, kind Kind, length int) {
	t.set[bpKey{addr, kind}] = Breakpoint{Addr: addr, Kind: kind, Length: length}
}

// Remove deletes a breakpoint, reporting whether one was present.
func (t *BreakpointTable) Remove(addr uint64, kind Kind) bool {
	k := bpKey{addr, kind}
	if _, ok := t.set[k]; !ok {
		return false
	}
	delete(t.set, k)
	return true
}

// Contains reports whether any breakpoint, of either kind, sits at pc.
func (t *BreakpointTable) Contains(pc uint64) (Breakpoint, bool) {
	if bp, ok := t.set[bpKey{pc, Software}]; ok {
		return bp, true
	}
	if bp, ok := t.set[bpKey{pc, Hardware}]; ok {
		return bp, true
	}
	return Breakpoint{}, false
}

// Len is the number of distinct (addr, kind) breakpoints currently set.
func (t *BreakpointTable) Len() int {
	return len(t.set)
}
