package replay

import "context"

// StopReason enumerates why a run controller motion stopped. pkg/rsp
// reports every reason as T05 (trace boundaries with a reason key) except
// StopSignal, an interrupted motion, which it reports as T02.
type StopReason int

const (
	StopComplete StopReason = iota
	StopBreakpoint
	StopTraceEnd
	StopTraceStart
	StopSignal
)

// StopResult is the outcome of a Step/Continue call.
type StopResult struct {
	Reason     StopReason
	PC         uint64
	Breakpoint *Breakpoint // set only when Reason == StopBreakpoint
}

// Controller drives a State's cursor for the stepping and continue
// commands of spec §4.D. It never mutates the trace, only the cursor
// position and the breakpoint table it is handed.
type Controller struct {
	state *State
	bpt   *BreakpointTable
}

// NewController pairs a cursor with the breakpoint table continue should
// respect.
func NewController(state *State, bpt *BreakpointTable) *Controller {
	return &Controller{state: state, bpt: bpt}
}

// StepForward advances exactly one event, ignoring breakpoints (gdb's `s`
// always executes at least one step even if standing on a breakpoint).
func (c *Controller) StepForward() StopResult {
	if c.state.AtEnd() {
		return StopResult{Reason: StopTraceEnd, PC: c.state.PC()}
	}
	_ = c.state.Advance()
	return StopResult{Reason: StopComplete, PC: c.state.PC()}
}

// StepBackward retreats exactly one event (gdb's `bs`).
func (c *Controller) StepBackward() StopResult {
	if c.state.AtStart() {
		return StopResult{Reason: StopTraceStart, PC: c.state.PC()}
	}
	_ = c.state.Retreat()
	return StopResult{Reason: StopComplete, PC: c.state.PC()}
}

// ContinueForward advances until a breakpoint address is retired, the
// trace ends, or ctx is canceled by an inbound Ctrl-C byte (spec §5: the
// only way to interrupt a run in progress is between individual motions).
//
// Every iteration performs at least one Advance before checking the
// breakpoint table, so continuing from a PC that already sits on a
// breakpoint always makes forward progress before it can stop there again
// (spec §4.D, "no re-entry at the same breakpoint without an intervening
// step").
func (c *Controller) ContinueForward(ctx context.Context) StopResult {
	for {
		select {
		case <-ctx.Done():
			return StopResult{Reason: StopSignal, PC: c.state.PC()}
		default:
		}
		if c.state.AtEnd() {
			return StopResult{Reason: StopTraceEnd, PC: c.state.PC()}
		}
		_ = c.state.Advance()
		pc := c.state.PC()
		if bp, ok := c.bpt.Contains(pc); ok {
			b := bp
			return StopResult{Reason: StopBreakpoint, PC: pc, Breakpoint: &b}
		}
	}
}

// ContinueBackward is ContinueForward's mirror for gdb's `bc`.
func (c *Controller) ContinueBackward(ctx context.Context) StopResult {
	for {
		select {
		case <-ctx.Done():
			return StopResult{Reason: StopSignal, PC: c.state.PC()}
		default:
		}
		if c.state.AtStart() {
			return StopResult{Reason: StopTraceStart, PC: c.state.PC()}
		}
		_ = c.state.Retreat()
		pc := c.state.PC()
		if bp, ok := c.bpt.Contains(pc); ok {
			b := bp
			return StopResult{Reason: StopBreakpoint, PC: pc, Breakpoint: &b}
		}
	}
}
