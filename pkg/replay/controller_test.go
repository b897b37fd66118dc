package replay_test

import (
	"context"
	"testing"

	"github.com/tracedbg/rspd/pkg/replay"
	"github.com/tracedbg/rspd/pkg/trace"
)

func chainedTrace(pcs ...uint64) trace.Slice {
	seq := make(trace.Slice, 0, len(pcs)-1)
	for i := 0; i+1 < len(pcs); i++ {
		seq = append(seq, trace.Event{
			Index: i, PCBefore: pcs[i], PCAfter: pcs[i+1],
			RegWrites: []trace.RegWrite{{Reg: pcReg, OldValue: u64(pcs[i]), NewValue: pcs[i+1]}},
		})
	}
	// first event has no prior PC to record, as with the bundled parsers;
	// Retreat past it restores PC from PCBefore instead.
	if len(seq) > 0 {
		seq[0].RegWrites[0].OldValue = nil
	}
	return seq
}

func TestContinueForwardStopsAtBreakpoint(t *testing.T) {
	seq := chainedTrace(0x100, 0x104, 0x108, 0x10c, 0x110)
	s, _ := replay.NewState(testCapability(), seq)
	bpt := replay.NewBreakpointTable()
	bpt.Insert(0x108, replay.Software, 4)

	c := replay.NewController(s, bpt)
	res := c.ContinueForward(context.Background())
	if res.Reason != replay.StopBreakpoint || res.PC != 0x108 {
		t.Fatalf("got %+v; want breakpoint stop at 0x108", res)
	}
}

func TestContinueForwardNoReentryWithoutProgress(t *testing.T) {
	seq := chainedTrace(0x100, 0x104, 0x108)
	s, _ := replay.NewState(testCapability(), seq)
	bpt := replay.NewBreakpointTable()
	bpt.Insert(0x100, replay.Software, 4)

	c := replay.NewController(s, bpt)
	// Starting cursor sits "before" 0x100 conceptually; ContinueForward
	// must make at least one motion, so it should not report a stop at
	// 0x100 without having moved past it first.
	res := c.ContinueForward(context.Background())
	if res.PC == 0x100 {
		t.Fatalf("continue must not stop at the starting PC without progress: %+v", res)
	}
}

func TestContinueForwardRunsToTraceEnd(t *testing.T) {
	seq := chainedTrace(0x100, 0x104, 0x108)
	s, _ := replay.NewState(testCapability(), seq)
	bpt := replay.NewBreakpointTable()

	c := replay.NewController(s, bpt)
	res := c.ContinueForward(context.Background())
	if res.Reason != replay.StopTraceEnd {
		t.Fatalf("got reason %v; want StopTraceEnd", res.Reason)
	}
	if !s.AtEnd() {
		t.Fatalf("cursor should be at end")
	}
}

func TestContinueBackwardStopsAtTraceStart(t *testing.T) {
	seq := chainedTrace(0x100, 0x104, 0x108)
	s, _ := replay.NewState(testCapability(), seq)
	s.Advance()
	s.Advance()

	bpt := replay.NewBreakpointTable()
	c := replay.NewController(s, bpt)
	res := c.ContinueBackward(context.Background())
	if res.Reason != replay.StopTraceStart {
		t.Fatalf("got reason %v; want StopTraceStart", res.Reason)
	}
	if !s.AtStart() {
		t.Fatalf("cursor should be back at start")
	}
}

func TestContinueForwardCanceledByContext(t *testing.T) {
	seq := chainedTrace(0x100, 0x104, 0x108, 0x10c)
	s, _ := replay.NewState(testCapability(), seq)
	bpt := replay.NewBreakpointTable()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := replay.NewController(s, bpt)
	res := c.ContinueForward(ctx)
	if res.Reason != replay.StopSignal {
		t.Fatalf("got reason %v; want StopSignal for a pre-canceled context", res.Reason)
	}
}

func TestStepForwardIgnoresBreakpointAtCurrentPC(t *testing.T) {
	seq := chainedTrace(0x100, 0x104)
	s, _ := replay.NewState(testCapability(), seq)
	bpt := replay.NewBreakpointTable()
	bpt.Insert(0x100, replay.Software, 4)

	c := replay.NewController(s, bpt)
	res := c.StepForward()
	if res.Reason != replay.StopComplete || res.PC != 0x104 {
		t.Fatalf("got %+v; want a single step to 0x104", res)
	}
}

func TestBreakpointTableInsertRemove(t *testing.T) {
	bpt := replay.NewBreakpointTable()
	bpt.Insert(0x200, replay.Software, 4)
	if _, ok := bpt.Contains(0x200); !ok {
		t.Fatalf("expected breakpoint at 0x200")
	}
	if !bpt.Remove(0x200, replay.Software) {
		t.Fatalf("Remove should report the breakpoint existed")
	}
	if _, ok := bpt.Contains(0x200); ok {
		t.Fatalf("breakpoint should be gone after Remove")
	}
	if bpt.Remove(0x200, replay.Software) {
		t.Fatalf("Remove should report false for an absent breakpoint")
	}
}
