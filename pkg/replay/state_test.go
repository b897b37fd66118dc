package replay_test

import (
	"testing"

	"github.com/tracedbg/rspd/pkg/arch"
	"github.com/tracedbg/rspd/pkg/replay"
	"github.com/tracedbg/rspd/pkg/trace"
)

const pcReg = 1

func testCapability() arch.Capability {
	return arch.Capability{
		Name: "test",
		Registers: []arch.RegisterInfo{
			{Name: "r0", Regnum: 0, Bitsize: 64},
			{Name: "pc", Regnum: pcReg, Bitsize: 64},
		},
		PCRegister: 1,
	}
}

func u64(v uint64) *uint64 { return &v }

func sampleTrace() trace.Slice {
	return trace.Slice{
		{
			Index: 0, PCBefore: 0x1000, PCAfter: 0x1004,
			RegWrites: []trace.RegWrite{
				{Reg: 0, OldValue: nil, NewValue: 5},
				{Reg: pcReg, OldValue: nil, NewValue: 0x1004},
			},
			MemWrites: []trace.MemWrite{
				{Addr: 0x2000, OldBytes: nil, NewBytes: []byte{0xaa}},
			},
		},
		{
			Index: 1, PCBefore: 0x1004, PCAfter: 0x1008,
			RegWrites: []trace.RegWrite{
				{Reg: 0, OldValue: u64(5), NewValue: 9},
				{Reg: pcReg, OldValue: u64(0x1004), NewValue: 0x1008},
			},
			MemWrites: []trace.MemWrite{
				{Addr: 0x2000, OldBytes: []byte{0xaa}, NewBytes: []byte{0xbb}},
			},
		},
	}
}

func TestStateAdvanceRetreatIsExactInverse(t *testing.T) {
	seq := sampleTrace()
	s, err := replay.NewState(testCapability(), seq)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	if !s.AtStart() {
		t.Fatalf("expected AtStart before any Advance")
	}
	if v, ok := s.ReadReg(0); ok {
		t.Fatalf("r0 should be unknown before first event, got %d", v)
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if v, ok := s.ReadReg(0); !ok || v != 5 {
		t.Fatalf("r0 = %d, %v; want 5, true", v, ok)
	}
	if s.PC() != 0x1004 {
		t.Fatalf("PC = %#x; want 0x1004", s.PC())
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if v, ok := s.ReadReg(0); !ok || v != 9 {
		t.Fatalf("r0 = %d, %v; want 9, true", v, ok)
	}
	if !s.AtEnd() {
		t.Fatalf("expected AtEnd after consuming both events")
	}

	if err := s.Retreat(); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if v, ok := s.ReadReg(0); !ok || v != 5 {
		t.Fatalf("after retreat r0 = %d, %v; want 5, true", v, ok)
	}
	mem := s.ReadMem(0x2000, 1)
	if !mem[0].Available || mem[0].Value != 0xaa {
		t.Fatalf("mem[0x2000] = %+v; want {0xaa true}", mem[0])
	}

	if err := s.Retreat(); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if v, ok := s.ReadReg(0); ok {
		t.Fatalf("r0 should be unknown again at start, got %d", v)
	}
	if !s.AtStart() {
		t.Fatalf("expected AtStart after retreating both events")
	}
	// Unlike r0, PC is always defined: retreating past event 0 must
	// restore event 0's PCBefore, not leave PC unknown (spec scenario S2).
	if v, ok := s.ReadReg(pcReg); !ok || v != 0x1000 {
		t.Fatalf("PC after retreating to start = %d, %v; want 0x1000, true", v, ok)
	}
	if s.PC() != 0x1000 {
		t.Fatalf("PC() after retreating to start = %#x; want 0x1000", s.PC())
	}
}

// TestRetreatPastFirstEventRestoresPC guards against a regression where
// Retreat deleted the PC register instead of restoring it whenever the
// event being unapplied has a nil OldValue for PC — which both bundled
// parsers always emit for event 0.
func TestRetreatPastFirstEventRestoresPC(t *testing.T) {
	seq := sampleTrace()
	s, _ := replay.NewState(testCapability(), seq)

	before := s.PC()
	if err := s.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := s.Retreat(); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	after := s.PC()
	if after != before {
		t.Fatalf("PC after step then reverse-step = %#x; want unchanged %#x", after, before)
	}
	if v, ok := s.ReadReg(pcReg); !ok || v != 0x1000 {
		t.Fatalf("PC register = %d, %v; want 0x1000, true", v, ok)
	}
}

func TestStateBoundaryErrors(t *testing.T) {
	seq := sampleTrace()
	s, _ := replay.NewState(testCapability(), seq)

	if err := s.Retreat(); err == nil {
		t.Fatalf("expected BoundaryError retreating before start")
	}

	s.Advance()
	s.Advance()
	if err := s.Advance(); err == nil {
		t.Fatalf("expected BoundaryError advancing past end")
	}
}

func TestShadowWriteVisibleUntilMotion(t *testing.T) {
	seq := sampleTrace()
	s, _ := replay.NewState(testCapability(), seq)
	s.Advance()

	s.WriteReg(0, 0xdeadbeef)
	if v, ok := s.ReadReg(0); !ok || v != 0xdeadbeef {
		t.Fatalf("shadow write not visible: %d, %v", v, ok)
	}

	s.Advance() // any motion clears the shadow write
	if v, ok := s.ReadReg(0); !ok || v != 9 {
		t.Fatalf("shadow write should not survive a motion, got %d, %v", v, ok)
	}
}

func TestWriteMemPersistsAcrossMotions(t *testing.T) {
	seq := sampleTrace()
	s, _ := replay.NewState(testCapability(), seq)
	s.Advance()

	s.WriteMem(0x3000, []byte{0x42})
	s.Advance()
	mem := s.ReadMem(0x3000, 1)
	if !mem[0].Available || mem[0].Value != 0x42 {
		t.Fatalf("debugger memory write should persist across motions, got %+v", mem[0])
	}
}

func TestReadMemUnavailableByte(t *testing.T) {
	seq := sampleTrace()
	s, _ := replay.NewState(testCapability(), seq)
	mem := s.ReadMem(0x9999, 1)
	if mem[0].Available {
		t.Fatalf("expected unavailable byte at untouched address")
	}
}
