package rsp

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracedbg/rspd/pkg/arch"
	"github.com/tracedbg/rspd/pkg/trace"
)

func testCapability() arch.Capability {
	return arch.Capability{
		Name: "test",
		Registers: []arch.RegisterInfo{
			{Name: "r0", Regnum: 0, Bitsize: 64},
			{Name: "pc", Regnum: 1, Bitsize: 64},
		},
		PCRegister: 1,
	}
}

func u64(v uint64) *uint64 { return &v }

func testTrace() trace.Slice {
	return trace.Slice{
		{
			Index: 0, PCBefore: 0x1000, PCAfter: 0x1004,
			RegWrites: []trace.RegWrite{
				{Reg: 0, NewValue: 5},
				{Reg: 1, NewValue: 0x1004},
			},
		},
		{
			Index: 1, PCBefore: 0x1004, PCAfter: 0x1008,
			RegWrites: []trace.RegWrite{
				{Reg: 0, OldValue: u64(5), NewValue: 9},
				{Reg: 1, OldValue: u64(0x1004), NewValue: 0x1008},
			},
		},
		{
			Index: 2, PCBefore: 0x1008, PCAfter: 0x100c,
			RegWrites: []trace.RegWrite{
				{Reg: 1, OldValue: u64(0x1008), NewValue: 0x100c},
			},
		},
	}
}

// testHarness pairs an in-memory Session with a raw client end for
// hand-driving RSP frames without a real socket.
type testHarness struct {
	t      *testing.T
	client net.Conn
	cr     *bufio.Reader
}

func newTestHarness(t *testing.T) *testHarness {
	serverConn, clientConn := net.Pipe()
	conn := NewConn(serverConn, nil)
	sess, err := NewSession(conn, testCapability(), testTrace(), nil)
	require.NoError(t, err)

	go sess.Serve()

	return &testHarness{t: t, client: clientConn, cr: bufio.NewReader(clientConn)}
}

func (h *testHarness) roundTrip(payload string) string {
	h.t.Helper()
	h.client.SetDeadline(time.Now().Add(5 * time.Second))
	_, err := h.client.Write(frame([]byte(payload)))
	require.NoError(h.t, err)

	ack, err := h.cr.ReadByte()
	require.NoError(h.t, err)
	require.Equal(h.t, byte('+'), ack)

	resp := h.readFrame()
	_, err = h.client.Write([]byte{'+'})
	require.NoError(h.t, err)
	return resp
}

func (h *testHarness) readFrame() string {
	h.t.Helper()
	b, err := h.cr.ReadByte()
	require.NoError(h.t, err)
	require.Equal(h.t, byte('$'), b)
	raw, err := h.cr.ReadBytes('#')
	require.NoError(h.t, err)
	raw = raw[:len(raw)-1]
	cs := make([]byte, 2)
	_, err = h.cr.Read(cs)
	require.NoError(h.t, err)
	return string(decodePayload(raw))
}

func TestSessionQSupportedAndStatus(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	resp := h.roundTrip("qSupported")
	require.Equal(t, advertisedFeatures, resp)

	resp = h.roundTrip("?")
	require.Equal(t, "S05", resp)
}

func TestSessionStepThenReverseStep(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	before := h.roundTrip("g")

	resp := h.roundTrip("s")
	require.Contains(t, resp, "1:0410000000000000;") // pc regnum 1, 0x1004 little-endian

	resp = h.roundTrip("bs")
	require.Contains(t, resp, "1:0010000000000000;") // back to 0x1000

	after := h.roundTrip("g")
	require.Equal(t, before, after)
}

func TestSessionBreakpointContinue(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	resp := h.roundTrip("Z0,1008,4")
	require.Equal(t, "OK", resp)

	resp = h.roundTrip("c")
	require.Contains(t, resp, "swbreak")
	require.Contains(t, resp, "1:0810000000000000;") // pc regnum 1, 0x1008 little-endian
}

func TestSessionHardwareBreakpointContinue(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	resp := h.roundTrip("Z1,1008,4")
	require.Equal(t, "OK", resp)

	resp = h.roundTrip("c")
	require.Contains(t, resp, "hwbreak")
	require.NotContains(t, resp, "swbreak")
	require.Contains(t, resp, "1:0810000000000000;")
}

func TestSessionMemoryLoadAndRead(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	resp := h.roundTrip("M1000,4:deadbeef")
	require.Equal(t, "OK", resp)

	resp = h.roundTrip("m1000,4")
	require.Equal(t, "deadbeef", resp)
}

func TestSessionUnavailableMemory(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	resp := h.roundTrip("m2000,4")
	require.Equal(t, "E14", resp)
}

func TestSessionReverseContinueToStart(t *testing.T) {
	h := newTestHarness(t)
	defer h.client.Close()

	h.roundTrip("s")
	h.roundTrip("s")

	resp := h.roundTrip("bc")
	require.Contains(t, resp, "reason:trace-start;")
}
