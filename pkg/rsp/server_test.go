package rsp

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dialAndHandshake(t *testing.T, addr net.Addr) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	c.SetDeadline(time.Now().Add(5 * time.Second))
	return c, bufio.NewReader(c)
}

func sendCmd(t *testing.T, c net.Conn, br *bufio.Reader, payload string) string {
	t.Helper()
	_, err := c.Write(frame([]byte(payload)))
	require.NoError(t, err)
	ack, err := br.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('+'), ack)

	b, err := br.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('$'), b)
	raw, err := br.ReadBytes('#')
	require.NoError(t, err)
	raw = raw[:len(raw)-1]
	cs := make([]byte, 2)
	_, err = br.Read(cs)
	require.NoError(t, err)

	_, err = c.Write([]byte{'+'})
	require.NoError(t, err)
	return string(decodePayload(raw))
}

func TestServerServesOneConnectionThenResetsForNext(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", testCapability(), testTrace(), nil)
	require.NoError(t, err)
	go srv.Run()
	defer srv.Close()

	c1, br1 := dialAndHandshake(t, srv.Addr())
	resp := sendCmd(t, c1, br1, "s")
	require.Contains(t, resp, "1:0410000000000000;")
	c1.Close()

	// A fresh connection must start over at cursor -1: stepping once
	// again lands on the same first PC, proving the session (and its
	// cursor) was rebuilt rather than reused (spec §3, §4.G).
	c2, br2 := dialAndHandshake(t, srv.Addr())
	defer c2.Close()
	resp = sendCmd(t, c2, br2, "s")
	require.Contains(t, resp, "1:0410000000000000;")
}
