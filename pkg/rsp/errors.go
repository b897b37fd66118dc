package rsp

import (
	"errors"
	"fmt"
)

// ErrInterrupt is returned by Conn.ReadPacket when a bare 0x03 byte arrives
// outside any packet frame — gdb's Ctrl-C (spec §4.E, §4.F).
var ErrInterrupt = errors.New("rsp: interrupt byte received")

// ProtocolError covers malformed packets, checksum exhaustion, and peer ack
// timeouts (spec §7, ProtocolError). It is fatal to the connection: the
// session logs it and closes, but the listener keeps accepting.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rsp protocol error: %s", e.Reason)
}
