package rsp

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const maxTransmitAttempts = 5

// Conn is the byte-oriented framing layer over one accepted TCP connection:
// packet assembly, checksum verification/retry, `+`/`-` acknowledgement,
// noack-mode transition, and cooperative interrupt polling (spec §4.E,
// §5). It has no notion of RSP commands; that is pkg/rsp's Session.
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	log *logrus.Entry
	ack bool // true until QStartNoAckMode is negotiated
}

// NewConn wraps an accepted connection. Acknowledgement mode starts
// enabled, per the RSP handshake default.
func NewConn(nc net.Conn, log *logrus.Entry) *Conn {
	return &Conn{nc: nc, br: bufio.NewReader(nc), log: log, ack: true}
}

// EnableNoAck turns off `+`/`-` acknowledgement, called by the dispatcher
// after it has sent the `OK` reply to `QStartNoAckMode` (spec §4.E: "honors
// qStartNoAckMode by transitioning into noack mode after sending its
// OK+ack").
func (c *Conn) EnableNoAck() {
	c.ack = false
}

// ReadPacket blocks for the next complete, checksum-valid frame and
// returns its decoded payload. A bad checksum triggers a `-` and a silent
// retry, up to maxTransmitAttempts, after which it returns a
// *ProtocolError. A bare interrupt byte (0x03) outside any frame returns
// ErrInterrupt.
func (c *Conn) ReadPacket() ([]byte, error) {
	attempts := 0
	for {
		payload, ok, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}
		attempts++
		if attempts > maxTransmitAttempts {
			return nil, &ProtocolError{Reason: "checksum failed too many times"}
		}
	}
}

func (c *Conn) readFrame() (payload []byte, checksumOK bool, err error) {
	for {
		b, err := c.br.ReadByte()
		if err != nil {
			return nil, false, err
		}
		if b == interruptByte {
			return nil, false, ErrInterrupt
		}
		if b == '$' {
			break
		}
		// discard chatter preceding a packet start, per spec §4.E
	}

	raw, err := c.br.ReadBytes('#')
	if err != nil {
		return nil, false, err
	}
	raw = raw[:len(raw)-1] // drop trailing '#'

	csHex := make([]byte, 2)
	if _, err := io.ReadFull(c.br, csHex); err != nil {
		return nil, false, err
	}
	want, err := strconv.ParseUint(string(csHex), 16, 8)
	if err != nil {
		return nil, false, &ProtocolError{Reason: "malformed checksum digits"}
	}

	if c.logEnabled() {
		c.log.Debugf("-> $%s#%s", string(raw), string(csHex))
	}

	if uint8(want) != checksum(raw) {
		c.sendRaw([]byte{'-'})
		return nil, false, nil
	}
	if c.ack {
		c.sendRaw([]byte{'+'})
	}
	return decodePayload(raw), true, nil
}

// SendPacket frames and transmits payload, retrying on `-` up to
// maxTransmitAttempts when acknowledgement mode is active.
func (c *Conn) SendPacket(payload []byte) error {
	wire := frame(payload)
	attempts := 0
	for {
		if err := c.sendRaw(wire); err != nil {
			return err
		}
		if !c.ack {
			return nil
		}
		b, err := c.br.ReadByte()
		if err != nil {
			return err
		}
		if b == '+' {
			return nil
		}
		attempts++
		if attempts > maxTransmitAttempts {
			return &ProtocolError{Reason: "peer failed to ack too many times"}
		}
	}
}

func (c *Conn) sendRaw(b []byte) error {
	if c.logEnabled() {
		c.log.Debugf("<- %s", string(b))
	}
	_, err := c.nc.Write(b)
	return err
}

func (c *Conn) logEnabled() bool {
	return c.log != nil && c.log.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// PollInterrupt performs a bounded non-blocking check for a pending
// interrupt byte (spec §5: "implementations may implement the interrupt
// drain via a non-blocking peek on the socket"). A byte other than 0x03
// that arrives within the check is consumed and discarded. It must never
// run concurrently with ReadPacket/SendPacket on the same Conn;
// Session.withInterrupt calls it repeatedly from a watcher goroutine while
// a continue motion runs and joins that goroutine before reading again.
func (c *Conn) PollInterrupt() bool {
	c.nc.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer c.nc.SetReadDeadline(time.Time{})

	b, err := c.br.ReadByte()
	if err != nil {
		return false // timeout: no byte pending
	}
	return b == interruptByte
}
