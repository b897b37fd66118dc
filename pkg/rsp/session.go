// Package rsp implements the wire-level RSP codec and the command
// dispatcher that maps packets onto a replay.Controller (spec §4.E, §4.F),
// grounded on gdbserial's client-side codec and on
// original_source/rsp_server/minimal_rsp_server.py's handle_command
// dispatch table, generalized from one hardcoded architecture to whatever
// arch.Capability a session is constructed with.
package rsp

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tracedbg/rspd/pkg/arch"
	"github.com/tracedbg/rspd/pkg/replay"
	"github.com/tracedbg/rspd/pkg/trace"
)

const advertisedFeatures = "PacketSize=4000;ReverseStep+;ReverseContinue+;QStartNoAckMode+;qXfer:features:read+"

// Session holds everything scoped to one accepted connection: the CPU
// state cursor, breakpoint table, and run controller for one trace replay
// (spec §3, "Session... trace and CpuState are re-initialized per
// session"). A Session is used for exactly one connection and discarded.
type Session struct {
	conn *Conn
	cap  arch.Capability
	seq  trace.Sequence

	cpu  *replay.State
	bpt  *replay.BreakpointTable
	ctrl *replay.Controller

	contThread int
	log        *logrus.Entry
}

// NewSession constructs a fresh session over seq for one connection. It
// returns a *trace.FormatError if the sequence fails validation — fatal at
// session init per spec §7's TraceError.
func NewSession(conn *Conn, cap arch.Capability, seq trace.Sequence, log *logrus.Entry) (*Session, error) {
	if err := trace.Validate(seq); err != nil {
		return nil, err
	}
	cpu, err := replay.NewState(cap, seq)
	if err != nil {
		return nil, err
	}
	bpt := replay.NewBreakpointTable()
	return &Session{
		conn:       conn,
		cap:        cap,
		seq:        seq,
		cpu:        cpu,
		bpt:        bpt,
		ctrl:       replay.NewController(cpu, bpt),
		contThread: 1,
		log:        log,
	}, nil
}

// Serve runs the request/reply loop until the connection closes or a
// *ProtocolError occurs, at which point it returns that error (or nil on a
// clean EOF).
func (s *Session) Serve() error {
	for {
		payload, err := s.conn.ReadPacket()
		if err == ErrInterrupt {
			// Ordering guarantees interrupts only arrive mid-motion
			// (spec §5); one outside any motion has nothing to abort.
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		resp, quit := s.dispatch(string(payload))
		if resp != nil {
			if err := s.conn.SendPacket(resp); err != nil {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

var (
	pReg      = regexp.MustCompile(`^p([0-9a-fA-F]+)$`)
	pWrite    = regexp.MustCompile(`^P([0-9a-fA-F]+)=([0-9a-fA-F]+)$`)
	mRead     = regexp.MustCompile(`^m([0-9a-fA-F]+),([0-9a-fA-F]+)$`)
	mWrite    = regexp.MustCompile(`^M([0-9a-fA-F]+),([0-9a-fA-F]+):([0-9a-fA-F]+)$`)
	zPacket   = regexp.MustCompile(`^[Zz]([0-9]),([0-9a-fA-F]+),([0-9]+)$`)
	hPacket   = regexp.MustCompile(`^H([a-zA-Z])(-?[0-9a-fA-F]+)$`)
	qXferRead = regexp.MustCompile(`^qXfer:features:read:([^:]+):([0-9a-fA-F]+),([0-9a-fA-F]+)$`)
)

// dispatch handles one decoded payload, returning the reply body (nil for
// "send nothing") and whether the connection should close.
func (s *Session) dispatch(cmd string) (resp []byte, quit bool) {
	switch {
	case strings.HasPrefix(cmd, "qSupported"):
		return []byte(advertisedFeatures), false

	case cmd == "QStartNoAckMode":
		// The OK must go out under the still-active ack regime, so it is
		// sent here and acknowledged before EnableNoAck; dispatch then
		// returns nil so that Serve sends nothing more.
		if err := s.conn.SendPacket([]byte("OK")); err != nil {
			return nil, true
		}
		s.conn.EnableNoAck()
		return nil, false

	case cmd == "?":
		return []byte("S05"), false

	case cmd == "g":
		return s.readAllRegisters(), false

	case strings.HasPrefix(cmd, "G"):
		return s.writeAllRegisters(cmd[1:]), false

	case pReg.MatchString(cmd):
		m := pReg.FindStringSubmatch(cmd)
		return s.readRegister(m[1]), false

	case pWrite.MatchString(cmd):
		m := pWrite.FindStringSubmatch(cmd)
		return s.writeRegister(m[1], m[2]), false

	case mRead.MatchString(cmd):
		m := mRead.FindStringSubmatch(cmd)
		return s.readMemory(m[1], m[2]), false

	case mWrite.MatchString(cmd):
		m := mWrite.FindStringSubmatch(cmd)
		return s.writeMemory(m[1], m[2], m[3]), false

	case cmd == "c":
		return s.stopReply(s.withInterrupt(s.ctrl.ContinueForward)), false
	case cmd == "s":
		return s.stopReply(s.ctrl.StepForward()), false
	case cmd == "bc":
		return s.stopReply(s.withInterrupt(s.ctrl.ContinueBackward)), false
	case cmd == "bs":
		return s.stopReply(s.ctrl.StepBackward()), false

	case cmd == "vCont?":
		return []byte("vCont;c;s"), false
	case strings.HasPrefix(cmd, "vCont"):
		return s.handleVCont(cmd), false

	case cmd == "vMustReplyEmpty":
		return []byte{}, false

	case cmd == "D":
		return []byte("OK"), true

	case hPacket.MatchString(cmd):
		m := hPacket.FindStringSubmatch(cmd)
		return s.handleH(m[1], m[2]), false

	case cmd == "qC":
		return []byte(fmt.Sprintf("QC%x", s.contThread)), false

	case cmd == "qfThreadInfo":
		return []byte("m1"), false
	case cmd == "qsThreadInfo":
		return []byte("l"), false

	case cmd == "qAttached":
		return []byte("1"), false

	case cmd == "qSymbol::":
		return []byte("OK"), false

	case zPacket.MatchString(cmd):
		return s.handleBreakpoint(cmd), false

	case qXferRead.MatchString(cmd):
		m := qXferRead.FindStringSubmatch(cmd)
		return s.handleQXferFeatures(m[1], m[2], m[3]), false

	default:
		// Unsupported command: empty reply per spec §4.F.
		return []byte{}, false
	}
}

// withInterrupt runs a continue motion under a context that a watcher
// goroutine cancels the moment Conn.PollInterrupt sees a pending Ctrl-C
// byte (spec §5: interrupt is the sole exception to strict request/reply
// ordering). It always cancels and joins the watcher before returning,
// whether the motion stopped on its own or was interrupted, so no
// PollInterrupt call is ever in flight when Serve goes back to
// ReadPacket on the same Conn.
func (s *Session) withInterrupt(motion func(context.Context) replay.StopResult) replay.StopResult {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if s.conn.PollInterrupt() {
				cancel()
				return
			}
		}
	}()
	res := motion(ctx)
	cancel()
	<-done
	return res
}

func (s *Session) stopReply(res replay.StopResult) []byte {
	var b strings.Builder
	switch res.Reason {
	case replay.StopTraceEnd:
		b.WriteString("T05reason:trace-end;")
	case replay.StopTraceStart:
		b.WriteString("T05reason:trace-start;")
	case replay.StopSignal:
		return []byte("T02")
	case replay.StopBreakpoint:
		if res.Breakpoint != nil && res.Breakpoint.Kind == replay.Hardware {
			b.WriteString("T05hwbreak:;")
		} else {
			b.WriteString("T05swbreak:;")
		}
	default:
		b.WriteString("T05")
	}
	fmt.Fprintf(&b, "thread:%d;", s.contThread)
	fmt.Fprintf(&b, "%x:%s;", s.cap.PCRegnum(), leHex(res.PC, s.pcRegisterBytes()))
	return []byte(b.String())
}

func (s *Session) pcRegisterBytes() int {
	for _, r := range s.cap.Registers {
		if r.Regnum == s.cap.PCRegnum() {
			return r.Bytes()
		}
	}
	return 8
}

func (s *Session) handleVCont(cmd string) []byte {
	rest := strings.TrimPrefix(cmd, "vCont")
	rest = strings.TrimPrefix(rest, ";")
	var last []byte
	for _, action := range strings.Split(rest, ";") {
		if action == "" {
			continue
		}
		kind := action
		if idx := strings.Index(action, ":"); idx >= 0 {
			kind = action[:idx]
		}
		switch kind {
		case "s":
			last = s.stopReply(s.ctrl.StepForward())
		case "c":
			last = s.stopReply(s.withInterrupt(s.ctrl.ContinueForward))
		}
	}
	if last == nil {
		return []byte("OK")
	}
	return last
}

func (s *Session) handleH(op, tidStr string) []byte {
	tid, err := strconv.ParseInt(tidStr, 16, 64)
	if err != nil {
		tid = 1
	}
	if op == "c" {
		s.contThread = int(tid)
	}
	return []byte("OK")
}

func (s *Session) handleBreakpoint(cmd string) []byte {
	m := zPacket.FindStringSubmatch(cmd)
	kindNum := m[1]
	addr, _ := strconv.ParseUint(m[2], 16, 64)

	if kindNum != "0" && kindNum != "1" {
		return []byte{} // watchpoints unsupported
	}
	bpKind := replay.Software
	if kindNum == "1" {
		bpKind = replay.Hardware
	}
	length, _ := strconv.Atoi(m[3])

	if cmd[0] == 'Z' {
		s.bpt.Insert(addr, bpKind, length)
	} else {
		s.bpt.Remove(addr, bpKind)
	}
	return []byte("OK")
}

func (s *Session) handleQXferFeatures(annex, offsetHex, lengthHex string) []byte {
	if annex != "target.xml" {
		return []byte{}
	}
	offset, _ := strconv.ParseUint(offsetHex, 16, 64)
	length, _ := strconv.ParseUint(lengthHex, 16, 64)

	xml := []byte(s.cap.TargetXML())
	if offset >= uint64(len(xml)) {
		return []byte("l")
	}
	end := offset + length
	last := false
	if end >= uint64(len(xml)) {
		end = uint64(len(xml))
		last = true
	}
	chunk := xml[offset:end]
	prefix := byte('m')
	if last {
		prefix = 'l'
	}
	return append([]byte{prefix}, chunk...)
}

// readAllRegisters implements `g`: registers in architectural order,
// little-endian per register, `xx` runs for anything unavailable (spec
// §4.F).
func (s *Session) readAllRegisters() []byte {
	var b strings.Builder
	for _, r := range s.cap.Registers {
		v, ok := s.cpu.ReadReg(r.Regnum)
		if ok {
			b.WriteString(leHex(v, r.Bytes()))
		} else {
			b.WriteString(strings.Repeat("xx", r.Bytes()))
		}
	}
	return []byte(b.String())
}

// writeAllRegisters implements `G<hex>`: applies each register's shadow
// write in architectural order (spec §4.B write_reg, §9 shadow-write
// design).
func (s *Session) writeAllRegisters(hexData string) []byte {
	pos := 0
	for _, r := range s.cap.Registers {
		width := r.Bytes() * 2
		if pos+width > len(hexData) {
			break
		}
		v, err := parseLEHex(hexData[pos : pos+width])
		if err == nil {
			s.cpu.WriteReg(r.Regnum, v)
		}
		pos += width
	}
	return []byte("OK")
}

func (s *Session) readRegister(regHex string) []byte {
	regnum64, err := strconv.ParseUint(regHex, 16, 32)
	if err != nil {
		return []byte("E14")
	}
	regnum := int(regnum64)
	width := 8
	for _, r := range s.cap.Registers {
		if r.Regnum == regnum {
			width = r.Bytes()
			break
		}
	}
	v, ok := s.cpu.ReadReg(regnum)
	if !ok {
		return []byte(strings.Repeat("xx", width))
	}
	return []byte(leHex(v, width))
}

func (s *Session) writeRegister(regHex, valHex string) []byte {
	regnum64, err := strconv.ParseUint(regHex, 16, 32)
	if err != nil {
		return []byte("E14")
	}
	v, err := parseLEHex(valHex)
	if err != nil {
		return []byte("E14")
	}
	s.cpu.WriteReg(int(regnum64), v)
	return []byte("OK")
}

func (s *Session) readMemory(addrHex, lenHex string) []byte {
	addr, err1 := strconv.ParseUint(addrHex, 16, 64)
	length, err2 := strconv.ParseUint(lenHex, 16, 64)
	if err1 != nil || err2 != nil {
		return []byte("E14")
	}
	bytesRead := s.cpu.ReadMem(addr, int(length))
	anyAvailable := false
	var b strings.Builder
	for _, mb := range bytesRead {
		if mb.Available {
			anyAvailable = true
			fmt.Fprintf(&b, "%02x", mb.Value)
		} else {
			b.WriteString("xx")
		}
	}
	if !anyAvailable && length > 0 {
		return []byte("E14")
	}
	return []byte(b.String())
}

func (s *Session) writeMemory(addrHex, lenHex, dataHex string) []byte {
	addr, err1 := strconv.ParseUint(addrHex, 16, 64)
	_, err2 := strconv.ParseUint(lenHex, 16, 64)
	if err1 != nil || err2 != nil || len(dataHex)%2 != 0 {
		return []byte("E14")
	}
	data := make([]byte, len(dataHex)/2)
	for i := range data {
		v, err := strconv.ParseUint(dataHex[i*2:i*2+2], 16, 8)
		if err != nil {
			return []byte("E14")
		}
		data[i] = byte(v)
	}
	s.cpu.WriteMem(addr, data)
	return []byte("OK")
}

// leHex renders v as width little-endian bytes in hex, the byte order RSP
// uses for register and memory payloads.
func leHex(v uint64, width int) string {
	var b strings.Builder
	for i := 0; i < width; i++ {
		fmt.Fprintf(&b, "%02x", byte(v>>(8*i)))
	}
	return b.String()
}

func parseLEHex(hexStr string) (uint64, error) {
	if len(hexStr)%2 != 0 {
		return 0, fmt.Errorf("odd-length hex value %q", hexStr)
	}
	var v uint64
	n := len(hexStr) / 2
	for i := n - 1; i >= 0; i-- {
		b, err := strconv.ParseUint(hexStr[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, err
		}
		v = v<<8 | b
	}
	return v, nil
}

