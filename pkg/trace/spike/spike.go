// Package spike parses the trace format produced by the Spike RISC-V ISA
// simulator's `-l` commit log, ported from original_source/trace_utils's
// spike_trace.py. A commit-log entry is two lines: a disassembly line
//
//	core   0: 0x0000000080004626 (0x00008fd9) c.or    a5, a4
//
// followed by a status-update line carrying the retired register and/or
// memory accesses:
//
//	core   0: 3 0x0000000080004626 (0x00008fd9) x15 0x0000000000000002
//
// Spike's log never reports the *previous* value of anything it writes, so
// this parser reconstructs it by walking the trace forward once with a
// shadow copy of the architectural state — the same computation
// cpu_state.py's CpuState.update does at replay time, done once here
// instead of on every future traversal.
package spike

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/tracedbg/rspd/pkg/trace"
)

func init() {
	trace.RegisterFormat("spike", Parser{})
}

// Parser implements trace.Parser for Spike commit logs.
type Parser struct{}

var (
	disasmLine = regexp.MustCompile(`^core\s+\d+:\s+(0x[0-9a-fA-F]+)\s+\((0x[0-9a-fA-F]+)\)\s+(.*)$`)
	statusLine = regexp.MustCompile(`^core\s+\d+:\s+\d+\s+(0x[0-9a-fA-F]+)\s+\((0x[0-9a-fA-F]+)\)\s*(.*)$`)
	regWrite   = regexp.MustCompile(`^([a-z][_0-9a-zA-Z]*)\s+(0x[0-9a-fA-F]+)`)
	memWrite   = regexp.MustCompile(`^mem\s+(0x[0-9a-fA-F]+)\s+(0x[0-9a-fA-F]+)`)
	memRead    = regexp.MustCompile(`^mem\s+(0x[0-9a-fA-F]+)`)
)

// riscvABINames maps Spike's register names, both ABI mnemonics (a0, sp,
// t3, ...) and numeric x<n> names, back to their gdb regnum in the
// RV64Capability layout.
var riscvABINames = buildABINameTable()

func buildABINameTable() map[string]int {
	names := [32]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	m := make(map[string]int, 32)
	for i, n := range names {
		m[n] = i
		m[fmt.Sprintf("x%d", i)] = i
	}
	// fp is an alias for s0.
	m["fp"] = 8
	return m
}

// Parse implements trace.Parser.
func (Parser) Parse(r io.Reader) (trace.Sequence, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		seq          trace.Slice
		pendingPC    string
		havePending  bool
		lineNum      int
		shadowRegs   [33]uint64
		shadowRegSet [33]bool
		shadowMem    = map[uint64]byte{}
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := disasmLine.FindStringSubmatch(line); m != nil {
			pendingPC = m[1]
			havePending = true
			continue
		}

		m := statusLine.FindStringSubmatch(line)
		if m == nil {
			// Section markers and other non-instruction chatter (e.g.
			// ">>>>  MEM_START") are skipped, matching the reference
			// parser's "skipped:" fallthrough.
			continue
		}
		pc := m[1]
		if !havePending || pendingPC != pc {
			return nil, &trace.FormatError{Index: len(seq), Reason: fmt.Sprintf("line %d: status update without matching disassembly for pc %s", lineNum, pc)}
		}
		havePending = false

		pcVal, err := parseHex(pc)
		if err != nil {
			return nil, &trace.FormatError{Index: len(seq), Reason: err.Error()}
		}

		ev := trace.Event{
			Index:    len(seq),
			PCBefore: currentPC(seq, pcVal),
			PCAfter:  pcVal,
		}

		rest := strings.TrimSpace(m[3])
		for rest != "" {
			if mm := memWrite.FindStringSubmatch(rest); mm != nil {
				addr, _ := parseHex(mm[1])
				val := strings.TrimPrefix(mm[2], "0x")
				newBytes, err := hexToBytesLE(val)
				if err != nil {
					return nil, &trace.FormatError{Index: ev.Index, Reason: err.Error()}
				}
				old := shadowMemRead(shadowMem, addr, len(newBytes))
				ev.MemWrites = append(ev.MemWrites, trace.MemWrite{Addr: addr, OldBytes: old, NewBytes: newBytes})
				for i, b := range newBytes {
					shadowMem[addr+uint64(i)] = b
				}
				rest = strings.TrimSpace(rest[len(mm[0]):])
				continue
			}
			if mm := memRead.FindStringSubmatch(rest); mm != nil {
				addr, _ := parseHex(mm[1])
				b, ok := shadowMem[addr]
				bs := []byte{}
				if ok {
					bs = []byte{b}
				}
				ev.MemReads = append(ev.MemReads, trace.MemRead{Addr: addr, Bytes: bs})
				rest = strings.TrimSpace(rest[len(mm[0]):])
				continue
			}
			if mm := regWrite.FindStringSubmatch(rest); mm != nil {
				regnum, ok := riscvABINames[mm[1]]
				if !ok {
					return nil, &trace.FormatError{Index: ev.Index, Reason: fmt.Sprintf("unknown register %q", mm[1])}
				}
				val, err := parseHex(mm[2])
				if err != nil {
					return nil, &trace.FormatError{Index: ev.Index, Reason: err.Error()}
				}
				var oldPtr *uint64
				if shadowRegSet[regnum] {
					old := shadowRegs[regnum]
					oldPtr = &old
				}
				ev.RegWrites = append(ev.RegWrites, trace.RegWrite{Reg: regnum, OldValue: oldPtr, NewValue: val})
				shadowRegs[regnum] = val
				shadowRegSet[regnum] = true
				rest = strings.TrimSpace(rest[len(mm[0]):])
				continue
			}
			return nil, &trace.FormatError{Index: ev.Index, Reason: fmt.Sprintf("line %d: could not parse remainder %q", lineNum, rest)}
		}

		// PC (regnum 32) is always written by retirement, even when
		// nothing else changed.
		var pcOldPtr *uint64
		if shadowRegSet[32] {
			old := shadowRegs[32]
			pcOldPtr = &old
		}
		ev.RegWrites = append(ev.RegWrites, trace.RegWrite{Reg: 32, OldValue: pcOldPtr, NewValue: pcVal})
		shadowRegs[32] = pcVal
		shadowRegSet[32] = true

		seq = append(seq, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := trace.Validate(seq); err != nil {
		return nil, err
	}
	return seq, nil
}

// currentPC returns the pc_before for a new event: the pc_after of the
// last event, or the event's own pc if this is the first (spec §3 doesn't
// define pc_before for index 0 beyond "the initial event").
func currentPC(seq trace.Slice, fallback uint64) uint64 {
	if len(seq) == 0 {
		return fallback
	}
	return seq[len(seq)-1].PCAfter
}

// shadowMemRead returns the current shadow value of the n bytes at addr,
// or nil if any of them has never been written: trace.MemWrite.OldBytes
// is all-or-nothing, so a partially-known range must report as fully
// unknown rather than filling the gaps with fabricated zero bytes.
func shadowMemRead(mem map[uint64]byte, addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := mem[addr+uint64(i)]
		if !ok {
			return nil
		}
		out[i] = b
	}
	return out
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, 64)
}

// hexToBytesLE decodes a hex string as Spike prints it (most significant
// byte first, per hex_fmt_sized in the reference parser) into little-endian
// byte order matching the target's memory layout.
func hexToBytesLE(hexStr string) ([]byte, error) {
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	n := len(hexStr) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseUint(hexStr[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[n-1-i] = byte(v)
	}
	return out, nil
}
