// Package arch describes the register layout of a replayed target.
//
// A trace-replay session never executes an instruction, so unlike delve's
// proc.Arch it carries no calling convention or breakpoint-instruction
// details, only what the RSP wire protocol and the CPU state cursor need to
// agree on: how many registers there are, how wide each one is, and which
// one is the program counter.
package arch

import (
	"bytes"
	"fmt"
)

// RegisterInfo describes one architectural register as gdb's target.xml
// schema would (see gdbserial's gdbRegisterInfo, which this mirrors for a
// server instead of a client).
type RegisterInfo struct {
	Name    string
	Regnum  int
	Bitsize int // width in bits, e.g. 64 for RV64 general registers
	Group   string
}

// Bytes is the register's width in bytes.
func (r RegisterInfo) Bytes() int {
	return r.Bitsize / 8
}

// Capability is the set of architecture facts a Session needs at
// construction time. Implementers supply these as constants for a specific
// CPU (see the riscv64 variant in package trace); nothing in pkg/replay or
// pkg/rsp assumes a particular architecture beyond what Capability exposes.
type Capability struct {
	Name       string
	Registers  []RegisterInfo
	PCRegister int // index into Registers, not gdb regnum
}

// NumRegisters is the count of architectural registers, including PC.
func (c Capability) NumRegisters() int {
	return len(c.Registers)
}

// PCRegnum returns the gdb regnum of the PC register.
func (c Capability) PCRegnum() int {
	return c.Registers[c.PCRegister].Regnum
}

// TargetXML renders the target description gdb requests via
// qXfer:features:read:target.xml. The register order here is what the core
// falls back to when a debugger skips that request (spec requirement:
// register order must match gdb's built-in description for the arch).
func (c Capability) TargetXML() string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString("<!DOCTYPE target SYSTEM \"gdb-target.dtd\">")
	fmt.Fprintf(&buf, `<target><architecture>%s</architecture><feature name="org.gnu.gdb.%s">`, c.Name, c.Name)
	for _, r := range c.Registers {
		fmt.Fprintf(&buf, `<reg name="%s" bitsize="%d" regnum="%d"`, r.Name, r.Bitsize, r.Regnum)
		if r.Group != "" {
			fmt.Fprintf(&buf, ` group="%s"`, r.Group)
		}
		if r.Regnum == c.PCRegnum() {
			buf.WriteString(` type="code_ptr"`)
		}
		buf.WriteString("/>")
	}
	buf.WriteString("</feature></target>")
	return buf.String()
}
