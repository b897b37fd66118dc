package trace

import "github.com/tracedbg/rspd/pkg/arch"

// RV64Capability is the register capability struct for a generic RV64
// hart, grounded on riscv_cpu_state.py's RiscvCpuState (PC_REG = 32,
// NUM_REGISTERS = 33): x0..x31 followed by pc, all 64 bits wide. Both
// bundled parsers produce events whose register indices are gdb regnums
// into this layout.
var RV64Capability = buildRV64Capability()

func buildRV64Capability() arch.Capability {
	regs := make([]arch.RegisterInfo, 0, 33)
	for i := 0; i < 32; i++ {
		regs = append(regs, arch.RegisterInfo{
			Name:    rv64RegName(i),
			Regnum:  i,
			Bitsize: 64,
			Group:   "general",
		})
	}
	regs = append(regs, arch.RegisterInfo{
		Name:    "pc",
		Regnum:  32,
		Bitsize: 64,
		Group:   "general",
	})
	return arch.Capability{
		Name:       "riscv:rv64",
		Registers:  regs,
		PCRegister: 32,
	}
}

// rv64RegName returns the ABI name gdb's riscv:rv64 target description
// uses for x<n>, so a debugger falling back to its built-in description
// (i.e. not fetching target.xml) still lines register order and naming up
// with what qXfer:features:read would have said (spec §6).
func rv64RegName(n int) string {
	names := [32]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	return names[n]
}
