// Package sysreg describes the AArch64 system registers used by the GICv3
// CPU interface, and the contract for accessing them on the executing core.
package sysreg

import "fmt"

// Reg identifies a system register.
type Reg int

const (
	MPIDR_EL1 Reg = iota
	ID_AA64PFR0_EL1
	CurrentEL
	ICC_SRE_EL1
	ICC_SRE_EL2
	ICC_PMR_EL1
	ICC_IGRPEN1_EL1
	ICC_IAR1_EL1
	ICC_EOIR1_EL1
	ICC_SGI1R_EL1
)

var regNames = [...]string{
	MPIDR_EL1:       "MPIDR_EL1",
	ID_AA64PFR0_EL1: "ID_AA64PFR0_EL1",
	CurrentEL:       "CurrentEL",
	ICC_SRE_EL1:     "ICC_SRE_EL1",
	ICC_SRE_EL2:     "ICC_SRE_EL2",
	ICC_PMR_EL1:     "ICC_PMR_EL1",
	ICC_IGRPEN1_EL1: "ICC_IGRPEN1_EL1",
	ICC_IAR1_EL1:    "ICC_IAR1_EL1",
	ICC_EOIR1_EL1:   "ICC_EOIR1_EL1",
	ICC_SGI1R_EL1:   "ICC_SGI1R_EL1",
}

func (r Reg) String() string {
	if r >= 0 && int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// CPU accesses the system registers of the core executing the call. An
// implementation is bound to exactly one core.
type CPU interface {
	Read(reg Reg) uint64
	Write(reg Reg, value uint64)

	// ISB is an instruction synchronization barrier.
	ISB()
	// DSB is a data synchronization barrier (inner shareable).
	DSB()
}

// ICC_SRE_ELx bits
const (
	SRE_SRE = 1 << 0 // system register interface enable
	SRE_DFB = 1 << 1 // disable FIQ bypass
	SRE_DIB = 1 << 2 // disable IRQ bypass
	SRE_EN  = 1 << 3 // lower EL access enable (EL2 only)
)

// ICC_IGRPEN1_EL1 bits
const (
	IGRPEN1_Enable = 1 << 0
)

// ICC_IAR1_EL1 fields
const (
	IAR1_INTIDMask = 0xffffff
)

// ICC_PMR_EL1 value that lets every priority through.
const PMR_AllowAll = 0xff

// ID_AA64PFR0_EL1.GIC
const (
	PFR0_GICShift = 24
	PFR0_GICMask  = 0xf
)

// CurrentEL.EL
const (
	CurrentELShift = 2
	CurrentELMask  = 0x3
)

// ExceptionLevel returns the exception level the core is executing at.
func ExceptionLevel(cpu CPU) int {
	return int((cpu.Read(CurrentEL) >> CurrentELShift) & CurrentELMask)
}

// HasGICSystemRegisters reports whether the core implements the GICv3 system
// register interface.
func HasGICSystemRegisters(cpu CPU) bool {
	return (cpu.Read(ID_AA64PFR0_EL1)>>PFR0_GICShift)&PFR0_GICMask != 0
}

// SystemRegistersEnabled reports whether system-register access to the CPU
// interface is enabled at the current exception level.
func SystemRegistersEnabled(cpu CPU) bool {
	reg := ICC_SRE_EL1
	if ExceptionLevel(cpu) == 2 {
		reg = ICC_SRE_EL2
	}
	return cpu.Read(reg)&SRE_SRE != 0
}

// GICv3Mode reports whether the GIC is usable in GICv3 mode from this core.
func GICv3Mode(cpu CPU) bool {
	return HasGICSystemRegisters(cpu) && SystemRegistersEnabled(cpu)
}
