package gic

import (
	"fmt"

	"github.com/tinyrange/gic/internal/sysreg"
)

// Core is the handle a core uses for the operations local to it. It must only
// be used from the core whose system registers it was attached with.
type Core struct {
	d     *Driver
	cpu   sysreg.CPU
	index CoreIndex
	rdist regs // SGI_base of the core's redistributor
}

// Index returns the core's position.
func (c *Core) Index() CoreIndex { return c.index }

// MPIDR returns the affinity the core's redistributor was matched with.
func (c *Core) MPIDR() MPIDR { return c.d.cores[c.index].mpidr }

// Driver returns the driver the core belongs to.
func (c *Core) Driver() *Driver { return c.d }

func checkSystemRegisters(cpu sysreg.CPU) error {
	if !sysreg.HasGICSystemRegisters(cpu) {
		return fmt.Errorf("gic: ID_AA64PFR0_EL1: %w", ErrNoSystemRegisters)
	}
	if !sysreg.SystemRegistersEnabled(cpu) {
		return fmt.Errorf("gic: EL%d: %w", sysreg.ExceptionLevel(cpu), ErrSRENotEnabled)
	}
	return nil
}

// EnableLocal enables Group 1 interrupts at the core's CPU interface.
func (c *Core) EnableLocal() error {
	if !sysreg.SystemRegistersEnabled(c.cpu) {
		return fmt.Errorf("gic: core %d: %w", c.index, ErrSRENotEnabled)
	}
	c.cpu.Write(sysreg.ICC_IGRPEN1_EL1, c.cpu.Read(sysreg.ICC_IGRPEN1_EL1)|sysreg.IGRPEN1_Enable)
	c.cpu.ISB()
	return nil
}

// DisableLocal masks Group 1 interrupts at the core's CPU interface.
func (c *Core) DisableLocal() {
	c.cpu.Write(sysreg.ICC_IGRPEN1_EL1, c.cpu.Read(sysreg.ICC_IGRPEN1_EL1)&^sysreg.IGRPEN1_Enable)
	c.cpu.ISB()
}

func (c *Core) setupCPUInterface() error {
	c.cpu.Write(sysreg.ICC_PMR_EL1, sysreg.PMR_AllowAll)
	c.cpu.ISB()
	return c.EnableLocal()
}

// Acknowledge reads ICC_IAR1_EL1 and returns the INTID of the signalled
// interrupt, or SpuriousINTID when there is none.
func (c *Core) Acknowledge() uint32 {
	return uint32(c.cpu.Read(sysreg.ICC_IAR1_EL1) & sysreg.IAR1_INTIDMask)
}

// EndOfInterrupt drops the running priority of the interrupt returned by
// Acknowledge.
func (c *Core) EndOfInterrupt(raw uint32) {
	c.cpu.Write(sysreg.ICC_EOIR1_EL1, uint64(raw&sysreg.IAR1_INTIDMask))
}
