package gic

import (
	"fmt"

	"github.com/tinyrange/gic/internal/sysreg"
)

// privatePriorityWords is the number of IPRIORITYR registers covering the
// 32 private interrupts.
const privatePriorityWords = numPrivate >> 2

// CPUContext is the interrupt state of one core preserved across a power
// down: the CPU interface group enable, and the redistributor's enable,
// priority and PPI configuration registers.
type CPUContext struct {
	Group1Enabled bool
	Enable        uint32
	Priority      [privatePriorityWords]uint32
	Config        uint32 // GICR_ICFGR1
}

// Context returns the context last saved for the core.
func (c *Core) Context() CPUContext { return c.d.cores[c.index].ctx }

// Suspended reports whether core i has saved its local context and not yet
// restored it.
func (d *Driver) Suspended(i CoreIndex) bool {
	return d.checkIndex(i) == nil && d.cores[i].suspended
}

// SaveLocal records the CPU interface group enable and marks the core
// suspended, so a later SaveGlobal from any core includes it.
func (c *Core) SaveLocal() {
	st := &c.d.cores[c.index]
	st.ctx.Group1Enabled = c.cpu.Read(sysreg.ICC_IGRPEN1_EL1)&sysreg.IGRPEN1_Enable != 0
	st.localSaved = true
	st.suspended = true
}

// RestoreLocal reprograms the CPU interface from the state captured by
// SaveLocal.
func (c *Core) RestoreLocal() error {
	st := &c.d.cores[c.index]
	if !st.localSaved {
		return fmt.Errorf("gic: core %d local context: %w", c.index, ErrNoSavedContext)
	}
	st.suspended = false
	st.localSaved = false

	c.cpu.Write(sysreg.ICC_PMR_EL1, sysreg.PMR_AllowAll)
	igrpen := c.cpu.Read(sysreg.ICC_IGRPEN1_EL1) &^ sysreg.IGRPEN1_Enable
	if st.ctx.Group1Enabled {
		igrpen |= sysreg.IGRPEN1_Enable
	}
	c.cpu.Write(sysreg.ICC_IGRPEN1_EL1, igrpen)
	c.cpu.ISB()
	return nil
}

// sweep returns the cores a global save or restore acts on: the caller and
// every suspended core. Each must have a resolved redistributor.
func (s *System) sweep(caller *Core) ([]CoreIndex, error) {
	var sel []CoreIndex
	for i := range s.d.cores {
		idx := CoreIndex(i)
		if idx != caller.index && !s.d.cores[i].suspended {
			continue
		}
		if _, err := s.d.resolved(idx); err != nil {
			return nil, err
		}
		sel = append(sel, idx)
	}
	return sel, nil
}

func (d *Driver) rdistOf(i CoreIndex) regs {
	return regs{bus: d.bus, base: d.cores[i].frame + gicrSGIOffset}
}

// SaveGlobal captures the redistributor state of the caller and of every
// suspended core.
func (s *System) SaveGlobal(caller *Core) error {
	sel, err := s.sweep(caller)
	if err != nil {
		return fmt.Errorf("gic: save global: %w", err)
	}

	for _, i := range sel {
		st := &s.d.cores[i]
		rd := s.d.rdistOf(i)

		st.ctx.Enable = rd.read(isenabler, 0)
		for w := range st.ctx.Priority {
			st.ctx.Priority[w] = rd.read(ipriorityr, uint32(w)<<ipriorityr.shift)
		}
		st.ctx.Config = rd.read(icfgr, MinPPIID)
		st.globalSaved = true
	}
	s.d.log.Debug("gic: global context saved", "cores", len(sel))
	return nil
}

// RestoreGlobal reconfigures the distributor, which loses its state across
// a system power down, and then writes back the redistributor state saved by
// SaveGlobal. Enables are written last so that no interrupt is forwarded
// with a stale priority or trigger.
func (s *System) RestoreGlobal(caller *Core) error {
	sel, err := s.sweep(caller)
	if err != nil {
		return fmt.Errorf("gic: restore global: %w", err)
	}
	for _, i := range sel {
		if !s.d.cores[i].globalSaved {
			return fmt.Errorf("gic: restore global: core %d: %w", i, ErrNoSavedContext)
		}
	}

	if err := s.setupDistributor(caller.cpu); err != nil {
		return fmt.Errorf("gic: restore global: %w", err)
	}

	for _, i := range sel {
		st := &s.d.cores[i]
		rd := s.d.rdistOf(i)

		for w, v := range st.ctx.Priority {
			rd.write(ipriorityr, uint32(w)<<ipriorityr.shift, v)
		}
		rd.write(icfgr, MinPPIID, st.ctx.Config)
		rd.write(icenabler, 0, ^st.ctx.Enable)
		rd.write(isenabler, 0, st.ctx.Enable)
		st.globalSaved = false
	}
	s.d.log.Debug("gic: global context restored", "cores", len(sel))
	return nil
}
