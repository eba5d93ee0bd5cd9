package gicv3

import "github.com/tinyrange/gic/internal/sysreg"

const (
	mpidrRES1 = 1 << 31

	sgi1rINTIDShift = 24
	sgi1rAff1Shift  = 16
	sgi1rAff2Shift  = 32
	sgi1rAff3Shift  = 48
	sgi1rIRM        = 1 << 40
)

// CPU is the CPU interface of one modelled core. It implements sysreg.CPU.
type CPU struct {
	g     *GIC
	index int
	mpidr uint64

	sreEL1  uint64
	sreEL2  uint64
	pmr     uint64
	igrpen1 uint64

	isbs     int
	dsbs     int
	unsynced int // system register writes since the last ISB
	sgis     []uint64
}

func (c *CPU) reset() {
	c.sreEL1 = sysreg.SRE_SRE | sysreg.SRE_DFB | sysreg.SRE_DIB
	c.sreEL2 = c.sreEL1 | sysreg.SRE_EN
	c.pmr = 0
	c.igrpen1 = 0
	c.isbs, c.dsbs, c.unsynced = 0, 0, 0
	c.sgis = nil
}

// Index returns the core's frame position.
func (c *CPU) Index() int { return c.index }

// Read implements sysreg.CPU.
func (c *CPU) Read(reg sysreg.Reg) uint64 {
	g := c.g
	g.mu.Lock()
	defer g.mu.Unlock()

	switch reg {
	case sysreg.MPIDR_EL1:
		return c.mpidr | mpidrRES1
	case sysreg.ID_AA64PFR0_EL1:
		if g.cfg.NoSystemRegisters {
			return 0
		}
		return 1 << sysreg.PFR0_GICShift
	case sysreg.CurrentEL:
		return uint64(g.cfg.ExceptionLevel) << sysreg.CurrentELShift
	case sysreg.ICC_SRE_EL1:
		return c.sreEL1
	case sysreg.ICC_SRE_EL2:
		return c.sreEL2
	case sysreg.ICC_PMR_EL1:
		return c.pmr
	case sysreg.ICC_IGRPEN1_EL1:
		return c.igrpen1
	case sysreg.ICC_IAR1_EL1:
		return uint64(g.acknowledge(c))
	default:
		return 0
	}
}

// Write implements sysreg.CPU.
func (c *CPU) Write(reg sysreg.Reg, value uint64) {
	g := c.g
	g.mu.Lock()
	defer g.mu.Unlock()

	c.unsynced++
	switch reg {
	case sysreg.ICC_SRE_EL1:
		c.sreEL1 = value & (sysreg.SRE_SRE | sysreg.SRE_DFB | sysreg.SRE_DIB)
	case sysreg.ICC_SRE_EL2:
		c.sreEL2 = value & (sysreg.SRE_SRE | sysreg.SRE_DFB | sysreg.SRE_DIB | sysreg.SRE_EN)
	case sysreg.ICC_PMR_EL1:
		c.pmr = value & uint64(g.priorityMask())
	case sysreg.ICC_IGRPEN1_EL1:
		c.igrpen1 = value & sysreg.IGRPEN1_Enable
	case sysreg.ICC_EOIR1_EL1:
		g.endOfInterrupt(c, uint32(value&sysreg.IAR1_INTIDMask))
	case sysreg.ICC_SGI1R_EL1:
		c.sgis = append(c.sgis, value)
		g.deliverSGI(c, value)
	}
}

func (c *CPU) ISB() {
	c.g.mu.Lock()
	c.isbs++
	c.unsynced = 0
	c.g.mu.Unlock()
}

func (c *CPU) DSB() {
	c.g.mu.Lock()
	c.dsbs++
	c.g.mu.Unlock()
}

// Barriers returns the number of ISB and DSB instructions issued.
func (c *CPU) Barriers() (isb, dsb int) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.isbs, c.dsbs
}

// Unsynchronized returns the number of system register writes issued since
// the last ISB.
func (c *CPU) Unsynchronized() int {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.unsynced
}

// SentSGIs returns every value written to ICC_SGI1R_EL1 by this core.
func (c *CPU) SentSGIs() []uint64 {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return append([]uint64(nil), c.sgis...)
}

// deliverSGI sets the SGI pending on every core the ICC_SGI1R_EL1 value
// names.
func (g *GIC) deliverSGI(from *CPU, v uint64) {
	id := uint32(v>>sgi1rINTIDShift) & 0xf
	aff1 := v >> sgi1rAff1Shift & 0xff
	aff2 := v >> sgi1rAff2Shift & 0xff
	aff3 := v >> sgi1rAff3Shift & 0xff
	targets := v & 0xffff

	for _, c := range g.cpus {
		if v&sgi1rIRM != 0 {
			if c == from {
				continue
			}
		} else {
			m := c.mpidr
			if m>>8&0xff != aff1 || m>>16&0xff != aff2 || m>>32&0xff != aff3 {
				continue
			}
			aff0 := m & 0xff
			if aff0 >= 16 || targets&(1<<aff0) == 0 {
				continue
			}
		}
		g.rdists[c.index].pending |= 1 << id
	}
}

// acknowledge returns the highest priority pending Group 1 interrupt for c
// and makes it active. Ties go to the lowest INTID.
func (g *GIC) acknowledge(c *CPU) uint32 {
	if c.igrpen1&sysreg.IGRPEN1_Enable == 0 || g.dist.ctlr&ctlrEnableG1NS == 0 {
		return spuriousINTID
	}

	best := uint32(spuriousINTID)
	bestPrio := uint32(c.pmr)

	r := &g.rdists[c.index]
	ready := r.pending & r.enable & r.group &^ r.active
	for id := uint32(0); id < numPrivate; id++ {
		if ready&(1<<id) != 0 && uint32(r.priority[id]) < bestPrio {
			best, bestPrio = id, uint32(r.priority[id])
		}
	}

	d := &g.dist
	limit := g.SPILimit()
	for id := uint32(numPrivate); id < limit; id++ {
		w, bit := id>>5, uint32(1)<<(id&31)
		if (d.pending[w]&d.enable[w]&d.group[w]&^d.active[w])&bit == 0 {
			continue
		}
		if !d.routedTo(id, c.mpidr) || uint32(d.priority[id]) >= bestPrio {
			continue
		}
		best, bestPrio = id, uint32(d.priority[id])
	}

	switch {
	case best == spuriousINTID:
	case best < numPrivate:
		r.pending &^= 1 << best
		r.active |= 1 << best
	default:
		d.pending[best>>5] &^= 1 << (best & 31)
		d.active[best>>5] |= 1 << (best & 31)
	}
	return best
}

func (g *GIC) endOfInterrupt(c *CPU, id uint32) {
	switch {
	case id < numPrivate:
		g.rdists[c.index].active &^= 1 << id
	case id < g.SPILimit():
		g.dist.active[id>>5] &^= 1 << (id & 31)
	}
}

var _ sysreg.CPU = (*CPU)(nil)
