package gicv3

// GICv3 register offsets within one redistributor frame pair
const (
	// RD_base
	gicrCtlr  = 0x0000 // Redistributor Control Register
	gicrIidr  = 0x0004 // Implementer Identification Register
	gicrTyper = 0x0008 // Redistributor Type Register (64-bit)
	gicrWaker = 0x0014 // Redistributor Wake Register

	// SGI_base
	gicrSGIOffset  = 0x10000
	gicrIgroupr0   = gicrSGIOffset + 0x0080
	gicrIsenabler0 = gicrSGIOffset + 0x0100
	gicrIcenabler0 = gicrSGIOffset + 0x0180
	gicrIspendr0   = gicrSGIOffset + 0x0200
	gicrIcpendr0   = gicrSGIOffset + 0x0280
	gicrIsactiver0 = gicrSGIOffset + 0x0300
	gicrIcactiver0 = gicrSGIOffset + 0x0380
	gicrIpriorityr = gicrSGIOffset + 0x0400 // IPRIORITYR0-7
	gicrIcfgr0     = gicrSGIOffset + 0x0C00 // SGIs, read-only
	gicrIcfgr1     = gicrSGIOffset + 0x0C04 // PPIs
	gicrIgrpmodr0  = gicrSGIOffset + 0x0D00

	gicrPidr2RDBase  = 0xFFE8
	gicrPidr2SGIBase = gicrSGIOffset + 0xFFE8
)

// GICR_TYPER and GICR_WAKER fields
const (
	rtyperLast          = 1 << 4
	rtyperProcNumShift  = 8
	rtyperAffinityShift = 32

	wakerProcessorSleep = 1 << 1
	wakerChildrenAsleep = 1 << 2
)

type redistributor struct {
	typer uint64
	waker uint32

	group   uint32
	grpmod  uint32
	enable  uint32
	pending uint32
	active  uint32

	priority [numPrivate]uint8
	icfgr1   uint32
}

func (r *redistributor) reset() {
	typer := r.typer
	*r = redistributor{
		typer: typer,
		waker: wakerProcessorSleep | wakerChildrenAsleep,
		group: ^uint32(0),
	}
}

// typerFor builds GICR_TYPER for frame i: the core's affinity with Aff3 in the
// top byte, the processor number and the Last bit on the final frame.
func (g *GIC) typerFor(i int, mpidr uint64) uint64 {
	aff := mpidr&0xffffff | (mpidr>>32&0xff)<<24
	typer := aff<<rtyperAffinityShift | uint64(i)<<rtyperProcNumShift
	if i == len(g.cfg.MPIDRs)-1 && !g.cfg.NoLast {
		typer |= rtyperLast
	}
	return typer
}

func (g *GIC) readRedistributor(frame int, off uint64) uint32 {
	r := &g.rdists[frame]

	switch off {
	case gicrCtlr:
		return 0
	case gicrIidr:
		return implementerARM
	case gicrTyper:
		return uint32(r.typer)
	case gicrTyper + 4:
		return uint32(r.typer >> 32)
	case gicrWaker:
		return r.waker
	case gicrPidr2RDBase, gicrPidr2SGIBase:
		return gicArchRevGICv3
	case gicrIgroupr0:
		return r.group
	case gicrIsenabler0, gicrIcenabler0:
		return r.enable
	case gicrIspendr0, gicrIcpendr0:
		return r.pending
	case gicrIsactiver0, gicrIcactiver0:
		return r.active
	case gicrIcfgr0:
		return icfgrEdgeBits
	case gicrIcfgr1:
		return r.icfgr1
	case gicrIgrpmodr0:
		return r.grpmod
	}

	if inRange(off, gicrIpriorityr, numPrivate) {
		id := off - gicrIpriorityr
		return uint32(r.priority[id]) | uint32(r.priority[id+1])<<8 |
			uint32(r.priority[id+2])<<16 | uint32(r.priority[id+3])<<24
	}

	g.log.Debug("gicv3: unhandled redistributor read", "frame", frame, "offset", off)
	return 0
}

func (g *GIC) writeRedistributor(frame int, off uint64, value uint32) {
	r := &g.rdists[frame]

	switch off {
	case gicrWaker:
		// ChildrenAsleep follows ProcessorSleep.
		if value&wakerProcessorSleep == 0 {
			r.waker = 0
		} else {
			r.waker = wakerProcessorSleep | wakerChildrenAsleep
		}
		return
	case gicrIgroupr0:
		r.group = value
		return
	case gicrIsenabler0:
		r.enable |= value
		return
	case gicrIcenabler0:
		r.enable &^= value
		return
	case gicrIspendr0:
		r.pending |= value
		return
	case gicrIcpendr0:
		r.pending &^= value
		return
	case gicrIsactiver0:
		r.active |= value
		return
	case gicrIcactiver0:
		r.active &^= value
		return
	case gicrIcfgr1:
		r.icfgr1 = value & icfgrEdgeBits
		return
	case gicrIgrpmodr0:
		r.grpmod = value
		return
	}

	if inRange(off, gicrIpriorityr, numPrivate) {
		id := off - gicrIpriorityr
		for k := uint64(0); k < 4; k++ {
			r.priority[id+k] = uint8(value>>(8*k)) & g.priorityMask()
		}
		return
	}

	g.log.Debug("gicv3: unhandled redistributor write", "frame", frame, "offset", off, "value", value)
}
