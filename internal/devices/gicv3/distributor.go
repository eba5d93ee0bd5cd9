package gicv3

// GIC Distributor offsets
const (
	gicdCtlr       = 0x0000 // Distributor Control Register
	gicdTyper      = 0x0004 // Interrupt Controller Type Register
	gicdIidr       = 0x0008 // Distributor Implementer Identification Register
	gicdTyper2     = 0x000C // Interrupt Controller Type Register 2
	gicdIgroupr    = 0x0080 // Interrupt Group Registers
	gicdIsenabler  = 0x0100 // Interrupt Set-Enable Registers
	gicdIcenabler  = 0x0180 // Interrupt Clear-Enable Registers
	gicdIspendr    = 0x0200 // Interrupt Set-Pending Registers
	gicdIcpendr    = 0x0280 // Interrupt Clear-Pending Registers
	gicdIsactiver  = 0x0300 // Interrupt Set-Active Registers
	gicdIcactiver  = 0x0380 // Interrupt Clear-Active Registers
	gicdIpriorityr = 0x0400 // Interrupt Priority Registers
	gicdIcfgr      = 0x0C00 // Interrupt Configuration Registers
	gicdIgrpmodr   = 0x0D00 // Interrupt Group Modifier Registers
	gicdIrouter    = 0x6000 // Interrupt Routing Registers
	gicdPidr2      = 0xFFE8 // Peripheral ID 2

	bitmapSize  = maxINTIDs / 8
	icfgrSize   = maxINTIDs / 4
	irouterSize = maxINTIDs * 8

	implementerARM  = 0x0200043B
	gicArchRevGICv3 = 0x30
)

// GICD_CTLR bits (Secure view)
const (
	ctlrEnableG0   = 1 << 0
	ctlrEnableG1NS = 1 << 1
	ctlrEnableG1S  = 1 << 2
	ctlrARES       = 1 << 4
	ctlrARENS      = 1 << 5
	ctlrRWP        = 1 << 31

	ctlrWritable = ctlrEnableG0 | ctlrEnableG1NS | ctlrEnableG1S | ctlrARES | ctlrARENS
)

// GICD_CTLR bits (Non-secure view)
const (
	nsCtlrEnableG1A = 1 << 1
	nsCtlrARE       = 1 << 4
)

// nsCtlr returns the Non-secure view of the Secure-view value ctlr.
func nsCtlr(ctlr uint32) uint32 {
	var v uint32
	if ctlr&ctlrEnableG1NS != 0 {
		v |= nsCtlrEnableG1A
	}
	if ctlr&ctlrARENS != 0 {
		v |= nsCtlrARE
	}
	return v
}

// writeNSCtlr applies a Non-secure GICD_CTLR write. Only the Group 1 enable
// changes; ARE_NS can be set but not cleared.
func writeNSCtlr(ctlr, value uint32) uint32 {
	ctlr &^= ctlrEnableG1NS
	if value&nsCtlrEnableG1A != 0 {
		ctlr |= ctlrEnableG1NS
	}
	if value&nsCtlrARE != 0 {
		ctlr |= ctlrARENS
	}
	return ctlr
}

const (
	typerCPUNumberShift = 5
	typerSecurityExtn   = 1 << 10
	typerIDBitsShift    = 19
	typerIDBits         = 9 // 10 INTID bits

	irouterIRM      = 1 << 31
	irouterWritable = uint64(mpidrAffinityMask) | irouterIRM

	mpidrAffinityMask = 0xff00ffffff

	icfgrEdgeBits = 0xAAAAAAAA
)

type distributor struct {
	ctlr uint32
	rwp  int

	group   [maxINTIDs / 32]uint32
	grpmod  [maxINTIDs / 32]uint32
	enable  [maxINTIDs / 32]uint32
	pending [maxINTIDs / 32]uint32
	active  [maxINTIDs / 32]uint32

	priority [maxINTIDs]uint8
	icfgr    [maxINTIDs / 16]uint32
	route    [maxINTIDs]uint64
}

func (g *GIC) resetDistributor() {
	g.dist = distributor{}
	if g.cfg.ARE {
		g.dist.ctlr = ctlrARES | ctlrARENS
	}
}

func inRange(off, base, size uint64) bool {
	return off >= base && off < base+size
}

// bitmapMask returns the implemented bits of word w of a one-bit-per-INTID
// distributor register. The private word is RAZ/WI under affinity routing.
func (g *GIC) bitmapMask(w uint64) uint32 {
	first := uint32(w) * 32
	limit := g.SPILimit()
	if first < numPrivate || first >= limit {
		return 0
	}
	if n := limit - first; n < 32 {
		return 1<<n - 1
	}
	return ^uint32(0)
}

// icfgrMask returns the writable Int_config bits of ICFGR word w.
func (g *GIC) icfgrMask(w uint64) uint32 {
	var mask uint32
	limit := g.SPILimit()
	for k := uint32(0); k < 16; k++ {
		id := uint32(w)*16 + k
		if id >= numPrivate && id < limit {
			mask |= 2 << (2 * k)
		}
	}
	return mask
}

func (g *GIC) spiImplemented(id uint32) bool {
	return id >= numPrivate && id < g.SPILimit()
}

func (g *GIC) setSPIPriority(id uint32, v uint8) {
	if g.spiImplemented(id) {
		g.dist.priority[id] = v & g.priorityMask()
	}
}

func (g *GIC) readDistributor(off uint64) uint32 {
	d := &g.dist

	switch {
	case off == gicdCtlr:
		v := d.ctlr
		if g.cfg.NonSecure {
			v = nsCtlr(v)
		}
		if g.cfg.RWPStuck || d.rwp > 0 {
			v |= ctlrRWP
			if d.rwp > 0 {
				d.rwp--
			}
		}
		return v
	case off == gicdTyper:
		return g.cfg.ITLines |
			uint32(len(g.cpus)-1)&0x7<<typerCPUNumberShift |
			typerSecurityExtn |
			typerIDBits<<typerIDBitsShift
	case off == gicdIidr:
		return implementerARM
	case off == gicdTyper2:
		return 0
	case off == gicdPidr2:
		return gicArchRevGICv3
	case inRange(off, gicdIgroupr, bitmapSize):
		w := (off - gicdIgroupr) / 4
		return d.group[w] & g.bitmapMask(w)
	case inRange(off, gicdIsenabler, bitmapSize):
		w := (off - gicdIsenabler) / 4
		return d.enable[w] & g.bitmapMask(w)
	case inRange(off, gicdIcenabler, bitmapSize):
		w := (off - gicdIcenabler) / 4
		return d.enable[w] & g.bitmapMask(w)
	case inRange(off, gicdIspendr, bitmapSize):
		w := (off - gicdIspendr) / 4
		return d.pending[w] & g.bitmapMask(w)
	case inRange(off, gicdIcpendr, bitmapSize):
		w := (off - gicdIcpendr) / 4
		return d.pending[w] & g.bitmapMask(w)
	case inRange(off, gicdIsactiver, bitmapSize):
		w := (off - gicdIsactiver) / 4
		return d.active[w] & g.bitmapMask(w)
	case inRange(off, gicdIcactiver, bitmapSize):
		w := (off - gicdIcactiver) / 4
		return d.active[w] & g.bitmapMask(w)
	case inRange(off, gicdIpriorityr, maxINTIDs):
		id := off - gicdIpriorityr
		return uint32(d.priority[id]) | uint32(d.priority[id+1])<<8 |
			uint32(d.priority[id+2])<<16 | uint32(d.priority[id+3])<<24
	case inRange(off, gicdIcfgr, icfgrSize):
		w := (off - gicdIcfgr) / 4
		return d.icfgr[w] & g.icfgrMask(w)
	case inRange(off, gicdIgrpmodr, bitmapSize):
		w := (off - gicdIgrpmodr) / 4
		return d.grpmod[w] & g.bitmapMask(w)
	case inRange(off, gicdIrouter, irouterSize):
		id := (off - gicdIrouter) / 8
		v := d.route[id]
		if off&4 != 0 {
			return uint32(v >> 32)
		}
		return uint32(v)
	default:
		g.log.Debug("gicv3: unhandled distributor read", "offset", off)
		return 0
	}
}

func (g *GIC) writeDistributor(off uint64, value uint32) {
	d := &g.dist

	switch {
	case off == gicdCtlr:
		if g.cfg.NonSecure {
			d.ctlr = writeNSCtlr(d.ctlr, value)
		} else {
			d.ctlr = value & ctlrWritable
		}
		d.rwp = g.cfg.RWPDelay
	case inRange(off, gicdIgroupr, bitmapSize):
		w := (off - gicdIgroupr) / 4
		d.group[w] = value & g.bitmapMask(w)
	case inRange(off, gicdIsenabler, bitmapSize):
		w := (off - gicdIsenabler) / 4
		d.enable[w] |= value & g.bitmapMask(w)
	case inRange(off, gicdIcenabler, bitmapSize):
		w := (off - gicdIcenabler) / 4
		d.enable[w] &^= value & g.bitmapMask(w)
	case inRange(off, gicdIspendr, bitmapSize):
		w := (off - gicdIspendr) / 4
		d.pending[w] |= value & g.bitmapMask(w)
	case inRange(off, gicdIcpendr, bitmapSize):
		w := (off - gicdIcpendr) / 4
		d.pending[w] &^= value & g.bitmapMask(w)
	case inRange(off, gicdIsactiver, bitmapSize):
		w := (off - gicdIsactiver) / 4
		d.active[w] |= value & g.bitmapMask(w)
	case inRange(off, gicdIcactiver, bitmapSize):
		w := (off - gicdIcactiver) / 4
		d.active[w] &^= value & g.bitmapMask(w)
	case inRange(off, gicdIpriorityr, maxINTIDs):
		id := uint32(off - gicdIpriorityr)
		for k := uint32(0); k < 4; k++ {
			g.setSPIPriority(id+k, uint8(value>>(8*k)))
		}
	case inRange(off, gicdIcfgr, icfgrSize):
		w := (off - gicdIcfgr) / 4
		d.icfgr[w] = value & g.icfgrMask(w)
	case inRange(off, gicdIgrpmodr, bitmapSize):
		w := (off - gicdIgrpmodr) / 4
		d.grpmod[w] = value & g.bitmapMask(w)
	case inRange(off, gicdIrouter, irouterSize):
		id := uint32((off - gicdIrouter) / 8)
		if !g.spiImplemented(id) {
			return
		}
		v := d.route[id]
		if off&4 != 0 {
			v = v&0xffffffff | uint64(value)<<32
		} else {
			v = v&^0xffffffff | uint64(value)
		}
		d.route[id] = v & irouterWritable
	default:
		g.log.Debug("gicv3: unhandled distributor write", "offset", off, "value", value)
	}
}

// routedTo reports whether SPI id is delivered to the core with affinity
// mpidr.
func (d *distributor) routedTo(id uint32, mpidr uint64) bool {
	r := d.route[id]
	if r&irouterIRM != 0 {
		return true
	}
	return r&mpidrAffinityMask == mpidr&mpidrAffinityMask
}
