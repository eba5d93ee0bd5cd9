package gic

import "github.com/tinyrange/gic/internal/mmio"

// GIC Distributor offsets
const (
	gicdCtlr       = 0x0000 // Distributor Control Register
	gicdTyper      = 0x0004 // Interrupt Controller Type Register
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
	gicdIrouter    = 0x6000 // Interrupt Routing Registers (64-bit, per SPI)
)

// GICD_CTLR bits (Secure access view)
const (
	ctlrEnableG0   = 1 << 0
	ctlrEnableG1NS = 1 << 1
	ctlrEnableG1S  = 1 << 2
	ctlrARES       = 1 << 4
	ctlrARENS      = 1 << 5
	ctlrRWP        = 1 << 31
)

// GICD_CTLR bits as seen by Non-secure accesses. RWP is at bit 31 in both
// views.
const (
	nsCtlrEnableG1A = 1 << 1
	nsCtlrARE       = 1 << 4
)

// GICD_TYPER fields
const (
	typerITLinesMask = 0x1f
)

// GIC Redistributor layout. Each redistributor is an RD_base frame followed by
// an SGI_base frame, 64KB each.
const (
	gicrFrameStride = 1 << 17
	gicrSGIOffset   = 1 << 16

	gicrTyper = 0x0008 // Redistributor Type Register (64-bit)
)

// GICR_TYPER fields
const (
	rtyperLast          = 1 << 4
	rtyperProcNumShift  = 8
	rtyperProcNumMask   = 0xffff
	rtyperAffinityShift = 32
)

// Priority values.
const (
	// PriorityMask is the implemented width of a priority field as seen by
	// the driver.
	PriorityMask = 0xff

	HighestPriority         = 0x00
	LowestNonSecurePriority = 0xfe // 0xff would never be signalled

	// DefaultSPIPriority is applied to every SPI by ConfigureSPIDefaults.
	DefaultSPIPriority = LowestNonSecurePriority
	// SecureSPIPriority is applied to SPIs configured by EnableSecureSPIs.
	SecureSPIPriority = HighestPriority
)

// regFamily describes a bank of 32-bit registers holding a fixed-width field
// for each interrupt identifier.
type regFamily struct {
	offset uint64
	shift  uint // log2 of identifiers per 32-bit word
	width  uint // field width in bits
}

var (
	igroupr    = regFamily{offset: gicdIgroupr, shift: 5, width: 1}
	isenabler  = regFamily{offset: gicdIsenabler, shift: 5, width: 1}
	icenabler  = regFamily{offset: gicdIcenabler, shift: 5, width: 1}
	ispendr    = regFamily{offset: gicdIspendr, shift: 5, width: 1}
	icpendr    = regFamily{offset: gicdIcpendr, shift: 5, width: 1}
	isactiver  = regFamily{offset: gicdIsactiver, shift: 5, width: 1}
	icactiver  = regFamily{offset: gicdIcactiver, shift: 5, width: 1}
	ipriorityr = regFamily{offset: gicdIpriorityr, shift: 2, width: 8}
	icfgr      = regFamily{offset: gicdIcfgr, shift: 4, width: 2}
	igrpmodr   = regFamily{offset: gicdIgrpmodr, shift: 5, width: 1}
)

// idsPerWord returns how many identifiers share one register.
func (f regFamily) idsPerWord() uint32 { return 1 << f.shift }

// wordAddr returns the address of the register holding id's field.
func (f regFamily) wordAddr(base uint64, id uint32) uint64 {
	return base + f.offset + uint64(id>>f.shift)<<2
}

// fieldShift returns the bit offset of id's field within its register.
func (f regFamily) fieldShift(id uint32) uint {
	return uint(id&(f.idsPerWord()-1)) * f.width
}

func (f regFamily) fieldMask() uint32 {
	return 1<<f.width - 1
}

// regs accesses the interrupt register families of one block: either the
// distributor or a redistributor's SGI_base frame. The offsets of the two
// coincide for the families used here.
type regs struct {
	bus  mmio.Bus
	base uint64
}

func (r regs) read(f regFamily, id uint32) uint32 {
	return r.bus.Read32(f.wordAddr(r.base, id))
}

func (r regs) write(f regFamily, id uint32, value uint32) {
	r.bus.Write32(f.wordAddr(r.base, id), value)
}

// bit reports the single-bit field for id.
func (r regs) bit(f regFamily, id uint32) bool {
	return r.read(f, id)&(1<<f.fieldShift(id)) != 0
}

// strobe writes a one to id's bit and zeros elsewhere, for the write-1-to-set
// and write-1-to-clear families.
func (r regs) strobe(f regFamily, id uint32) {
	r.write(f, id, 1<<f.fieldShift(id))
}

// setBit and clearBit are read-modify-write updates for plain RW families.
func (r regs) setBit(f regFamily, id uint32) {
	mmio.SetBits32(r.bus, f.wordAddr(r.base, id), 1<<f.fieldShift(id))
}

func (r regs) clearBit(f regFamily, id uint32) {
	mmio.ClearBits32(r.bus, f.wordAddr(r.base, id), 1<<f.fieldShift(id))
}

func (r regs) field(f regFamily, id uint32) uint32 {
	return (r.read(f, id) >> f.fieldShift(id)) & f.fieldMask()
}

func (r regs) setField(f regFamily, id uint32, value uint32) {
	shift := f.fieldShift(id)
	mmio.ClearSetBits32(r.bus, f.wordAddr(r.base, id),
		f.fieldMask()<<shift, (value&f.fieldMask())<<shift)
}

// Priority registers are byte accessible.
func (r regs) priority(id uint32) uint8 {
	return r.bus.Read8(r.base+gicdIpriorityr+uint64(id)) & PriorityMask
}

func (r regs) setPriority(id uint32, priority uint8) {
	r.bus.Write8(r.base+gicdIpriorityr+uint64(id), priority&PriorityMask)
}

func replicatePriority(p uint8) uint32 {
	v := uint32(p)
	return v | v<<8 | v<<16 | v<<24
}
