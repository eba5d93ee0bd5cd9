package gic

import "fmt"

// MPIDR is a core's multiprocessor affinity identifier as read from MPIDR_EL1.
type MPIDR uint64

const (
	mpidrAffLevelMask = 0xff
	mpidrAff0Shift    = 0
	mpidrAff1Shift    = 8
	mpidrAff2Shift    = 16
	mpidrAff3Shift    = 32

	// MPIDRAffinityMask selects Aff3..Aff0, dropping the MT, U and RES bits.
	MPIDRAffinityMask MPIDR = mpidrAffLevelMask<<mpidrAff3Shift |
		mpidrAffLevelMask<<mpidrAff2Shift |
		mpidrAffLevelMask<<mpidrAff1Shift |
		mpidrAffLevelMask<<mpidrAff0Shift

	mpidrAff3Mask MPIDR = mpidrAffLevelMask << mpidrAff3Shift
)

var affShifts = [4]uint{mpidrAff0Shift, mpidrAff1Shift, mpidrAff2Shift, mpidrAff3Shift}

// NewMPIDR packs four affinity levels.
func NewMPIDR(aff3, aff2, aff1, aff0 uint8) MPIDR {
	return MPIDR(aff3)<<mpidrAff3Shift |
		MPIDR(aff2)<<mpidrAff2Shift |
		MPIDR(aff1)<<mpidrAff1Shift |
		MPIDR(aff0)<<mpidrAff0Shift
}

// Aff returns affinity level 0-3. Any other level panics.
func (m MPIDR) Aff(level int) uint8 {
	if level < 0 || level >= len(affShifts) {
		panic(fmt.Sprintf("gic: affinity level %d out of range", level))
	}
	return uint8(m >> affShifts[level])
}

// Affinity returns m with everything but the affinity fields cleared.
func (m MPIDR) Affinity() MPIDR { return m & MPIDRAffinityMask }

func (m MPIDR) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", m.Aff(3), m.Aff(2), m.Aff(1), m.Aff(0))
}

// TyperAffinity returns the 32-bit affinity value a redistributor reports in
// GICR_TYPER[63:32] for the core identified by m: Aff3 moves down next to
// Aff2.
func TyperAffinity(m MPIDR) uint32 {
	m = m.Affinity()
	return uint32((m &^ mpidrAff3Mask) | (m&mpidrAff3Mask)>>8)
}

// RoutingMode is GICD_IROUTER.Interrupt_Routing_Mode.
type RoutingMode uint64

const (
	// RouteToCore delivers the SPI to the core named by the affinity fields.
	RouteToCore RoutingMode = 0
	// RouteToAny delivers the SPI to any participating core.
	RouteToAny RoutingMode = 1

	irouterIRMShift = 31
)

// IRouterValue returns the GICD_IROUTER<n> value that routes an SPI to m.
func IRouterValue(m MPIDR, mode RoutingMode) uint64 {
	return uint64(m.Affinity()) | uint64(mode&1)<<irouterIRMShift
}

// ICC_SGI1R_EL1 fields
const (
	sgi1rTargetListMask = 0xffff
	sgi1rAffMask        = 0xff
	sgi1rAff1Shift      = 16
	sgi1rAff2Shift      = 32
	sgi1rAff3Shift      = 48
	sgi1rINTIDMask      = 0xf
	sgi1rINTIDShift     = 24

	// sgiTargetMaxAff0 bounds the Aff0 values a target list can name.
	sgiTargetMaxAff0 = 16
)

// SGI1RValue builds the ICC_SGI1R_EL1 value that signals SGI id to the single
// core target.
func SGI1RValue(id INTID, target MPIDR) (uint64, error) {
	if id.Class() != ClassSGI {
		return 0, fmt.Errorf("gic: %s: %w", id, ErrNotSGI)
	}
	aff0 := uint64(target.Aff(0))
	if aff0 >= sgiTargetMaxAff0 {
		return 0, fmt.Errorf("gic: target %s: %w", target, ErrAff0OutOfRange)
	}
	targetList := uint64(1) << aff0

	v := (uint64(target.Aff(3))&sgi1rAffMask)<<sgi1rAff3Shift |
		(uint64(target.Aff(2))&sgi1rAffMask)<<sgi1rAff2Shift |
		(uint64(target.Aff(1))&sgi1rAffMask)<<sgi1rAff1Shift |
		targetList&sgi1rTargetListMask
	v |= (uint64(id.Raw()) & sgi1rINTIDMask) << sgi1rINTIDShift
	return v, nil
}
