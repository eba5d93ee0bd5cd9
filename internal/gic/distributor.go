package gic

import (
	"fmt"

	"github.com/tinyrange/gic/internal/mmio"
	"github.com/tinyrange/gic/internal/sysreg"
)

// Group is an interrupt group.
type Group uint8

const (
	Group1Secure Group = iota
	Group0
	Group1NonSecure
)

func (g Group) String() string {
	switch g {
	case Group1Secure:
		return "G1S"
	case Group0:
		return "G0"
	case Group1NonSecure:
		return "G1NS"
	default:
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
}

// Trigger is the GICD_ICFGR/GICR_ICFGR Int_config field.
type Trigger uint32

const (
	TriggerLevel Trigger = 0b00
	TriggerEdge  Trigger = 0b10
)

// SecureSPI names an SPI to be configured as secure, and its group.
type SecureSPI struct {
	ID    INTID
	Group Group
}

func (d *Driver) readCtlr() uint32 { return d.bus.Read32(d.cfg.DistributorBase + gicdCtlr) }

func (d *Driver) writeCtlr(v uint32) { d.bus.Write32(d.cfg.DistributorBase+gicdCtlr, v) }

// waitRWP spins until the distributor reports that the last GICD_CTLR write
// has taken effect.
func (d *Driver) waitRWP() error {
	for n := 0; n < d.cfg.RWPPollLimit; n++ {
		if d.readCtlr()&ctlrRWP == 0 {
			return nil
		}
	}
	d.log.Error("gic: RWP did not clear", "polls", d.cfg.RWPPollLimit)
	return fmt.Errorf("gic: after %d polls: %w", d.cfg.RWPPollLimit, ErrRWPTimeout)
}

func (d *Driver) setCtlr(bits uint32) error {
	d.writeCtlr(d.readCtlr() | bits)
	return d.waitRWP()
}

func (d *Driver) clearCtlr(bits uint32) error {
	d.writeCtlr(d.readCtlr() &^ bits)
	return d.waitRWP()
}

func spiLimit(typer uint32) uint32 {
	limit := ((typer & typerITLinesMask) + 1) << 5
	// INTIDs 1020-1023 are special.
	if limit > MaxSPIID+1 {
		return MaxSPIID + 1
	}
	return limit
}

// SPILimit returns the maximum SPI INTID plus one, as implemented by the
// distributor.
func (s *System) SPILimit() uint32 {
	return spiLimit(s.d.bus.Read32(s.d.cfg.DistributorBase + gicdTyper))
}

// DistributorInfo is a read-only snapshot of the distributor identification
// and control state, decoded from the Non-secure view of GICD_CTLR.
type DistributorInfo struct {
	CTLR     uint32
	TYPER    uint32
	SPILimit uint32

	AffinityRouting bool // ARE_NS
	Group1Enabled   bool // EnableGrp1NS
	WritePending    bool // RWP
}

// ReadDistributorInfo reads the distributor at base without modifying it.
func ReadDistributorInfo(bus mmio.Bus, base uint64) DistributorInfo {
	ctlr := bus.Read32(base + gicdCtlr)
	typer := bus.Read32(base + gicdTyper)
	return DistributorInfo{
		CTLR:            ctlr,
		TYPER:           typer,
		SPILimit:        spiLimit(typer),
		AffinityRouting: ctlr&nsCtlrARE != 0,
		Group1Enabled:   ctlr&nsCtlrEnableG1A != 0,
		WritePending:    ctlr&ctlrRWP != 0,
	}
}

// ConfigureSPIDefaults makes every implemented SPI Group 1 Non-secure, level
// triggered and DefaultSPIPriority. Each loop writes whole registers: 32 group
// bits, 4 priorities or 16 trigger fields at a time.
func (s *System) ConfigureSPIDefaults() {
	limit := s.SPILimit()
	dist := s.d.dist

	for id := uint32(MinSPIID); id < limit; id += igroupr.idsPerWord() {
		dist.write(igroupr, id, ^uint32(0))
	}
	prio := replicatePriority(DefaultSPIPriority)
	for id := uint32(MinSPIID); id < limit; id += ipriorityr.idsPerWord() {
		dist.write(ipriorityr, id, prio)
	}
	for id := uint32(MinSPIID); id < limit; id += icfgr.idsPerWord() {
		dist.write(icfgr, id, uint32(TriggerLevel))
	}
}

// SetupDistributor applies the SPI defaults and enables forwarding of
// Group 1 Non-secure interrupts. It runs in Non-secure state, after firmware
// has enabled affinity routing for it.
func (s *System) SetupDistributor() error {
	return s.setupDistributor(s.boot)
}

func (s *System) setupDistributor(cpu sysreg.CPU) error {
	if err := checkSystemRegisters(cpu); err != nil {
		return err
	}

	ctlr := s.d.readCtlr()
	if ctlr&nsCtlrARE == 0 {
		s.d.log.Warn("gic: distributor affinity routing disabled", "ctlr", fmt.Sprintf("%#x", ctlr))
		return fmt.Errorf("gic: setup distributor: %w", ErrAffinityRoutingDisabled)
	}

	s.ConfigureSPIDefaults()
	if err := s.d.setCtlr(nsCtlrEnableG1A); err != nil {
		return fmt.Errorf("gic: enable group 1: %w", err)
	}
	return nil
}

// EnableSecureSPIs runs in Secure state, using the Secure view of GICD_CTLR.
// It reconfigures the distributor for affinity routing in both security states and enables each requested SPI as a secure interrupt routed
// to the boot core.
//
// The group enables are dropped before ARE is changed and restored only for
// the groups the requests use.
func (s *System) EnableSecureSPIs(reqs ...SecureSPI) error {
	for _, req := range reqs {
		if req.ID.Class() != ClassSPI {
			return fmt.Errorf("gic: secure %s: %w", req.ID, ErrNotSPI)
		}
		if req.Group != Group0 && req.Group != Group1Secure {
			return fmt.Errorf("gic: secure %s in %s: %w", req.ID, req.Group, ErrInvalidGroup)
		}
	}

	d := s.d
	if err := d.clearCtlr(ctlrEnableG0 | ctlrEnableG1S | ctlrEnableG1NS); err != nil {
		return fmt.Errorf("gic: disable groups: %w", err)
	}
	if err := d.setCtlr(ctlrARES | ctlrARENS); err != nil {
		return fmt.Errorf("gic: enable affinity routing: %w", err)
	}

	s.ConfigureSPIDefaults()

	route := IRouterValue(MPIDR(s.boot.Read(sysreg.MPIDR_EL1)), RouteToCore)
	var enable uint32
	for _, req := range reqs {
		id := req.ID.Raw()

		d.dist.clearBit(igroupr, id)
		if req.Group == Group1Secure {
			d.dist.setBit(igrpmodr, id)
			enable |= ctlrEnableG1S
		} else {
			d.dist.clearBit(igrpmodr, id)
			enable |= ctlrEnableG0
		}

		d.dist.setField(icfgr, id, uint32(TriggerLevel))
		d.dist.setPriority(id, SecureSPIPriority)
		d.writeRoute(req.ID, route)
		d.dist.strobe(isenabler, id)

		d.log.Debug("gic: secure SPI enabled", "intid", id, "group", req.Group.String())
	}

	if err := d.setCtlr(enable); err != nil {
		return fmt.Errorf("gic: enable secure groups: %w", err)
	}
	return nil
}

// writeRoute writes GICD_IROUTER<id>. id must be an SPI.
func (d *Driver) writeRoute(id INTID, value uint64) {
	d.bus.Write64(d.cfg.DistributorBase+gicdIrouter+uint64(id.Raw())<<3, value)
}
