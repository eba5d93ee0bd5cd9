// Package gicv3 models an Arm GICv3 operating with affinity routing: one
// distributor, one redistributor per core and the per-core CPU interfaces.
// The distributor and redistributor regions are served as mmio.Handlers and
// each CPU interface as a sysreg.CPU, so a driver can be run against the
// model exactly as it would against hardware.
//
// The model assumes the state EL3 firmware leaves behind: system register
// access enabled at every exception level and private interrupts assigned
// to Group 1.
package gicv3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/gic/internal/mmio"
)

const (
	// DistributorSize is the size of the GICD register frame.
	DistributorSize = 0x10000
	// RedistributorStride is the size of one RD_base plus SGI_base pair.
	RedistributorStride = 0x20000

	// DefaultITLines gives the largest distributor, 1020 interrupt IDs.
	DefaultITLines = 31
	// DefaultPriorityBits implements every bit of the priority fields.
	DefaultPriorityBits = 8

	maxINTIDs     = 1024
	maxSPILimit   = 1020
	numPrivate    = 32
	spuriousINTID = 1023
)

var (
	errNoCores       = errors.New("gicv3: no cores")
	errBase          = errors.New("gicv3: base address not set")
	errUnaligned     = errors.New("gicv3: unaligned access")
	errOutsideModel  = errors.New("gicv3: access outside GIC regions")
	errByteWrite     = errors.New("gicv3: byte write to non-byte-accessible register")
	errPriorityWidth = errors.New("gicv3: priority bits must be in [4, 8]")
)

// Config describes the modelled GIC.
type Config struct {
	DistributorBase   uint64
	RedistributorBase uint64

	// MPIDRs holds the affinity of each core, in redistributor frame order.
	MPIDRs []uint64

	// ITLines is GICD_TYPER.ITLinesNumber. Zero selects DefaultITLines.
	ITLines uint32
	// PriorityBits is the number of implemented priority bits. Zero selects
	// DefaultPriorityBits.
	PriorityBits uint

	// RWPDelay is the number of GICD_CTLR reads that report RWP after each
	// GICD_CTLR write. RWPStuck keeps RWP set forever.
	RWPDelay int
	RWPStuck bool

	// ARE starts the distributor with affinity routing enabled for both
	// security states.
	ARE bool
	// NonSecure presents the Non-secure view of GICD_CTLR, as seen by a
	// kernel running in Non-secure state.
	NonSecure bool

	// NoLast clears GICR_TYPER.Last on every frame.
	NoLast bool
	// NoSystemRegisters reports no GIC system register interface in
	// ID_AA64PFR0_EL1.
	NoSystemRegisters bool
	// ExceptionLevel is reported by CurrentEL. Zero selects EL1.
	ExceptionLevel int

	Logger *slog.Logger
}

func (c *Config) normalize() {
	if c.ITLines == 0 {
		c.ITLines = DefaultITLines
	}
	if c.PriorityBits == 0 {
		c.PriorityBits = DefaultPriorityBits
	}
	if c.ExceptionLevel == 0 {
		c.ExceptionLevel = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Write is one MMIO write observed by the model.
type Write struct {
	Addr  uint64
	Size  int
	Value uint64
}

// GIC is the modelled interrupt controller. It is safe for concurrent use.
type GIC struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	dist   distributor
	rdists []redistributor
	cpus   []*CPU

	writes []Write
	reads  int
}

// New builds a GIC in its reset state.
func New(cfg Config) (*GIC, error) {
	if len(cfg.MPIDRs) == 0 {
		return nil, errNoCores
	}
	if cfg.DistributorBase == 0 || cfg.RedistributorBase == 0 {
		return nil, errBase
	}
	cfg.normalize()
	if cfg.PriorityBits < 4 || cfg.PriorityBits > 8 {
		return nil, errPriorityWidth
	}
	if cfg.ITLines > DefaultITLines {
		return nil, fmt.Errorf("gicv3: ITLinesNumber %d out of range", cfg.ITLines)
	}

	g := &GIC{
		cfg:    cfg,
		log:    cfg.Logger,
		rdists: make([]redistributor, len(cfg.MPIDRs)),
		cpus:   make([]*CPU, len(cfg.MPIDRs)),
	}
	for i, mpidr := range cfg.MPIDRs {
		g.rdists[i].typer = g.typerFor(i, mpidr)
		g.cpus[i] = &CPU{g: g, index: i, mpidr: mpidr & mpidrAffinityMask}
	}
	g.reset()
	return g, nil
}

func (g *GIC) reset() {
	g.resetDistributor()
	for i := range g.rdists {
		g.rdists[i].reset()
		g.cpus[i].reset()
	}
}

// ResetDistributor returns the distributor to its reset state, as after a
// power down of the system. Redistributors and CPU interfaces keep their
// state.
func (g *GIC) ResetDistributor() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDistributor()
}

// Cores returns the number of modelled cores.
func (g *GIC) Cores() int { return len(g.cpus) }

// CPU returns the CPU interface of core i.
func (g *GIC) CPU(i int) *CPU { return g.cpus[i] }

// SPILimit returns one past the largest implemented SPI.
func (g *GIC) SPILimit() uint32 {
	limit := (g.cfg.ITLines + 1) * 32
	if limit > maxSPILimit {
		return maxSPILimit
	}
	return limit
}

// Regions returns the distributor and redistributor regions.
func (g *GIC) Regions() []mmio.Region {
	return []mmio.Region{
		{Address: g.cfg.DistributorBase, Size: DistributorSize},
		{Address: g.cfg.RedistributorBase, Size: RedistributorStride * uint64(len(g.rdists))},
	}
}

// Attach registers both regions on m.
func (g *GIC) Attach(m *mmio.Map) error {
	for _, r := range g.Regions() {
		if err := m.Register(r, g); err != nil {
			return fmt.Errorf("gicv3: attach: %w", err)
		}
	}
	return nil
}

// Writes returns the MMIO writes observed since the last ResetLog.
func (g *GIC) Writes() []Write {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Write(nil), g.writes...)
}

// Reads returns the number of MMIO reads observed since the last ResetLog.
func (g *GIC) Reads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads
}

// ResetLog clears the write log and read counter.
func (g *GIC) ResetLog() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = nil
	g.reads = 0
}

// SetSPIPending drives the pending state of an SPI, as a peripheral
// asserting or releasing its interrupt line would.
func (g *GIC) SetSPIPending(intid uint32, pending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if intid < numPrivate || intid >= g.SPILimit() {
		return
	}
	if pending {
		g.dist.pending[intid>>5] |= 1 << (intid & 31)
	} else {
		g.dist.pending[intid>>5] &^= 1 << (intid & 31)
	}
}

// locate maps addr to a redistributor frame (or -1 for the distributor) and
// an offset inside it.
func (g *GIC) locate(addr uint64, size int) (int, uint64, error) {
	switch size {
	case 1, 4, 8:
	default:
		return 0, 0, fmt.Errorf("gicv3: %d-byte access at %#x: %w", size, addr, errUnaligned)
	}
	if addr%uint64(size) != 0 {
		return 0, 0, fmt.Errorf("gicv3: %d-byte access at %#x: %w", size, addr, errUnaligned)
	}

	regions := g.Regions()
	switch {
	case regions[0].Contains(addr, uint64(size)):
		return -1, addr - g.cfg.DistributorBase, nil
	case regions[1].Contains(addr, uint64(size)):
		off := addr - g.cfg.RedistributorBase
		return int(off / RedistributorStride), off % RedistributorStride, nil
	default:
		return 0, 0, fmt.Errorf("gicv3: %#x: %w", addr, errOutsideModel)
	}
}

func (g *GIC) read32(frame int, off uint64) uint32 {
	if frame < 0 {
		return g.readDistributor(off)
	}
	return g.readRedistributor(frame, off)
}

func (g *GIC) write32(frame int, off uint64, value uint32) {
	if frame < 0 {
		g.writeDistributor(off, value)
	} else {
		g.writeRedistributor(frame, off, value)
	}
}

// ReadMMIO implements mmio.Handler.
func (g *GIC) ReadMMIO(addr uint64, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	frame, off, err := g.locate(addr, len(data))
	if err != nil {
		return err
	}
	g.reads++

	var buf [8]byte
	word := off &^ 3
	words := (int(off&3) + len(data) + 3) / 4
	for w := 0; w < words; w++ {
		binary.LittleEndian.PutUint32(buf[w*4:], g.read32(frame, word+uint64(w)*4))
	}
	copy(data, buf[off&3:])
	return nil
}

// WriteMMIO implements mmio.Handler.
func (g *GIC) WriteMMIO(addr uint64, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	frame, off, err := g.locate(addr, len(data))
	if err != nil {
		return err
	}

	var buf [8]byte
	copy(buf[:], data)
	value := binary.LittleEndian.Uint64(buf[:])
	g.writes = append(g.writes, Write{Addr: addr, Size: len(data), Value: value})

	switch len(data) {
	case 1:
		if !g.writePriorityByte(frame, off, data[0]) {
			return fmt.Errorf("gicv3: %#x: %w", addr, errByteWrite)
		}
	case 4:
		g.write32(frame, off, uint32(value))
	case 8:
		g.write32(frame, off, uint32(value))
		g.write32(frame, off+4, uint32(value>>32))
	}
	return nil
}

func (g *GIC) priorityMask() uint8 {
	return uint8(0xff << (8 - g.cfg.PriorityBits))
}

func (g *GIC) writePriorityByte(frame int, off uint64, v uint8) bool {
	if frame < 0 {
		if off < gicdIpriorityr || off >= gicdIpriorityr+maxINTIDs {
			return false
		}
		g.setSPIPriority(uint32(off-gicdIpriorityr), v)
		return true
	}
	if off < gicrIpriorityr || off >= gicrIpriorityr+numPrivate {
		return false
	}
	g.rdists[frame].priority[off-gicrIpriorityr] = v & g.priorityMask()
	return true
}

var _ mmio.Handler = (*GIC)(nil)
