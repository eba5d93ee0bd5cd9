// Package gic drives an Arm GICv3 interrupt controller: the distributor shared
// by all cores, one redistributor per core, and the CPU interface each core
// reaches through its system registers.
//
// Ownership follows the hardware. Init returns the single System handle, which
// configures the distributor and performs the system-wide context sweep; its
// caller serialises every use of it. Each core obtains its own Core handle from
// the Driver, passing the sysreg.CPU of the core it is running on, and uses it
// for the operations local to that core.
package gic

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/gic/internal/mmio"
	"github.com/tinyrange/gic/internal/sysreg"
)

// CoreIndex is a dense core position in [0, Config.Cores).
type CoreIndex int

// coreState is one slot of the per-core arena. Only the owning core writes it,
// except during System.SaveGlobal and System.RestoreGlobal.
type coreState struct {
	probed bool
	frame  uint64 // RD_base of the core's redistributor
	mpidr  MPIDR

	suspended   bool
	localSaved  bool
	globalSaved bool
	ctx         CPUContext
}

// Driver is the state shared by every handle of one GIC.
type Driver struct {
	cfg   Config
	bus   mmio.Bus
	plat  CorePositioner
	log   *slog.Logger
	dist  regs
	cores []coreState
}

// System is the system-wide handle. There is exactly one per Init call.
type System struct {
	d    *Driver
	boot sysreg.CPU
}

// Init records the GIC layout and reserves a context slot for every core.
// boot is the system registers of the calling core, which becomes the target
// of secure SPIs configured through the returned System.
func Init(cfg Config, bus mmio.Bus, boot sysreg.CPU, plat CorePositioner) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	d := &Driver{
		cfg:   cfg,
		bus:   bus,
		plat:  plat,
		log:   cfg.Logger,
		dist:  regs{bus: bus, base: cfg.DistributorBase},
		cores: make([]coreState, cfg.Cores),
	}
	return &System{d: d, boot: boot}, nil
}

// Bringup initialises the driver, configures the distributor and sets up the
// calling core's redistributor and CPU interface.
func Bringup(cfg Config, bus mmio.Bus, boot sysreg.CPU, plat CorePositioner) (*System, *Core, error) {
	sys, err := Init(cfg, bus, boot, plat)
	if err != nil {
		return nil, nil, err
	}
	if !sysreg.GICv3Mode(boot) {
		err := checkSystemRegisters(boot)
		sys.d.log.Error("gic: GICv3 mode not available", "err", err)
		return nil, nil, err
	}
	sys.d.log.Info("gic: GICv3 mode detected")

	if err := sys.SetupDistributor(); err != nil {
		return nil, nil, err
	}
	core, err := sys.d.SetupLocal(boot)
	if err != nil {
		return nil, nil, err
	}
	sys.d.log.Info("gic: local and global initialisation done", "core", core.Index())
	return sys, core, nil
}

// Driver returns the shared driver so other cores can obtain their handles.
func (s *System) Driver() *Driver { return s.d }

// Cores returns the number of core slots.
func (d *Driver) Cores() int { return len(d.cores) }

func (d *Driver) checkIndex(i CoreIndex) error {
	if i < 0 || int(i) >= len(d.cores) {
		return fmt.Errorf("gic: core %d: %w", i, ErrCoreIndex)
	}
	return nil
}

// Attach returns the handle for the core cpu belongs to, locating its
// redistributor on first use.
func (d *Driver) Attach(cpu sysreg.CPU) (*Core, error) {
	mpidr := MPIDR(cpu.Read(sysreg.MPIDR_EL1)).Affinity()
	pos, err := d.plat.CorePos(mpidr)
	if err != nil {
		return nil, fmt.Errorf("gic: core position of %s: %w", mpidr, err)
	}
	index := CoreIndex(pos)
	if err := d.checkIndex(index); err != nil {
		return nil, err
	}
	if err := d.probe(index, mpidr); err != nil {
		return nil, err
	}

	return &Core{
		d:     d,
		cpu:   cpu,
		index: index,
		rdist: regs{bus: d.bus, base: d.cores[index].frame + gicrSGIOffset},
	}, nil
}

// SetupLocal attaches the calling core and enables its CPU interface with
// every priority unmasked.
func (d *Driver) SetupLocal(cpu sysreg.CPU) (*Core, error) {
	c, err := d.Attach(cpu)
	if err != nil {
		return nil, err
	}
	if err := c.setupCPUInterface(); err != nil {
		return nil, err
	}
	return c, nil
}

// Probed reports whether core i has located its redistributor.
func (d *Driver) Probed(i CoreIndex) bool {
	return d.checkIndex(i) == nil && d.cores[i].probed
}

// resolved returns the probed slot of core i.
func (d *Driver) resolved(i CoreIndex) (*coreState, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	st := &d.cores[i]
	if !st.probed {
		return nil, fmt.Errorf("gic: core %d: %w", i, ErrCoreNotProbed)
	}
	return st, nil
}
