package main

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/tinyrange/gic/internal/devices/gicv3"
	"github.com/tinyrange/gic/internal/gic"
	"github.com/tinyrange/gic/internal/mmio"
	"github.com/tinyrange/gic/internal/platform"
	"golang.org/x/sync/errgroup"
)

const (
	ringSGI = 1
	simSPI  = 40
)

type simulation struct {
	model *gicv3.GIC
	sys   *gic.System
	cores []*gic.Core
}

func runSim(args []string) error {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	path := fs.String("platform", "", "platform description (default: built-in FVP)")
	ncores := fs.Int("cores", 0, "number of cores to bring up (0 for all)")
	rounds := fs.Int("rounds", 1, "number of times the SGI goes round the ring")
	rwpDelay := fs.Int("rwp-delay", 4, "GICD_CTLR reads that report RWP after each write")
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	setupLogging(*verbose)

	plat, err := loadPlatform(*path)
	if err != nil {
		return err
	}
	if *ncores > 0 && *ncores < len(plat.Cores) {
		plat.Cores = plat.Cores[:*ncores]
		plat.Redistributor.Size = platform.Hex(platform.RedistributorStride * len(plat.Cores))
	}

	sim, err := bringUp(plat, *rwpDelay)
	if err != nil {
		return err
	}

	delivered, err := sim.sgiRing(*rounds)
	if err != nil {
		return err
	}
	spiCore, err := sim.spi()
	if err != nil {
		return err
	}
	if err := sim.suspendResume(); err != nil {
		return err
	}

	fmt.Printf("%s: %d cores, %d SGIs delivered, SPI %d taken on core %d, suspend/resume ok\n",
		plat.Name, len(sim.cores), delivered, simSPI, spiCore)
	return nil
}

// bringUp builds the model for plat and initialises the driver on every core.
// Secondary cores run their local setup concurrently once the boot core has
// configured the distributor.
func bringUp(plat platform.Platform, rwpDelay int) (*simulation, error) {
	logger := slog.Default()

	model, err := gicv3.New(gicv3.Config{
		DistributorBase:   uint64(plat.Distributor.Base),
		RedistributorBase: uint64(plat.Redistributor.Base),
		MPIDRs:            plat.MPIDRs(),
		ITLines:           plat.ITLines,
		RWPDelay:          rwpDelay,
		ARE:               true,
		NonSecure:         true,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	bus := mmio.NewMap(logger)
	if err := model.Attach(bus); err != nil {
		return nil, err
	}

	sys, boot, err := gic.Bringup(plat.GICConfig(logger), bus, model.CPU(0), plat)
	if err != nil {
		return nil, fmt.Errorf("boot core: %w", err)
	}

	cores := make([]*gic.Core, model.Cores())
	cores[boot.Index()] = boot

	var g errgroup.Group
	for i := 1; i < model.Cores(); i++ {
		i := i
		g.Go(func() error {
			c, err := sys.Driver().SetupLocal(model.CPU(i))
			if err != nil {
				return fmt.Errorf("core %d: %w", i, err)
			}
			cores[c.Index()] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("gicctl: cores online", "cores", len(cores), "spi_limit", sys.SPILimit())
	return &simulation{model: model, sys: sys, cores: cores}, nil
}

// sgiRing passes an SGI from each core to the next, with the receiver
// acknowledging and completing it.
func (s *simulation) sgiRing(rounds int) (int, error) {
	sgi := gic.MustINTID(ringSGI)
	for _, c := range s.cores {
		c.Enable(sgi)
	}

	delivered := 0
	for r := 0; r < rounds; r++ {
		for i, from := range s.cores {
			to := s.cores[(i+1)%len(s.cores)]
			if err := from.SendSGI(sgi, to.Index()); err != nil {
				return delivered, fmt.Errorf("core %d: %w", i, err)
			}

			id := to.Acknowledge()
			if id != sgi.Raw() {
				return delivered, fmt.Errorf("core %d acknowledged %d, want %d", to.Index(), id, sgi.Raw())
			}
			to.EndOfInterrupt(id)
			delivered++

			slog.Debug("gicctl: SGI delivered", "from", int(from.Index()), "to", int(to.Index()), "mpidr", to.MPIDR().String())
		}
	}
	return delivered, nil
}

// spi routes an SPI to the last core, raises it and takes it there.
func (s *simulation) spi() (gic.CoreIndex, error) {
	boot := s.cores[0]
	target := s.cores[len(s.cores)-1]
	id := gic.MustINTID(simSPI)

	if err := boot.SetTrigger(id, gic.TriggerLevel); err != nil {
		return 0, err
	}
	boot.SetPriority(id, 0x80)
	if err := boot.SetRoute(id, target.Index()); err != nil {
		return 0, err
	}
	boot.Enable(id)

	s.model.SetSPIPending(simSPI, true)
	got := target.Acknowledge()
	if got != simSPI {
		return 0, fmt.Errorf("core %d acknowledged %d, want %d", target.Index(), got, simSPI)
	}
	s.model.SetSPIPending(simSPI, false)
	target.EndOfInterrupt(got)

	return target.Index(), nil
}

// suspendResume powers the last core down, loses the distributor state, and
// brings both back.
func (s *simulation) suspendResume() error {
	boot := s.cores[0]
	victim := s.cores[len(s.cores)-1]
	sgi := gic.MustINTID(ringSGI)

	victim.SaveLocal()
	victim.DisableLocal()
	if err := s.sys.SaveGlobal(boot); err != nil {
		return err
	}

	s.model.ResetDistributor()
	// A powered down core loses its private enables too.
	victim.Disable(sgi)

	if err := s.sys.RestoreGlobal(boot); err != nil {
		return err
	}
	if err := victim.RestoreLocal(); err != nil {
		return err
	}
	if !victim.Enabled(sgi) {
		return fmt.Errorf("core %d: SGI %d not re-enabled after resume", victim.Index(), ringSGI)
	}

	slog.Info("gicctl: suspend/resume complete", "core", int(victim.Index()))
	return nil
}
