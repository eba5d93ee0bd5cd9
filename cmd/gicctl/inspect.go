package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/gic/internal/gic"
	"github.com/tinyrange/gic/internal/mmio"
	"github.com/tinyrange/gic/internal/platform"
	"golang.org/x/term"
)

func newProgressBar(n int, description string) *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return progressbar.DefaultSilent(int64(n), description)
	}
	return progressbar.Default(int64(n), description)
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("platform", "", "platform description (required)")
	devmem := fs.String("devmem", mmio.DefaultDevMem, "physical memory device")
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	setupLogging(*verbose)

	if *path == "" {
		return errors.New("inspect: -platform is required")
	}
	plat, err := platform.Load(*path)
	if err != nil {
		return err
	}

	dev, err := mmio.OpenDevMem(*devmem, slog.Default(), plat.Regions()...)
	if err != nil {
		return err
	}
	defer dev.Close()

	info := gic.ReadDistributorInfo(dev, uint64(plat.Distributor.Base))
	fmt.Printf("GICD_CTLR  %#010x (ARE_NS=%t EnableGrp1NS=%t RWP=%t)\n",
		info.CTLR, info.AffinityRouting, info.Group1Enabled, info.WritePending)
	fmt.Printf("GICD_TYPER %#010x (SPI limit %d)\n", info.TYPER, info.SPILimit)

	frames := int(uint64(plat.Redistributor.Size) / platform.RedistributorStride)
	if plat.MaxRedistributorFrames > 0 && plat.MaxRedistributorFrames < frames {
		frames = plat.MaxRedistributorFrames
	}

	bar := newProgressBar(frames, "redistributors")
	var found []gic.RedistributorFrame
	gic.WalkRedistributors(dev, uint64(plat.Redistributor.Base), frames, func(rd gic.RedistributorFrame) bool {
		found = append(found, rd)
		bar.Add(1)
		return true
	})
	bar.Finish()

	for _, rd := range found {
		pos := "-"
		if i, err := plat.CorePos(typerMPIDR(rd.Affinity)); err == nil {
			pos = fmt.Sprint(i)
		}
		fmt.Printf("%#x  affinity %#010x  processor %-4d core %-3s last=%t\n",
			rd.Address, rd.Affinity, rd.ProcessorNumber, pos, rd.Last)
	}
	if len(found) != len(plat.Cores) {
		slog.Warn("gicctl: redistributor count does not match platform", "found", len(found), "cores", len(plat.Cores))
	}
	return nil
}

// typerMPIDR is the inverse of gic.TyperAffinity.
func typerMPIDR(aff uint32) gic.MPIDR {
	return gic.NewMPIDR(uint8(aff>>24), uint8(aff>>16), uint8(aff>>8), uint8(aff))
}
