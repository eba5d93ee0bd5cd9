package gic

import (
	"errors"
	"testing"

	"github.com/tinyrange/gic/internal/devices/gicv3"
	"github.com/tinyrange/gic/internal/sysreg"
)

// privateState reads back the registers a global save preserves.
func privateState(c *Core) (enable uint32, prio [privatePriorityWords]uint32, cfg uint32) {
	enable = c.rdist.read(isenabler, 0)
	for w := range prio {
		prio[w] = c.rdist.read(ipriorityr, uint32(w)*4)
	}
	cfg = c.rdist.read(icfgr, MinPPIID)
	return
}

func configurePrivate(t *testing.T, c *Core) {
	t.Helper()
	for _, raw := range []uint32{1, 9, 23, 30} {
		c.Enable(MustINTID(raw))
	}
	for raw := uint32(0); raw < numPrivate; raw++ {
		c.SetPriority(MustINTID(raw), uint8(raw*8))
	}
	if err := c.SetTrigger(MustINTID(23), TriggerEdge); err != nil {
		t.Fatalf("SetTrigger: %v", err)
	}
}

func TestSaveRestoreGlobalIsBitIdentical(t *testing.T) {
	tg := newTestGIC(t, gicv3.Config{ARE: true})
	sys, core0 := tg.bringup(t)
	core1 := tg.setupLocal(t, sys, 1)

	configurePrivate(t, core0)
	configurePrivate(t, core1)
	core1.SetPriority(MustINTID(9), 0x11)

	enable0, prio0, cfg0 := privateState(core0)
	enable1, prio1, cfg1 := privateState(core1)

	core1.SaveLocal()
	if !sys.Driver().Suspended(1) {
		t.Fatalf("core 1 not suspended after SaveLocal")
	}
	if err := sys.SaveGlobal(core0); err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}
	if got := core1.Context(); got.Enable != enable1 || got.Priority != prio1 || got.Config != cfg1 || !got.Group1Enabled {
		t.Fatalf("saved context = %+v", got)
	}

	// The system powers down: the distributor loses its state and the
	// redistributors of the suspended core are disturbed.
	tg.model.ResetDistributor()
	core1.Disable(MustINTID(9))
	core1.Enable(MustINTID(2))
	core1.SetPriority(MustINTID(30), 0)

	if err := sys.RestoreGlobal(core0); err != nil {
		t.Fatalf("RestoreGlobal: %v", err)
	}

	if e, p, c := privateState(core0); e != enable0 || p != prio0 || c != cfg0 {
		t.Fatalf("core 0 after restore: enable %#x prio %#x cfg %#x", e, p, c)
	}
	if e, p, c := privateState(core1); e != enable1 || p != prio1 || c != cfg1 {
		t.Fatalf("core 1 after restore: enable %#x prio %#x cfg %#x", e, p, c)
	}
	if ctlr := tg.bus.Read32(testGICD + gicdCtlr); ctlr&ctlrEnableG1NS == 0 {
		t.Fatalf("distributor not re-enabled: CTLR = %#x", ctlr)
	}
	if got := core0.Priority(MustINTID(100)); got != DefaultSPIPriority {
		t.Fatalf("SPI defaults not reapplied: priority %#x", got)
	}

	tg.model.CPU(1).Write(sysreg.ICC_IGRPEN1_EL1, 0)
	if err := core1.RestoreLocal(); err != nil {
		t.Fatalf("RestoreLocal: %v", err)
	}
	if got := tg.model.CPU(1).Read(sysreg.ICC_IGRPEN1_EL1); got != sysreg.IGRPEN1_Enable {
		t.Fatalf("IGRPEN1 = %#x after RestoreLocal", got)
	}
	if got := tg.model.CPU(1).Read(sysreg.ICC_PMR_EL1); got != sysreg.PMR_AllowAll {
		t.Fatalf("PMR = %#x after RestoreLocal", got)
	}
	if sys.Driver().Suspended(1) {
		t.Fatalf("core 1 still suspended")
	}
}

func TestSaveGlobalSkipsRunningCores(t *testing.T) {
	tg := newTestGIC(t, gicv3.Config{ARE: true, MPIDRs: []uint64{0x0, 0x1, 0x2}})
	sys, core0 := tg.bringup(t)
	tg.setupLocal(t, sys, 1)
	core2 := tg.setupLocal(t, sys, 2)
	core2.Enable(MustINTID(4))

	if err := sys.SaveGlobal(core0); err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}
	if got := core2.Context(); got.Enable != 0 {
		t.Fatalf("running core 2 saved: %+v", got)
	}

	// Neither running core has a global save, and neither is restored.
	if err := sys.RestoreGlobal(core0); err != nil {
		t.Fatalf("RestoreGlobal: %v", err)
	}
}

func TestRestoreWithoutSave(t *testing.T) {
	tg := newTestGIC(t, gicv3.Config{ARE: true})
	sys, core0 := tg.bringup(t)
	core1 := tg.setupLocal(t, sys, 1)

	if err := core1.RestoreLocal(); !errors.Is(err, ErrNoSavedContext) {
		t.Fatalf("RestoreLocal error = %v", err)
	}

	core1.SaveLocal()
	tg.model.ResetLog()
	if err := sys.RestoreGlobal(core0); !errors.Is(err, ErrNoSavedContext) {
		t.Fatalf("RestoreGlobal error = %v", err)
	}
	if n := len(tg.model.Writes()); n != 0 {
		t.Fatalf("failed restore wrote %d registers", n)
	}

	if err := sys.SaveGlobal(core0); err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}
	if err := sys.RestoreGlobal(core0); err != nil {
		t.Fatalf("RestoreGlobal: %v", err)
	}
	// A save is consumed by the restore.
	if err := sys.RestoreGlobal(core0); !errors.Is(err, ErrNoSavedContext) {
		t.Fatalf("second RestoreGlobal error = %v", err)
	}
}

func TestSaveLocalCapturesDisabledInterface(t *testing.T) {
	tg := newTestGIC(t, gicv3.Config{ARE: true})
	_, core := tg.bringup(t)

	core.DisableLocal()
	core.SaveLocal()
	if core.Context().Group1Enabled {
		t.Fatalf("saved enabled interface")
	}
	if err := core.EnableLocal(); err != nil {
		t.Fatalf("EnableLocal: %v", err)
	}
	if err := core.RestoreLocal(); err != nil {
		t.Fatalf("RestoreLocal: %v", err)
	}
	if got := tg.model.CPU(0).Read(sysreg.ICC_IGRPEN1_EL1); got != 0 {
		t.Fatalf("IGRPEN1 = %#x, want 0", got)
	}
}
