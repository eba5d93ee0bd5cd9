package gicv3

import (
	"io"
	"log/slog"
	"testing"

	"github.com/tinyrange/gic/internal/mmio"
	"github.com/tinyrange/gic/internal/sysreg"
)

const (
	testGICD = 0x2f000000
	testGICR = 0x2f100000
)

func newTestGIC(t *testing.T, cfg Config) (*GIC, *mmio.Map) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.DistributorBase = testGICD
	cfg.RedistributorBase = testGICR
	cfg.Logger = logger
	if cfg.MPIDRs == nil {
		cfg.MPIDRs = []uint64{0x0, 0x100}
	}

	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := mmio.NewMap(logger)
	if err := g.Attach(m); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return g, m
}

func TestRedistributorTyper(t *testing.T) {
	_, m := newTestGIC(t, Config{MPIDRs: []uint64{0x0, 0x100, 0x1_0000_0203}})

	wantAff := []uint64{0x0, 0x100, 0x0100_0203}
	for i, aff := range wantAff {
		typer := m.Read64(testGICR + uint64(i)*RedistributorStride + gicrTyper)
		if got := typer >> 32; got != aff {
			t.Fatalf("frame %d affinity = %#x, want %#x", i, got, aff)
		}
		if got := (typer >> 8) & 0xffff; got != uint64(i) {
			t.Fatalf("frame %d processor number = %d", i, got)
		}
		if last := typer&rtyperLast != 0; last != (i == len(wantAff)-1) {
			t.Fatalf("frame %d last = %v", i, last)
		}
	}
}

func TestRWPDelay(t *testing.T) {
	_, m := newTestGIC(t, Config{RWPDelay: 2, ARE: true})

	m.Write32(testGICD+gicdCtlr, ctlrARENS|ctlrEnableG1NS)
	for i := 0; i < 2; i++ {
		if m.Read32(testGICD+gicdCtlr)&ctlrRWP == 0 {
			t.Fatalf("read %d: RWP clear too early", i)
		}
	}
	if got := m.Read32(testGICD + gicdCtlr); got != ctlrARENS|ctlrEnableG1NS {
		t.Fatalf("CTLR = %#x", got)
	}
}

func TestNonSecureCtlrView(t *testing.T) {
	g, m := newTestGIC(t, Config{ARE: true, NonSecure: true})

	if got := m.Read32(testGICD + gicdCtlr); got != nsCtlrARE {
		t.Fatalf("CTLR = %#x, want %#x", got, nsCtlrARE)
	}

	// Bit 5 is RES0 and bit 0 does not reach Group 0 in this view.
	m.Write32(testGICD+gicdCtlr, nsCtlrEnableG1A|ctlrARENS|ctlrEnableG0)
	if got := m.Read32(testGICD + gicdCtlr); got != nsCtlrARE|nsCtlrEnableG1A {
		t.Fatalf("CTLR = %#x, want %#x", got, nsCtlrARE|nsCtlrEnableG1A)
	}
	if got := g.dist.ctlr; got != ctlrARES|ctlrARENS|ctlrEnableG1NS {
		t.Fatalf("Secure-view state = %#x", got)
	}

	// ARE_NS stays set once enabled.
	m.Write32(testGICD+gicdCtlr, 0)
	if got := m.Read32(testGICD + gicdCtlr); got != nsCtlrARE {
		t.Fatalf("CTLR after clear = %#x, want %#x", got, nsCtlrARE)
	}
}

func TestSetClearRegisters(t *testing.T) {
	_, m := newTestGIC(t, Config{ITLines: 1})

	// INTID 40 and 70: 70 is past the 64-ID distributor.
	m.Write32(testGICD+gicdIsenabler+4, 1<<8)
	m.Write32(testGICD+gicdIsenabler+8, 1<<6)
	if got := m.Read32(testGICD + gicdIsenabler + 4); got != 1<<8 {
		t.Fatalf("ISENABLER1 = %#x", got)
	}
	if got := m.Read32(testGICD + gicdIsenabler + 8); got != 0 {
		t.Fatalf("unimplemented ISENABLER2 = %#x", got)
	}

	m.Write32(testGICD+gicdIcenabler+4, 1<<8)
	if got := m.Read32(testGICD + gicdIcenabler + 4); got != 0 {
		t.Fatalf("after clear = %#x", got)
	}

	// The private word is RAZ/WI in the distributor.
	m.Write32(testGICD+gicdIsenabler, ^uint32(0))
	if got := m.Read32(testGICD + gicdIsenabler); got != 0 {
		t.Fatalf("ISENABLER0 = %#x", got)
	}
}

func TestPriorityBits(t *testing.T) {
	_, m := newTestGIC(t, Config{PriorityBits: 5})

	m.Write8(testGICD+gicdIpriorityr+33, 0xff)
	if got := m.Read8(testGICD + gicdIpriorityr + 33); got != 0xf8 {
		t.Fatalf("priority = %#x, want 0xf8", got)
	}
	if got := m.Read32(testGICD + gicdIpriorityr + 32); got != 0xf800 {
		t.Fatalf("IPRIORITYR8 = %#x", got)
	}

	m.Write32(testGICR+gicrIpriorityr, 0x10203040)
	if got := m.Read32(testGICR + gicrIpriorityr); got != 0x10203040 {
		t.Fatalf("GICR_IPRIORITYR0 = %#x", got)
	}
}

func TestByteWriteRejected(t *testing.T) {
	g, _ := newTestGIC(t, Config{})
	if err := g.WriteMMIO(testGICD+gicdIsenabler+4, []byte{1}); err == nil {
		t.Fatalf("expected byte write error")
	}
	if err := g.ReadMMIO(testGICD+2, make([]byte, 4)); err == nil {
		t.Fatalf("expected alignment error")
	}
}

func TestIRouter(t *testing.T) {
	_, m := newTestGIC(t, Config{})

	m.Write64(testGICD+gicdIrouter+40*8, 0xffff_ffff_ffff_ffff)
	if got := m.Read64(testGICD + gicdIrouter + 40*8); got != irouterWritable {
		t.Fatalf("IROUTER40 = %#x, want %#x", got, uint64(irouterWritable))
	}
}

func TestSGIDeliveryAndAcknowledge(t *testing.T) {
	g, m := newTestGIC(t, Config{ARE: true})
	m.Write32(testGICD+gicdCtlr, ctlrARES|ctlrARENS|ctlrEnableG1NS)

	target := g.CPU(1)
	target.Write(sysreg.ICC_PMR_EL1, 0xff)
	target.Write(sysreg.ICC_IGRPEN1_EL1, 1)
	m.Write32(testGICR+RedistributorStride+gicrIsenabler0, 1<<5)

	// Aff1 = 1, target list bit 0, INTID 5.
	g.CPU(0).Write(sysreg.ICC_SGI1R_EL1, 5<<24|1<<16|1)

	if got := m.Read32(testGICR + RedistributorStride + gicrIspendr0); got != 1<<5 {
		t.Fatalf("core 1 pending = %#x", got)
	}
	if got := m.Read32(testGICR + gicrIspendr0); got != 0 {
		t.Fatalf("core 0 pending = %#x", got)
	}

	if got := target.Read(sysreg.ICC_IAR1_EL1); got != 5 {
		t.Fatalf("IAR1 = %d, want 5", got)
	}
	if got := target.Read(sysreg.ICC_IAR1_EL1); got != spuriousINTID {
		t.Fatalf("second IAR1 = %d, want spurious", got)
	}
	target.Write(sysreg.ICC_EOIR1_EL1, 5)
	if got := m.Read32(testGICR + RedistributorStride + gicrIsactiver0); got != 0 {
		t.Fatalf("active after EOI = %#x", got)
	}
}

func TestSPIAcknowledgeHonoursRoute(t *testing.T) {
	g, m := newTestGIC(t, Config{ARE: true})
	m.Write32(testGICD+gicdCtlr, ctlrARES|ctlrARENS|ctlrEnableG1NS)
	for i := 0; i < g.Cores(); i++ {
		g.CPU(i).Write(sysreg.ICC_PMR_EL1, 0xff)
		g.CPU(i).Write(sysreg.ICC_IGRPEN1_EL1, 1)
	}

	m.Write32(testGICD+gicdIgroupr+4, ^uint32(0))
	m.Write32(testGICD+gicdIsenabler+4, 1<<2)
	m.Write64(testGICD+gicdIrouter+34*8, 0x100)
	g.SetSPIPending(34, true)

	if got := g.CPU(0).Read(sysreg.ICC_IAR1_EL1); got != spuriousINTID {
		t.Fatalf("core 0 acknowledged %d", got)
	}
	if got := g.CPU(1).Read(sysreg.ICC_IAR1_EL1); got != 34 {
		t.Fatalf("core 1 IAR1 = %d, want 34", got)
	}
}

func TestWriteLog(t *testing.T) {
	g, m := newTestGIC(t, Config{})
	m.Write32(testGICD+gicdIsenabler+4, 1)
	m.Write8(testGICD+gicdIpriorityr+32, 0x80)

	writes := g.Writes()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if writes[1] != (Write{Addr: testGICD + gicdIpriorityr + 32, Size: 1, Value: 0x80}) {
		t.Fatalf("write = %+v", writes[1])
	}
	if g.Reads() != 0 {
		t.Fatalf("reads = %d", g.Reads())
	}

	g.ResetLog()
	if len(g.Writes()) != 0 {
		t.Fatalf("log not reset")
	}
}

func TestResetDistributorKeepsRedistributors(t *testing.T) {
	g, m := newTestGIC(t, Config{ARE: true})
	m.Write32(testGICD+gicdIsenabler+4, 1)
	m.Write32(testGICR+gicrIsenabler0, 1<<3)

	g.ResetDistributor()
	if got := m.Read32(testGICD + gicdIsenabler + 4); got != 0 {
		t.Fatalf("distributor enable survived reset: %#x", got)
	}
	if got := m.Read32(testGICD + gicdCtlr); got != ctlrARES|ctlrARENS {
		t.Fatalf("CTLR after reset = %#x", got)
	}
	if got := m.Read32(testGICR + gicrIsenabler0); got != 1<<3 {
		t.Fatalf("redistributor enable = %#x", got)
	}
}

func TestBarrierAccounting(t *testing.T) {
	g, _ := newTestGIC(t, Config{})
	cpu := g.CPU(0)

	cpu.Write(sysreg.ICC_PMR_EL1, 0xff)
	cpu.Write(sysreg.ICC_IGRPEN1_EL1, 1)
	if got := cpu.Unsynchronized(); got != 2 {
		t.Fatalf("Unsynchronized = %d, want 2", got)
	}
	cpu.DSB()
	if got := cpu.Unsynchronized(); got != 2 {
		t.Fatalf("DSB synchronized writes: Unsynchronized = %d", got)
	}
	cpu.ISB()
	if got := cpu.Unsynchronized(); got != 0 {
		t.Fatalf("Unsynchronized after ISB = %d", got)
	}
	if isb, dsb := cpu.Barriers(); isb != 1 || dsb != 1 {
		t.Fatalf("Barriers = %d, %d, want 1, 1", isb, dsb)
	}
}
