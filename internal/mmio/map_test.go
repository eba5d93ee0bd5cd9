package mmio

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
)

type ramHandler struct {
	base uint64
	mem  []byte
}

func (r *ramHandler) ReadMMIO(addr uint64, data []byte) error {
	copy(data, r.mem[addr-r.base:])
	return nil
}

func (r *ramHandler) WriteMMIO(addr uint64, data []byte) error {
	copy(r.mem[addr-r.base:], data)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapDispatchesLittleEndian(t *testing.T) {
	m := NewMap(quietLogger())
	ram := &ramHandler{base: 0x1000, mem: make([]byte, 0x100)}
	if err := m.Register(Region{Address: 0x1000, Size: 0x100}, ram); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.Write32(0x1010, 0xdeadbeef)
	if got := binary.LittleEndian.Uint32(ram.mem[0x10:]); got != 0xdeadbeef {
		t.Fatalf("backing word = %#x, want 0xdeadbeef", got)
	}
	if got := m.Read8(0x1010); got != 0xef {
		t.Fatalf("Read8 = %#x, want 0xef", got)
	}

	m.Write64(0x1020, 0x0123456789abcdef)
	if got := m.Read64(0x1020); got != 0x0123456789abcdef {
		t.Fatalf("Read64 = %#x", got)
	}
	if got := m.Read32(0x1024); got != 0x01234567 {
		t.Fatalf("upper half = %#x, want 0x01234567", got)
	}
}

func TestMapRejectsOverlap(t *testing.T) {
	m := NewMap(quietLogger())
	if err := m.Register(Region{Address: 0x1000, Size: 0x1000}, &ramHandler{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(Region{Address: 0x1800, Size: 0x1000}, &ramHandler{}); err == nil {
		t.Fatalf("expected overlap error")
	}
	if err := m.Register(Region{Address: 0x2000, Size: 0}, &ramHandler{}); err == nil {
		t.Fatalf("expected empty region error")
	}
}

func TestMapUnmappedAccess(t *testing.T) {
	m := NewMap(quietLogger())
	if got := m.Read32(0x4000); got != 0 {
		t.Fatalf("unmapped read = %#x, want 0", got)
	}
	// Must not panic.
	m.Write32(0x4000, 1)

	ram := &ramHandler{base: 0x1000, mem: make([]byte, 0x10)}
	if err := m.Register(Region{Address: 0x1000, Size: 0x10}, ram); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Straddles the end of the region.
	if got := m.Read64(0x100c); got != 0 {
		t.Fatalf("straddling read = %#x, want 0", got)
	}
}

func TestBitHelpers(t *testing.T) {
	m := NewMap(quietLogger())
	ram := &ramHandler{base: 0, mem: make([]byte, 8)}
	if err := m.Register(Region{Address: 0, Size: 8}, ram); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.Write32(0, 0xf0)
	SetBits32(m, 0, 0x0f)
	if got := m.Read32(0); got != 0xff {
		t.Fatalf("after set = %#x, want 0xff", got)
	}
	ClearBits32(m, 0, 0x81)
	if got := m.Read32(0); got != 0x7e {
		t.Fatalf("after clear = %#x, want 0x7e", got)
	}
	ClearSetBits32(m, 0, 0x0c, 0x300)
	if got := m.Read32(0); got != 0x372 {
		t.Fatalf("after clearset = %#x, want 0x372", got)
	}
}
