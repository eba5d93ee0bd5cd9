package mmio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler handles reads and writes to memory-mapped regions. data holds the
// little-endian bytes of the access and its length is the access size.
type Handler interface {
	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}

type binding struct {
	region  Region
	handler Handler
}

// Map is a Bus that dispatches each access to the handler registered for the
// region containing it.
//
// Unmapped reads return zero. Unmapped writes and handler errors are logged
// and dropped, which mirrors a bus that ignores faults.
type Map struct {
	mu       sync.RWMutex
	bindings []binding
	logger   *slog.Logger
}

// NewMap returns an empty Map. A nil logger uses slog.Default.
func NewMap(logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	return &Map{logger: logger}
}

// Register installs handler for region. Regions may not overlap.
func (m *Map) Register(region Region, handler Handler) error {
	if region.Size == 0 {
		return fmt.Errorf("mmio: empty region at 0x%016x", region.Address)
	}
	if region.End() < region.Address {
		return fmt.Errorf("mmio: region at 0x%016x overflows", region.Address)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bindings {
		if b.region.overlaps(region) {
			return fmt.Errorf("mmio: region 0x%016x-0x%016x overlaps 0x%016x-0x%016x",
				region.Address, region.End(), b.region.Address, b.region.End())
		}
	}
	m.bindings = append(m.bindings, binding{region: region, handler: handler})
	sort.Slice(m.bindings, func(i, j int) bool {
		return m.bindings[i].region.Address < m.bindings[j].region.Address
	})
	return nil
}

// Regions returns the registered regions in address order.
func (m *Map) Regions() []Region {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Region, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b.region)
	}
	return out
}

func (m *Map) lookup(addr uint64, size uint64) Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bindings {
		if b.region.Contains(addr, size) {
			return b.handler
		}
	}
	return nil
}

func (m *Map) read(addr uint64, data []byte) {
	handler := m.lookup(addr, uint64(len(data)))
	if handler == nil {
		m.logger.Warn("mmio: unmapped read", "addr", fmt.Sprintf("%#x", addr), "size", len(data))
		clear(data)
		return
	}
	if err := handler.ReadMMIO(addr, data); err != nil {
		m.logger.Warn("mmio: read failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
		clear(data)
	}
}

func (m *Map) write(addr uint64, data []byte) {
	handler := m.lookup(addr, uint64(len(data)))
	if handler == nil {
		m.logger.Warn("mmio: unmapped write", "addr", fmt.Sprintf("%#x", addr), "size", len(data))
		return
	}
	if err := handler.WriteMMIO(addr, data); err != nil {
		m.logger.Warn("mmio: write failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
	}
}

func (m *Map) Read8(addr uint64) uint8 {
	var buf [1]byte
	m.read(addr, buf[:])
	return buf[0]
}

func (m *Map) Read32(addr uint64) uint32 {
	var buf [4]byte
	m.read(addr, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (m *Map) Read64(addr uint64) uint64 {
	var buf [8]byte
	m.read(addr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func (m *Map) Write8(addr uint64, value uint8) {
	m.write(addr, []byte{value})
}

func (m *Map) Write32(addr uint64, value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	m.write(addr, buf[:])
}

func (m *Map) Write64(addr uint64, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	m.write(addr, buf[:])
}

var _ Bus = (*Map)(nil)
