//go:build linux

package mmio

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevMem is the physical memory device on Linux.
const DefaultDevMem = "/dev/mem"

type mapping struct {
	region Region
	mem    []byte
	// skew is the distance from the page-aligned mapping start to region.Address.
	skew uint64
}

// DevMem is a Bus over physical memory mapped from /dev/mem. Only the regions
// passed to OpenDevMem are accessible.
type DevMem struct {
	mappings []mapping
	logger   *slog.Logger
}

// OpenDevMem maps each region of path (normally DefaultDevMem) as shared,
// uncached device memory.
func OpenDevMem(path string, logger *slog.Logger, regions ...Region) (*DevMem, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}
	// The mappings stay valid after the descriptor is closed.
	defer f.Close()

	d := &DevMem{logger: logger}
	pageSize := uint64(os.Getpagesize())
	for _, region := range regions {
		start := region.Address &^ (pageSize - 1)
		skew := region.Address - start
		length := (skew + region.Size + pageSize - 1) &^ (pageSize - 1)

		mem, err := unix.Mmap(int(f.Fd()), int64(start), int(length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("mmio: map 0x%016x+0x%x: %w", region.Address, region.Size, err)
		}
		d.mappings = append(d.mappings, mapping{region: region, mem: mem, skew: skew})
	}

	return d, nil
}

// Close unmaps all regions.
func (d *DevMem) Close() error {
	var firstErr error
	for _, m := range d.mappings {
		if err := unix.Munmap(m.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mmio: unmap 0x%016x: %w", m.region.Address, err)
		}
	}
	d.mappings = nil
	return firstErr
}

func (d *DevMem) ptr(addr uint64, size uint64) unsafe.Pointer {
	for i := range d.mappings {
		m := &d.mappings[i]
		if m.region.Contains(addr, size) {
			off := m.skew + addr - m.region.Address
			return unsafe.Pointer(&m.mem[off])
		}
	}
	d.logger.Warn("mmio: devmem access outside mapped regions", "addr", fmt.Sprintf("%#x", addr))
	return nil
}

func (d *DevMem) Read8(addr uint64) uint8 {
	p := d.ptr(addr, 1)
	if p == nil {
		return 0
	}
	return *(*uint8)(p)
}

func (d *DevMem) Read32(addr uint64) uint32 {
	p := d.ptr(addr, 4)
	if p == nil {
		return 0
	}
	return atomic.LoadUint32((*uint32)(p))
}

func (d *DevMem) Read64(addr uint64) uint64 {
	p := d.ptr(addr, 8)
	if p == nil {
		return 0
	}
	return atomic.LoadUint64((*uint64)(p))
}

func (d *DevMem) Write8(addr uint64, value uint8) {
	if p := d.ptr(addr, 1); p != nil {
		*(*uint8)(p) = value
	}
}

func (d *DevMem) Write32(addr uint64, value uint32) {
	if p := d.ptr(addr, 4); p != nil {
		atomic.StoreUint32((*uint32)(p), value)
	}
}

func (d *DevMem) Write64(addr uint64, value uint64) {
	if p := d.ptr(addr, 8); p != nil {
		atomic.StoreUint64((*uint64)(p), value)
	}
}

var _ Bus = (*DevMem)(nil)
