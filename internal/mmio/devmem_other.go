//go:build !linux

package mmio

import (
	"errors"
	"log/slog"
)

// DefaultDevMem is the physical memory device on Linux.
const DefaultDevMem = "/dev/mem"

var errDevMemUnsupported = errors.New("mmio: /dev/mem access is only supported on linux")

// DevMem is unavailable on this platform.
type DevMem struct{}

// OpenDevMem always fails on this platform.
func OpenDevMem(path string, logger *slog.Logger, regions ...Region) (*DevMem, error) {
	return nil, errDevMemUnsupported
}

func (d *DevMem) Close() error { return nil }
func (d *DevMem) Read8(addr uint64) uint8 { return 0 }
func (d *DevMem) Read32(addr uint64) uint32 { return 0 }
func (d *DevMem) Read64(addr uint64) uint64 { return 0 }
func (d *DevMem) Write8(addr uint64, v uint8) {}
func (d *DevMem) Write32(addr uint64, v uint32) {}
func (d *DevMem) Write64(addr uint64, v uint64) {}

var _ Bus = (*DevMem)(nil)
