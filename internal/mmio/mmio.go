// Package mmio defines the memory-mapped I/O primitives used by the GIC driver
// and the backends that implement them.
package mmio

// Bus performs naturally aligned memory-mapped accesses to physical addresses.
// Accesses issued through a Bus are observed by the device in program order.
type Bus interface {
	Read8(addr uint64) uint8
	Read32(addr uint64) uint32
	Read64(addr uint64) uint64

	Write8(addr uint64, value uint8)
	Write32(addr uint64, value uint32)
	Write64(addr uint64, value uint64)
}

// Region describes a contiguous span of physical address space.
type Region struct {
	Address uint64
	Size    uint64
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Address + r.Size }

// Contains reports whether an access of size bytes at addr lies within r.
func (r Region) Contains(addr uint64, size uint64) bool {
	end := addr + size
	if end < addr {
		return false
	}
	return addr >= r.Address && end <= r.End()
}

func (r Region) overlaps(o Region) bool {
	return r.Address < o.End() && o.Address < r.End()
}

// SetBits32 sets the bits in set with a read-modify-write of the word at addr.
func SetBits32(bus Bus, addr uint64, set uint32) {
	bus.Write32(addr, bus.Read32(addr)|set)
}

// ClearBits32 clears the bits in clear with a read-modify-write of the word at addr.
func ClearBits32(bus Bus, addr uint64, clear uint32) {
	bus.Write32(addr, bus.Read32(addr)&^clear)
}

// ClearSetBits32 clears then sets bits in the word at addr with a single write.
func ClearSetBits32(bus Bus, addr uint64, clear, set uint32) {
	bus.Write32(addr, (bus.Read32(addr)&^clear)|set)
}
