package gic

import "fmt"

// Interrupt identifier space.
const (
	MaxSGIs       = 16
	MinPPIID      = 16
	MaxPPIID      = 31
	MinSPIID      = 32
	MaxSPIID      = 1019
	SpuriousINTID = 1023

	// numPrivate is the number of per-core interrupts (SGIs and PPIs).
	numPrivate = 32
)

// Class is the architectural class of an interrupt identifier.
type Class uint8

const (
	ClassSGI Class = iota
	ClassPPI
	ClassSPI
)

func (c Class) String() string {
	switch c {
	case ClassSGI:
		return "SGI"
	case ClassPPI:
		return "PPI"
	case ClassSPI:
		return "SPI"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// INTID is a validated interrupt identifier in [0, MaxSPIID]. The zero value
// is SGI 0.
type INTID struct {
	id uint32
}

// NewINTID classifies raw. Identifiers above MaxSPIID, including the special
// range 1020-1023, are rejected.
func NewINTID(raw uint32) (INTID, error) {
	if raw > MaxSPIID {
		return INTID{}, fmt.Errorf("gic: interrupt %d: %w", raw, ErrInvalidINTID)
	}
	return INTID{id: raw}, nil
}

// MustINTID is like NewINTID but panics on an invalid identifier. It is
// intended for package-level constants.
func MustINTID(raw uint32) INTID {
	id, err := NewINTID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// SGI returns the software generated interrupt n (0-15).
func SGI(n uint32) (INTID, error) {
	if n >= MaxSGIs {
		return INTID{}, fmt.Errorf("gic: SGI %d: %w", n, ErrNotSGI)
	}
	return INTID{id: n}, nil
}

// PPI returns the private peripheral interrupt with identifier raw (16-31).
func PPI(raw uint32) (INTID, error) {
	if raw < MinPPIID || raw > MaxPPIID {
		return INTID{}, fmt.Errorf("gic: PPI %d: %w", raw, ErrInvalidINTID)
	}
	return INTID{id: raw}, nil
}

// SPI returns the shared peripheral interrupt with identifier raw (32-1019).
func SPI(raw uint32) (INTID, error) {
	if raw < MinSPIID || raw > MaxSPIID {
		return INTID{}, fmt.Errorf("gic: SPI %d: %w", raw, ErrNotSPI)
	}
	return INTID{id: raw}, nil
}

// Raw returns the architectural interrupt number.
func (i INTID) Raw() uint32 { return i.id }

// Class reports whether i is an SGI, PPI or SPI.
func (i INTID) Class() Class {
	switch {
	case i.id < MinPPIID:
		return ClassSGI
	case i.id < MinSPIID:
		return ClassPPI
	default:
		return ClassSPI
	}
}

// private reports whether i is banked per core in the redistributor.
func (i INTID) private() bool { return i.id < numPrivate }

func (i INTID) String() string {
	return fmt.Sprintf("%s %d", i.Class(), i.id)
}
