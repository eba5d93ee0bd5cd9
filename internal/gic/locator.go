package gic

import (
	"fmt"

	"github.com/tinyrange/gic/internal/mmio"
)

// RedistributorFrame is one entry of the redistributor region as described by
// its GICR_TYPER.
type RedistributorFrame struct {
	Address         uint64
	Affinity        uint32
	ProcessorNumber uint16
	Last            bool
}

func decodeRedistributorTyper(frame uint64, typer uint64) RedistributorFrame {
	return RedistributorFrame{
		Address:         frame,
		Affinity:        uint32(typer >> rtyperAffinityShift),
		ProcessorNumber: uint16((typer >> rtyperProcNumShift) & rtyperProcNumMask),
		Last:            typer&rtyperLast != 0,
	}
}

// WalkRedistributors visits frames from base in order until fn returns false,
// a frame reports Last, or limit frames have been visited. It returns the
// number of frames visited.
func WalkRedistributors(bus mmio.Bus, base uint64, limit int, fn func(RedistributorFrame) bool) int {
	frame := base
	for n := 0; n < limit; n++ {
		rd := decodeRedistributorTyper(frame, bus.Read64(frame+gicrTyper))
		if !fn(rd) || rd.Last {
			return n + 1
		}
		frame += gicrFrameStride
	}
	return limit
}

// probe locates the redistributor whose affinity matches mpidr and records it
// in core i's slot. It does nothing if the slot is already resolved.
func (d *Driver) probe(i CoreIndex, mpidr MPIDR) error {
	st := &d.cores[i]
	if st.probed {
		return nil
	}

	want := TyperAffinity(mpidr)
	var found *RedistributorFrame
	WalkRedistributors(d.bus, d.cfg.RedistributorBase, d.cfg.MaxRedistributorFrames, func(rd RedistributorFrame) bool {
		if rd.Affinity == want {
			found = &rd
			return false
		}
		return true
	})

	if found == nil {
		d.log.Warn("gic: redistributor address not found", "core", int(i), "mpidr", mpidr.String())
		return fmt.Errorf("gic: core %d (mpidr %s): %w", i, mpidr, ErrRedistributorNotFound)
	}

	st.frame = found.Address
	st.mpidr = mpidr
	st.probed = true
	d.log.Debug("gic: redistributor located", "core", int(i), "mpidr", mpidr.String(),
		"frame", fmt.Sprintf("%#x", found.Address))
	return nil
}
