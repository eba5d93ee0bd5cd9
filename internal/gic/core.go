package gic

import (
	"fmt"

	"github.com/tinyrange/gic/internal/sysreg"
)

// block returns the register block that holds id's state for this core: the
// core's own redistributor for SGIs and PPIs, the distributor for SPIs.
func (c *Core) block(id INTID) regs {
	if id.private() {
		return c.rdist
	}
	return c.d.dist
}

// Enabled reports whether id is forwarded.
func (c *Core) Enabled(id INTID) bool {
	return c.block(id).bit(isenabler, id.Raw())
}

func (c *Core) Enable(id INTID) {
	c.block(id).strobe(isenabler, id.Raw())
}

func (c *Core) Disable(id INTID) {
	c.block(id).strobe(icenabler, id.Raw())
}

func (c *Core) Pending(id INTID) bool {
	return c.block(id).bit(ispendr, id.Raw())
}

func (c *Core) SetPending(id INTID) {
	c.block(id).strobe(ispendr, id.Raw())
}

func (c *Core) ClearPending(id INTID) {
	c.block(id).strobe(icpendr, id.Raw())
}

func (c *Core) Active(id INTID) bool {
	return c.block(id).bit(isactiver, id.Raw())
}

func (c *Core) ClearActive(id INTID) {
	c.block(id).strobe(icactiver, id.Raw())
}

// Priority returns id's priority byte. Unimplemented low-order bits read as
// zero.
func (c *Core) Priority(id INTID) uint8 {
	return c.block(id).priority(id.Raw())
}

func (c *Core) SetPriority(id INTID, priority uint8) {
	c.block(id).setPriority(id.Raw(), priority)
}

// Trigger returns id's Int_config field.
func (c *Core) Trigger(id INTID) Trigger {
	return Trigger(c.block(id).field(icfgr, id.Raw()))
}

// SetTrigger configures a PPI or SPI as level-sensitive or edge-triggered.
// SGIs are always edge-triggered.
func (c *Core) SetTrigger(id INTID, t Trigger) error {
	if id.Class() == ClassSGI {
		return fmt.Errorf("gic: %s: %w", id, ErrNotConfigurable)
	}
	switch t {
	case TriggerLevel, TriggerEdge:
	default:
		return fmt.Errorf("gic: %s trigger %#b: %w", id, uint32(t), ErrNotConfigurable)
	}
	c.block(id).setField(icfgr, id.Raw(), uint32(t))
	return nil
}

// SetRoute routes SPI id to the core at index target, which must have located
// its redistributor.
func (c *Core) SetRoute(id INTID, target CoreIndex) error {
	if id.Class() != ClassSPI {
		return fmt.Errorf("gic: route %s: %w", id, ErrNotSPI)
	}
	st, err := c.d.resolved(target)
	if err != nil {
		return err
	}
	return c.route(id, IRouterValue(st.mpidr, RouteToCore))
}

// SetRouteAny lets the distributor deliver SPI id to any participating core.
func (c *Core) SetRouteAny(id INTID) error {
	return c.route(id, IRouterValue(0, RouteToAny))
}

func (c *Core) route(id INTID, value uint64) error {
	if id.Class() != ClassSPI {
		return fmt.Errorf("gic: route %s: %w", id, ErrNotSPI)
	}
	c.d.writeRoute(id, value)
	return nil
}

// SendSGI signals SGI id to the core at index target. The target must have
// located its redistributor. Delivery is not confirmed.
func (c *Core) SendSGI(id INTID, target CoreIndex) error {
	if id.Class() != ClassSGI {
		return fmt.Errorf("gic: send %s: %w", id, ErrNotSGI)
	}
	st, err := c.d.resolved(target)
	if err != nil {
		return err
	}
	v, err := SGI1RValue(id, st.mpidr)
	if err != nil {
		return err
	}

	c.cpu.DSB()
	c.cpu.Write(sysreg.ICC_SGI1R_EL1, v)
	c.cpu.ISB()
	return nil
}
