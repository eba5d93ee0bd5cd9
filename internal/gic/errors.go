package gic

import "errors"

var (
	ErrInvalidBase             = errors.New("GIC base address not set")
	ErrInvalidINTID            = errors.New("invalid interrupt identifier")
	ErrNotSPI                  = errors.New("interrupt is not an SPI")
	ErrNotSGI                  = errors.New("interrupt is not an SGI")
	ErrNotConfigurable         = errors.New("SGI trigger configuration is fixed")
	ErrInvalidGroup            = errors.New("invalid interrupt group")
	ErrCoreIndex               = errors.New("core index out of range")
	ErrCoreNotProbed           = errors.New("core redistributor not probed")
	ErrRedistributorNotFound   = errors.New("redistributor frame not found")
	ErrRWPTimeout              = errors.New("timed out waiting for GICD_CTLR.RWP")
	ErrNoSystemRegisters       = errors.New("GIC system register interface not implemented")
	ErrSRENotEnabled           = errors.New("GIC system register access not enabled")
	ErrAffinityRoutingDisabled = errors.New("affinity routing (ARE_NS) not enabled")
	ErrAff0OutOfRange          = errors.New("target Aff0 cannot be expressed in an SGI target list")
	ErrNoSavedContext          = errors.New("no saved GIC context")
)
