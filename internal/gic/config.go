package gic

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultRWPPollLimit bounds the GICD_CTLR.RWP busy-wait.
	DefaultRWPPollLimit = 1 << 20
	// DefaultMaxRedistributorFrames bounds the redistributor scan when no
	// frame reports GICR_TYPER.Last.
	DefaultMaxRedistributorFrames = 1024
)

// Config describes the GIC of a platform.
type Config struct {
	DistributorBase   uint64
	RedistributorBase uint64

	// Cores is the number of cores the arena reserves slots for. Core
	// positions returned by the platform must lie in [0, Cores).
	Cores int

	RWPPollLimit           int
	MaxRedistributorFrames int

	Logger *slog.Logger
}

func (c *Config) normalize() {
	if c.RWPPollLimit <= 0 {
		c.RWPPollLimit = DefaultRWPPollLimit
	}
	if c.MaxRedistributorFrames <= 0 {
		c.MaxRedistributorFrames = DefaultMaxRedistributorFrames
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.DistributorBase == 0 {
		return fmt.Errorf("gic: distributor: %w", ErrInvalidBase)
	}
	if c.RedistributorBase == 0 {
		return fmt.Errorf("gic: redistributor: %w", ErrInvalidBase)
	}
	if c.Cores <= 0 {
		return fmt.Errorf("gic: core count %d: %w", c.Cores, ErrCoreIndex)
	}
	return nil
}

// CorePositioner maps a core's affinity to its dense index in [0, Cores).
type CorePositioner interface {
	CorePos(mpidr MPIDR) (int, error)
}

// CorePosFunc adapts a function to CorePositioner.
type CorePosFunc func(mpidr MPIDR) (int, error)

func (f CorePosFunc) CorePos(mpidr MPIDR) (int, error) { return f(mpidr) }
