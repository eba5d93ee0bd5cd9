// Package platform describes the GIC layout of a board: where the distributor
// and redistributors live and which cores exist. Descriptions are YAML files.
package platform

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/tinyrange/gic/internal/gic"
	"github.com/tinyrange/gic/internal/mmio"
	"gopkg.in/yaml.v3"
)

const (
	DistributorSize     = 0x10000
	RedistributorStride = 0x20000
)

var ErrUnknownCore = errors.New("platform: unknown core")

// Hex is an address or register value written in hexadecimal in YAML.
type Hex uint64

func (h Hex) MarshalYAML() (interface{}, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%#x", uint64(h))}, nil
}

func (h *Hex) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*h = Hex(v)
	return nil
}

type Region struct {
	Base Hex `yaml:"base"`
	Size Hex `yaml:"size,omitempty"`
}

type Core struct {
	MPIDR Hex `yaml:"mpidr"`
}

// Platform is a board description.
type Platform struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`

	Distributor   Region `yaml:"distributor"`
	Redistributor Region `yaml:"redistributor"`
	Cores         []Core `yaml:"cores"`

	// ITLines sizes the simulated distributor. Real hardware reports its own.
	ITLines uint32 `yaml:"itLines,omitempty"`

	RWPPollLimit           int `yaml:"rwpPollLimit,omitempty"`
	MaxRedistributorFrames int `yaml:"maxRedistributorFrames,omitempty"`
}

func (p *Platform) normalize() {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Name == "" {
		p.Name = "unnamed"
	}
	if p.Distributor.Size == 0 {
		p.Distributor.Size = DistributorSize
	}
	if p.Redistributor.Size == 0 {
		p.Redistributor.Size = Hex(RedistributorStride * len(p.Cores))
	}
}

func (p *Platform) validate() error {
	if p.Distributor.Base == 0 {
		return fmt.Errorf("platform %s: distributor base not set", p.Name)
	}
	if p.Redistributor.Base == 0 {
		return fmt.Errorf("platform %s: redistributor base not set", p.Name)
	}
	if len(p.Cores) == 0 {
		return fmt.Errorf("platform %s: no cores", p.Name)
	}
	if p.ITLines > 31 {
		return fmt.Errorf("platform %s: itLines %d out of range", p.Name, p.ITLines)
	}

	seen := make(map[gic.MPIDR]int, len(p.Cores))
	for i, c := range p.Cores {
		m := gic.MPIDR(c.MPIDR).Affinity()
		if j, ok := seen[m]; ok {
			return fmt.Errorf("platform %s: cores %d and %d share MPIDR %s", p.Name, j, i, m)
		}
		seen[m] = i
	}
	return nil
}

// Parse decodes a platform description.
func Parse(data []byte) (Platform, error) {
	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Platform{}, fmt.Errorf("parse platform: %w", err)
	}
	p.normalize()
	if err := p.validate(); err != nil {
		return Platform{}, err
	}
	return p, nil
}

// Load reads and decodes the platform description at path.
func Load(path string) (Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Platform{}, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Platform{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Write encodes p as YAML.
func (p Platform) Write(w io.Writer) error {
	p.normalize()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&p); err != nil {
		return fmt.Errorf("encode platform: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close platform encoder: %w", err)
	}
	return nil
}

// FVP returns the Arm Base FVP layout: two clusters of four cores.
func FVP() Platform {
	p := Platform{
		Version:       1,
		Name:          "fvp",
		Distributor:   Region{Base: 0x2f000000},
		Redistributor: Region{Base: 0x2f100000},
	}
	for cluster := 0; cluster < 2; cluster++ {
		for cpu := 0; cpu < 4; cpu++ {
			p.Cores = append(p.Cores, Core{MPIDR: Hex(cluster<<16 | cpu<<8)})
		}
	}
	p.normalize()
	return p
}

// MPIDRs returns the affinity of every core in position order.
func (p Platform) MPIDRs() []uint64 {
	out := make([]uint64, len(p.Cores))
	for i, c := range p.Cores {
		out[i] = uint64(c.MPIDR)
	}
	return out
}

// Regions returns the distributor and redistributor regions.
func (p Platform) Regions() []mmio.Region {
	return []mmio.Region{
		{Address: uint64(p.Distributor.Base), Size: uint64(p.Distributor.Size)},
		{Address: uint64(p.Redistributor.Base), Size: uint64(p.Redistributor.Size)},
	}
}

// CorePos returns the position of the core with affinity m.
func (p Platform) CorePos(m gic.MPIDR) (int, error) {
	m = m.Affinity()
	for i, c := range p.Cores {
		if gic.MPIDR(c.MPIDR).Affinity() == m {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCore, m)
}

// GICConfig returns the driver configuration for p.
func (p Platform) GICConfig(logger *slog.Logger) gic.Config {
	return gic.Config{
		DistributorBase:        uint64(p.Distributor.Base),
		RedistributorBase:      uint64(p.Redistributor.Base),
		Cores:                  len(p.Cores),
		RWPPollLimit:           p.RWPPollLimit,
		MaxRedistributorFrames: p.MaxRedistributorFrames,
		Logger:                 logger,
	}
}

var _ gic.CorePositioner = Platform{}
