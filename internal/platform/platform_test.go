package platform

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/gic/internal/gic"
)

const boardYAML = `
name: board
distributor:
  base: 0x8000000
redistributor:
  base: 0x80a0000
cores:
  - mpidr: 0x0
  - mpidr: 0x1
  - mpidr: 0x100
itLines: 4
rwpPollLimit: 500
`

func TestParseAppliesDefaults(t *testing.T) {
	p, err := Parse([]byte(boardYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("Version = %d, want 1", p.Version)
	}
	if p.Distributor.Base != 0x8000000 || p.Distributor.Size != DistributorSize {
		t.Fatalf("Distributor = %+v", p.Distributor)
	}
	if p.Redistributor.Size != 3*RedistributorStride {
		t.Fatalf("Redistributor.Size = %#x", uint64(p.Redistributor.Size))
	}
	if p.ITLines != 4 {
		t.Fatalf("ITLines = %d", p.ITLines)
	}

	cfg := p.GICConfig(nil)
	if cfg.DistributorBase != 0x8000000 || cfg.RedistributorBase != 0x80a0000 || cfg.Cores != 3 {
		t.Fatalf("GICConfig = %+v", cfg)
	}
	if cfg.RWPPollLimit != 500 {
		t.Fatalf("RWPPollLimit = %d", cfg.RWPPollLimit)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"no distributor": "redistributor: {base: 0x1000}\ncores: [{mpidr: 0}]\n",
		"no cores":       "distributor: {base: 0x1000}\nredistributor: {base: 0x20000}\n",
		"duplicate core": "distributor: {base: 0x1000}\nredistributor: {base: 0x20000}\ncores: [{mpidr: 0x100}, {mpidr: 0x80000100}]\n",
		"bad hex":        "distributor: {base: 0xzz}\n",
		"itLines":        "distributor: {base: 0x1000}\nredistributor: {base: 0x20000}\ncores: [{mpidr: 0}]\nitLines: 32\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCorePos(t *testing.T) {
	p := FVP()
	for i, want := range []uint64{0x0, 0x100, 0x200, 0x300, 0x10000, 0x10100, 0x10200, 0x10300} {
		if got := uint64(p.Cores[i].MPIDR); got != want {
			t.Fatalf("core %d MPIDR = %#x, want %#x", i, got, want)
		}
		pos, err := p.CorePos(gic.MPIDR(want) | 1<<31)
		if err != nil {
			t.Fatalf("CorePos(%#x): %v", want, err)
		}
		if pos != i {
			t.Fatalf("CorePos(%#x) = %d, want %d", want, pos, i)
		}
	}
	if _, err := p.CorePos(0x20000); !errors.Is(err, ErrUnknownCore) {
		t.Fatalf("CorePos(unknown) error = %v", err)
	}
}

func TestFVPLayout(t *testing.T) {
	p := FVP()
	regions := p.Regions()
	if regions[0].Address != 0x2f000000 || regions[0].Size != DistributorSize {
		t.Fatalf("distributor region = %+v", regions[0])
	}
	if regions[1].Address != 0x2f100000 || regions[1].Size != 8*RedistributorStride {
		t.Fatalf("redistributor region = %+v", regions[1])
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := FVP().Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "base: 0x2f000000") {
		t.Fatalf("addresses not written in hex:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "fvp.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "fvp" || len(p.Cores) != 8 || p.Cores[7].MPIDR != 0x10300 {
		t.Fatalf("loaded %+v", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load error = %v", err)
	}
}

func TestDeviceTree(t *testing.T) {
	blob, err := FVP().DeviceTree()
	if err != nil {
		t.Fatalf("DeviceTree: %v", err)
	}
	if got := binary.BigEndian.Uint32(blob[0:4]); got != fdtMagic {
		t.Fatalf("magic = %#x, want %#x", got, fdtMagic)
	}
	if got := binary.BigEndian.Uint32(blob[4:8]); int(got) != len(blob) {
		t.Fatalf("totalsize = %d, want %d", got, len(blob))
	}

	offStruct := binary.BigEndian.Uint32(blob[8:12])
	if got := binary.BigEndian.Uint32(blob[offStruct:]); got != fdtBeginNode {
		t.Fatalf("first token = %#x, want begin node", got)
	}
	offStrings := binary.BigEndian.Uint32(blob[12:16])
	sizeStrings := binary.BigEndian.Uint32(blob[32:36])
	strs := string(blob[offStrings : offStrings+sizeStrings])
	for _, name := range []string{"interrupt-controller", "#redistributor-regions", "reg", "phandle"} {
		if !strings.Contains(strs, name+"\x00") {
			t.Fatalf("strings block missing %q", name)
		}
	}

	// reg of the GIC node: distributor then redistributor (base, size) pairs.
	var reg []byte
	for _, v := range []uint64{0x2f000000, DistributorSize, 0x2f100000, 8 * RedistributorStride} {
		reg = binary.BigEndian.AppendUint64(reg, v)
	}
	if !bytes.Contains(blob, reg) {
		t.Fatalf("GIC reg property not found")
	}
	for _, node := range []string{"cpu@0\x00", "cpu@10300\x00", "interrupt-controller@2f000000\x00", "arm,gic-v3\x00"} {
		if !bytes.Contains(blob, []byte(node)) {
			t.Fatalf("blob missing %q", node)
		}
	}
}

func TestDeviceTreeRejectsInvalid(t *testing.T) {
	p := FVP()
	p.Cores = nil
	if _, err := p.DeviceTree(); err == nil {
		t.Fatalf("expected error for platform without cores")
	}
}
