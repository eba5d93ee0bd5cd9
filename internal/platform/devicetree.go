package platform

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/gic/internal/gic"
)

const (
	fdtMagic       = 0xd00dfeed
	fdtHeaderSize  = 0x28
	fdtVersion     = 17
	fdtLastCompVer = 16

	fdtBeginNode = 0x1
	fdtEndNode   = 0x2
	fdtProp      = 0x3
	fdtEnd       = 0x9

	// phandle of the interrupt controller node.
	gicPhandle = 1
)

type dtProp struct {
	name  string
	value []byte
}

type dtNode struct {
	name     string
	props    []dtProp
	children []*dtNode
}

func (n *dtNode) child(name string) *dtNode {
	c := &dtNode{name: name}
	n.children = append(n.children, c)
	return c
}

func (n *dtNode) flag(name string) { n.props = append(n.props, dtProp{name: name}) }

func (n *dtNode) str(name string, values ...string) {
	var buf bytes.Buffer
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte(0)
	}
	n.props = append(n.props, dtProp{name, buf.Bytes()})
}

func (n *dtNode) cells(name string, values ...uint32) {
	data := make([]byte, 0, 4*len(values))
	for _, v := range values {
		data = binary.BigEndian.AppendUint32(data, v)
	}
	n.props = append(n.props, dtProp{name, data})
}

func (n *dtNode) cells64(name string, values ...uint64) {
	data := make([]byte, 0, 8*len(values))
	for _, v := range values {
		data = binary.BigEndian.AppendUint64(data, v)
	}
	n.props = append(n.props, dtProp{name, data})
}

// DeviceTree renders the platform as a flattened device tree blob holding the
// cpus node and the arm,gic-v3 interrupt controller, for handing to a guest
// or comparing against firmware.
func (p Platform) DeviceTree() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	root := &dtNode{}
	root.str("compatible", "tinyrange,"+p.Name)
	root.cells("#address-cells", 2)
	root.cells("#size-cells", 2)
	root.cells("interrupt-parent", gicPhandle)

	cpus := root.child("cpus")
	cpus.cells("#address-cells", 2)
	cpus.cells("#size-cells", 0)
	for _, c := range p.Cores {
		aff := uint64(gic.MPIDR(c.MPIDR).Affinity())
		cpu := cpus.child(fmt.Sprintf("cpu@%x", aff))
		cpu.str("device_type", "cpu")
		cpu.str("compatible", "arm,armv8")
		cpu.cells64("reg", aff)
		cpu.str("enable-method", "psci")
	}

	gicNode := root.child(fmt.Sprintf("interrupt-controller@%x", uint64(p.Distributor.Base)))
	gicNode.str("compatible", "arm,gic-v3")
	gicNode.flag("interrupt-controller")
	gicNode.cells("#interrupt-cells", 3)
	gicNode.cells("#redistributor-regions", 1)
	gicNode.cells64("reg",
		uint64(p.Distributor.Base), uint64(p.Distributor.Size),
		uint64(p.Redistributor.Base), uint64(p.Redistributor.Size))
	gicNode.cells("phandle", gicPhandle)

	var enc fdtEncoder
	enc.node(root)
	return enc.blob(), nil
}

type fdtEncoder struct {
	structs bytes.Buffer
	strings bytes.Buffer
	offsets map[string]uint32
}

func (e *fdtEncoder) token(t uint32) {
	e.structs.Write(binary.BigEndian.AppendUint32(nil, t))
}

func (e *fdtEncoder) align() {
	for e.structs.Len()%4 != 0 {
		e.structs.WriteByte(0)
	}
}

func (e *fdtEncoder) stringOffset(name string) uint32 {
	if e.offsets == nil {
		e.offsets = make(map[string]uint32)
	}
	if off, ok := e.offsets[name]; ok {
		return off
	}
	off := uint32(e.strings.Len())
	e.strings.WriteString(name)
	e.strings.WriteByte(0)
	e.offsets[name] = off
	return off
}

func (e *fdtEncoder) node(n *dtNode) {
	e.token(fdtBeginNode)
	e.structs.WriteString(n.name)
	e.structs.WriteByte(0)
	e.align()

	for _, p := range n.props {
		e.token(fdtProp)
		e.token(uint32(len(p.value)))
		e.token(e.stringOffset(p.name))
		e.structs.Write(p.value)
		e.align()
	}
	for _, c := range n.children {
		e.node(c)
	}
	e.token(fdtEndNode)
}

func (e *fdtEncoder) blob() []byte {
	e.token(fdtEnd)

	// One empty memory reservation entry terminates the block.
	const reserveSize = 16
	offReserve := uint32(fdtHeaderSize)
	offStruct := offReserve + reserveSize
	offStrings := offStruct + uint32(e.structs.Len())
	total := offStrings + uint32(e.strings.Len())

	out := make([]byte, 0, total)
	for _, v := range []uint32{
		fdtMagic, total, offStruct, offStrings, offReserve,
		fdtVersion, fdtLastCompVer, 0,
		uint32(e.strings.Len()), uint32(e.structs.Len()),
	} {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	out = append(out, make([]byte, reserveSize)...)
	out = append(out, e.structs.Bytes()...)
	return append(out, e.strings.Bytes()...)
}
