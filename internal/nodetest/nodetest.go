// Package nodetest builds synthetic OpenTibia node streams for tests.
package nodetest

import (
	"bytes"
	"encoding/binary"

	"github.com/Faultbox/otmap/pkg/encoding"
	"github.com/Faultbox/otmap/pkg/nodefile"
)

// Node is a node to encode. Data is written escaped.
type Node struct {
	Kind     byte
	Data     []byte
	Children []Node
}

// Encode serializes n as START kind escaped-data children END.
func Encode(n Node) []byte {
	var buf bytes.Buffer
	write(&buf, n)
	return buf.Bytes()
}

// EncodeTree serializes a decoded tree back into its wire form.
func EncodeTree(n *nodefile.Node) []byte {
	return Encode(FromTree(n))
}

// FromTree converts a decoded tree into an encodable Node.
func FromTree(n *nodefile.Node) Node {
	out := Node{Kind: n.Kind, Data: n.Data}
	for _, c := range n.Children {
		out.Children = append(out.Children, FromTree(c))
	}
	return out
}

func write(buf *bytes.Buffer, n Node) {
	buf.WriteByte(nodefile.Start)
	buf.WriteByte(n.Kind)
	buf.Write(Escape(n.Data))
	for _, c := range n.Children {
		write(buf, c)
	}
	buf.WriteByte(nodefile.End)
}

// Escape prefixes every control byte in data with ESCAPE.
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case nodefile.Start, nodefile.End, nodefile.Escape:
			out = append(out, nodefile.Escape)
		}
		out = append(out, b)
	}
	return out
}

// Payload accumulates little-endian fields for a node's data.
type Payload struct {
	bytes.Buffer
}

// U8 appends a byte.
func (p *Payload) U8(v uint8) *Payload {
	p.WriteByte(v)
	return p
}

// U16 appends a little-endian uint16.
func (p *Payload) U16(v uint16) *Payload {
	_ = binary.Write(&p.Buffer, binary.LittleEndian, v)
	return p
}

// U32 appends a little-endian uint32.
func (p *Payload) U32(v uint32) *Payload {
	_ = binary.Write(&p.Buffer, binary.LittleEndian, v)
	return p
}

// I32 appends a little-endian int32.
func (p *Payload) I32(v int32) *Payload {
	_ = binary.Write(&p.Buffer, binary.LittleEndian, v)
	return p
}

// Str appends a u16 length prefix and s in Windows-1252. It panics if s
// has no Windows-1252 form.
func (p *Payload) Str(s string) *Payload {
	b, err := encoding.UTF8ToWindows1252(s)
	if err != nil {
		panic(err)
	}
	p.U16(uint16(len(b)))
	p.Write(b)
	return p
}

// Position appends an x, y, z map position.
func (p *Payload) Position(x, y uint16, z uint8) *Payload {
	return p.U16(x).U16(y).U8(z)
}
