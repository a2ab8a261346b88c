// Package nodefile decodes the escaped node tree format shared by OpenTibia
// item-type (.otb) and map (.otbm) files.
//
// A node is START, a kind byte, then a body of literal bytes, escaped bytes
// (ESCAPE followed by one literal), nested child nodes and a closing END.
package nodefile

import (
	"errors"

	"github.com/Faultbox/otmap/pkg/binio"
)

// Control bytes of the node format.
const (
	Escape byte = 0xFD
	Start  byte = 0xFE
	End    byte = 0xFF
)

// Node is a decoded node. Data never contains unescaped control bytes.
type Node struct {
	Kind     byte
	Data     []byte
	Children []*Node
}

// Handler receives one node at a time from Stream. The data slice is only
// valid for the duration of the call. Returning false stops the stream
// without error.
type Handler func(kind byte, data []byte) (bool, error)

func readStart(r *binio.Reader) error {
	b, err := r.U8()
	if err != nil {
		return err
	}
	if b != Start {
		return r.Errorf(binio.ErrMalformedStream, "expected node start 0x%02x, found 0x%02x", Start, b)
	}
	return nil
}

// Decode reads a complete node tree. When skipStart is set the caller has
// already consumed the leading START byte.
func Decode(r *binio.Reader, skipStart bool) (*Node, error) {
	if !skipStart {
		if err := readStart(r); err != nil {
			return nil, err
		}
	}

	kind, err := r.U8()
	if err != nil {
		return nil, err
	}

	node := &Node{Kind: kind}
	for {
		b, err := r.U8()
		if err != nil {
			return nil, err
		}

		switch b {
		case Start:
			child, err := Decode(r, true)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		case End:
			return node, nil
		case Escape:
			lit, err := r.U8()
			if err != nil {
				return nil, err
			}
			node.Data = append(node.Data, lit)
		default:
			node.Data = append(node.Data, b)
		}
	}
}

// Stream walks the node stream flat, in document order, without building a
// tree. Each node's accumulated data is handed to fn when the next START is
// seen; the final node is flushed once the source is exhausted. END bytes
// do not terminate the walk.
//
// Running out of input while waiting for the next body byte is the normal
// end of the stream. Running out anywhere else (kind byte, escaped literal)
// is reported as binio.ErrUnexpectedEnd.
//
// stopped is true when fn ended the walk at a START byte. That byte has been
// consumed, so a later Stream over r must pass skipStart.
func Stream(r *binio.Reader, skipStart bool, fn Handler) (stopped bool, err error) {
	if !skipStart {
		if err := readStart(r); err != nil {
			return false, err
		}
	}

	kind, err := r.U8()
	if err != nil {
		return false, err
	}

	var data []byte
	for {
		b, err := r.U8()
		if err != nil {
			if errors.Is(err, binio.ErrUnexpectedEnd) {
				_, err := fn(kind, data)
				return false, err
			}
			return false, err
		}

		switch b {
		case Start:
			more, err := fn(kind, data)
			if err != nil {
				return false, err
			}
			data = data[:0]
			if !more {
				return true, nil
			}
			if kind, err = r.U8(); err != nil {
				return false, err
			}
		case End:
		case Escape:
			lit, err := r.U8()
			if err != nil {
				return false, err
			}
			data = append(data, lit)
		default:
			data = append(data, b)
		}
	}
}
