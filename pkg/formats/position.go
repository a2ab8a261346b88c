package formats

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Faultbox/otmap/pkg/binio"
)

// Position is a world coordinate. Z is the floor.
type Position struct {
	X uint16
	Y uint16
	Z uint8
}

// String returns the position as "x,y,z".
func (p Position) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// ReadPosition reads a u16 x, u16 y, u8 z triple.
func ReadPosition(r *binio.Reader) (Position, error) {
	var p Position
	var err error
	if p.X, err = r.U16(); err != nil {
		return Position{}, err
	}
	if p.Y, err = r.U16(); err != nil {
		return Position{}, err
	}
	if p.Z, err = r.U8(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// buffered returns r unchanged if it already supports byte reads, and
// wraps it in a bufio.Reader otherwise.
func buffered(r io.Reader) io.Reader {
	if _, ok := r.(io.ByteReader); ok {
		return r
	}
	return bufio.NewReader(r)
}
