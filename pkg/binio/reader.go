// Package binio provides the little-endian reading surface shared by the
// OpenTibia decoders.
package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Faultbox/otmap/pkg/encoding"
)

// Reader reads fixed-width little-endian values and legacy strings from an
// ordered byte source. Every read consumes exactly the requested number of
// bytes or fails with ErrUnexpectedEnd.
type Reader struct {
	r   io.Reader
	br  io.ByteReader
	off int64
	buf [8]byte
}

// NewReader returns a Reader over r. If r also implements io.ByteReader,
// single-byte reads go through it directly.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{}
	rd.Reset(r)
	return rd
}

// FromBytes returns a Reader over an in-memory payload.
func FromBytes(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// Reset makes the Reader read from r, with the offset back at zero.
func (r *Reader) Reset(src io.Reader) {
	r.r = src
	r.br, _ = src.(io.ByteReader)
	r.off = 0
}

// Offset returns the number of bytes consumed since the last Reset.
func (r *Reader) Offset() int64 {
	return r.off
}

// Len returns the number of unread bytes for in-memory sources, or -1 when
// the source cannot report it.
func (r *Reader) Len() int {
	if l, ok := r.r.(interface{ Len() int }); ok {
		return l.Len()
	}
	return -1
}

// Empty reports whether an in-memory source has been fully consumed.
func (r *Reader) Empty() bool {
	return r.Len() == 0
}

// SeekTo repositions a seekable source and updates the offset accordingly.
func (r *Reader) SeekTo(offset int64) error {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return fmt.Errorf("binio: source is not seekable")
	}
	pos, err := s.Seek(offset, io.SeekStart)
	if err != nil {
		return err
	}
	r.off = pos
	return nil
}

func (r *Reader) fill(p []byte) error {
	n, err := io.ReadFull(r.r, p)
	r.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w at offset %d: need %d bytes, got %d", ErrUnexpectedEnd, r.off, len(p), n)
		}
		return err
	}
	return nil
}

// ReadFull reads exactly len(p) bytes into p.
func (r *Reader) ReadFull(p []byte) error {
	return r.fill(p)
}

// Bytes reads n bytes into a new slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if err := r.fill(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	if n <= 0 {
		return nil
	}
	if s, ok := r.r.(io.Seeker); ok && r.Len() >= 0 {
		if r.Len() < n {
			remaining := r.Len()
			_, _ = s.Seek(0, io.SeekEnd)
			r.off += int64(remaining)
			return fmt.Errorf("%w at offset %d: skipping %d bytes, %d left", ErrUnexpectedEnd, r.off, n, remaining)
		}
		if _, err := s.Seek(int64(n), io.SeekCurrent); err != nil {
			return err
		}
		r.off += int64(n)
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(n))
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w at offset %d: skipping %d bytes", ErrUnexpectedEnd, r.off, n)
	}
	return err
}

// Read implements io.Reader so a Reader can feed other readers.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.off += int64(n)
	return n, err
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	if r.br != nil {
		b, err := r.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w at offset %d: need 1 byte", ErrUnexpectedEnd, r.off)
			}
			return 0, err
		}
		r.off++
		return b, nil
	}
	if err := r.fill(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.fill(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

// I16 reads a little-endian int16.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// F32 reads a little-endian IEEE 754 float32.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// ReadString reads a u16 length prefix followed by that many Windows-1252 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.U16()
	if err != nil {
		return "", err
	}
	return r.ReadFixedString(int(n))
}

// ReadFixedString reads n Windows-1252 bytes. Unmappable bytes fail with
// ErrDecode; nothing is silently replaced.
func (r *Reader) ReadFixedString(n int) (string, error) {
	start := r.off
	p, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	s, err := encoding.Windows1252ToUTF8(p)
	if err != nil {
		return "", fmt.Errorf("%w at offset %d: %w", ErrDecode, start, err)
	}
	return s, nil
}
