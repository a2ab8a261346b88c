package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/Faultbox/otmap/pkg/binio"
)

// Sprite dimensions in pixels.
const (
	SpriteSize      = 32
	SpritePixels    = SpriteSize * SpriteSize
	spriteRowBytes  = SpriteSize * 4
	spriteColorKey  = 3
	spriteRunHeader = 4
)

// spriteDirChunk bounds how many directory entries are read at once.
const spriteDirChunk = 1 << 16

// ErrSpriteNotFound is returned for sprite ids outside the container.
var ErrSpriteNotFound = errors.New("sprite not found")

// SpriteFile is an opened Tibia.spr container. Sprites are decoded on
// demand from the backing reader; a SpriteFile is not safe for concurrent
// use.
type SpriteFile struct {
	Signature uint32

	// Offsets[i] is the location of sprite i+1. Zero marks an empty sprite.
	Offsets []uint32

	r      *binio.Reader
	closer io.Closer
}

// OpenSprites reads the sprite directory from r.
func OpenSprites(r io.ReadSeeker) (*SpriteFile, error) {
	br := binio.NewReader(r)

	s := &SpriteFile{r: br}
	var err error
	if s.Signature, err = br.U32(); err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	count, err := br.U32()
	if err != nil {
		return nil, fmt.Errorf("reading sprite count: %w", err)
	}

	s.Offsets = make([]uint32, 0, min(int(count), 1<<20))
	for remaining := int(count); remaining > 0; {
		n := min(remaining, spriteDirChunk)
		raw, err := br.Bytes(4 * n)
		if err != nil {
			return nil, fmt.Errorf("reading offsets %d..%d of %d: %w", len(s.Offsets), len(s.Offsets)+n, count, err)
		}
		for i := 0; i < len(raw); i += 4 {
			s.Offsets = append(s.Offsets, binary.LittleEndian.Uint32(raw[i:]))
		}
		remaining -= n
	}

	return s, nil
}

// OpenSpritesFile opens a sprite file from disk. Close releases it.
func OpenSpritesFile(path string) (*SpriteFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sprite file: %w", err)
	}
	s, err := OpenSprites(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// Close closes the underlying file if OpenSpritesFile opened it.
func (s *SpriteFile) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Count returns the number of sprites in the directory.
func (s *SpriteFile) Count() int {
	return len(s.Offsets)
}

// ReadSprite decodes sprite id into out, a 4-bytes-per-pixel buffer whose
// rows are stride bytes apart. The sprite occupies the top-left 32x32
// pixels; transparent pixels are left untouched. The color bytes are copied
// in file order and alpha is set to 255.
func (s *SpriteFile) ReadSprite(id uint32, out []byte, stride int) error {
	if id == 0 || int(id) > len(s.Offsets) {
		return fmt.Errorf("%w: id %d, container holds %d", ErrSpriteNotFound, id, len(s.Offsets))
	}
	if stride < spriteRowBytes {
		return fmt.Errorf("%w: stride %d is smaller than a sprite row (%d bytes)", binio.ErrPrecondition, stride, spriteRowBytes)
	}
	if need := (SpriteSize-1)*stride + spriteRowBytes; len(out) < need {
		return fmt.Errorf("%w: output buffer holds %d bytes, sprite needs %d at stride %d", binio.ErrPrecondition, len(out), need, stride)
	}

	offset := s.Offsets[id-1]
	if offset == 0 {
		return nil
	}

	r := s.r
	if err := r.SeekTo(int64(offset)); err != nil {
		return fmt.Errorf("seeking to sprite %d: %w", id, err)
	}
	if err := r.Skip(spriteColorKey); err != nil {
		return fmt.Errorf("sprite %d: %w", id, err)
	}

	budget, err := r.U16()
	if err != nil {
		return fmt.Errorf("sprite %d: %w", id, err)
	}
	block, err := r.Bytes(int(budget))
	if err != nil {
		return fmt.Errorf("sprite %d: %w", id, err)
	}

	if err := decodeSpriteRuns(block, out, stride); err != nil {
		return fmt.Errorf("sprite %d at offset %d: %w", id, offset, err)
	}
	return nil
}

// decodeSpriteRuns expands (transparent, opaque) pixel runs into out. The
// runs must consume the block exactly.
func decodeSpriteRuns(block []byte, out []byte, stride int) error {
	r := binio.FromBytes(block)

	pixel := 0
	for !r.Empty() {
		if r.Len() < spriteRunHeader {
			return r.Errorf(binio.ErrMalformedStream, "%d bytes left, less than a run header", r.Len())
		}
		transparent, _ := r.U16()
		opaque, _ := r.U16()

		if need := 3 * int(opaque); r.Len() < need {
			return r.Errorf(binio.ErrMalformedStream, "run of %d pixels needs %d bytes, %d left", opaque, need, r.Len())
		}

		pixel += int(transparent)
		if pixel+int(opaque) > SpritePixels {
			return r.Errorf(binio.ErrMalformedStream, "run ends at pixel %d, past %d", pixel+int(opaque), SpritePixels)
		}

		for i := 0; i < int(opaque); i++ {
			p := (pixel/SpriteSize)*stride + (pixel%SpriteSize)*4
			if err := r.ReadFull(out[p : p+3]); err != nil {
				return err
			}
			out[p+3] = 0xFF
			pixel++
		}
	}

	return nil
}

// Sprite decodes sprite id into a new 32x32 image.
func (s *SpriteFile) Sprite(id uint32) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, SpriteSize, SpriteSize))
	if err := s.ReadSprite(id, img.Pix, img.Stride); err != nil {
		return nil, err
	}
	return img, nil
}
