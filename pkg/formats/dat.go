package formats

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/otmap/pkg/binio"
)

// FirstClientID is the client id of the first item in a dat file.
const FirstClientID = 100

// maxAnimationFrame bounds the frame digit of the sprite index.
const maxAnimationFrame = 4096

// DatAttribute is a thing attribute tag in Tibia.dat.
type DatAttribute uint8

// Thing attribute tags.
const (
	DatGround DatAttribute = iota
	DatGroundBorder
	DatOnBottom
	DatOnTop
	DatContainer
	DatStackable
	DatForceUse
	DatMultiUse
	DatWritable
	DatWritableOnce
	DatFluidContainer
	DatSplash
	DatNotWalkable
	DatNotMovable
	DatBlockProjectile
	DatNotPathable
	DatNoMoveAnimation
	DatPickupable
	DatHangable
	DatHookSouth
	DatHookEast
	DatRotateable
	DatLight
	DatDontHide
	DatTranslucent
	DatDisplacement
	DatElevation
	DatLyingCorpse
	DatAnimateAlways
	DatMinimapColor
	DatLensHelp
	DatFullGround
	DatLookThrough
	DatCloth
	DatMarket
	DatDefaultAction

	DatUsable DatAttribute = 0xFE
	DatEnd    DatAttribute = 0xFF
)

// known reports whether the tag belongs to the dat attribute set.
func (a DatAttribute) known() bool {
	return a <= DatDefaultAction || a == DatUsable || a == DatEnd
}

// Thing describes how an item is composed from sprites.
type Thing struct {
	Width  uint8
	Height uint8
	Layers uint8

	PatternWidth  uint8
	PatternHeight uint8
	PatternDepth  uint8

	AnimationLength uint8

	Displacement [2]uint16
	Elevation    uint16

	SpriteIDs []uint32
}

// SpriteCount returns the number of sprite ids a thing with these
// dimensions carries.
func (t *Thing) SpriteCount() int {
	return int(t.Width) * int(t.Height) * int(t.Layers) *
		int(t.PatternWidth) * int(t.PatternHeight) * int(t.PatternDepth) *
		int(t.AnimationLength)
}

// SpriteIndex returns the index into SpriteIDs for the given animation
// frame, pattern cell, layer and sub-tile. The frame is the most
// significant digit and x the least. Pattern coordinates wrap around their
// axis. Returns false when the thing has no sprites or any argument is
// negative.
func (t *Thing) SpriteIndex(frame, patternY, patternX, layer, y, x int) (int, bool) {
	if len(t.SpriteIDs) == 0 || t.PatternWidth == 0 || t.PatternHeight == 0 {
		return 0, false
	}
	if min(frame, patternY, patternX, layer, y, x) < 0 {
		return 0, false
	}

	ph, pw := int(t.PatternHeight), int(t.PatternWidth)
	idx := frame % maxAnimationFrame
	idx = idx*ph + patternY%ph
	idx = idx*pw + patternX%pw
	idx = idx*int(t.Layers) + layer
	idx = idx*int(t.Height) + y
	idx = idx*int(t.Width) + x

	return idx % len(t.SpriteIDs), true
}

// Dat is a parsed Tibia.dat item metadata file.
type Dat struct {
	Signature uint32

	// Items[0] is client id 100.
	Items []Thing

	// Counts of the sections that follow items; they are not decoded.
	Outfits  uint16
	Effects  uint16
	Missiles uint16
}

// Thing returns the thing for a client id.
func (d *Dat) Thing(clientID uint16) (*Thing, bool) {
	if clientID < FirstClientID {
		return nil, false
	}
	idx := int(clientID) - FirstClientID
	if idx >= len(d.Items) {
		return nil, false
	}
	return &d.Items[idx], true
}

// MaxClientID returns the highest client id in the file.
func (d *Dat) MaxClientID() uint16 {
	return uint16(FirstClientID + len(d.Items) - 1)
}

// ParseDat parses a dat file from r.
func ParseDat(r io.Reader) (*Dat, error) {
	br := binio.NewReader(buffered(r))

	dat := &Dat{}
	var err error
	if dat.Signature, err = br.U32(); err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}

	itemCount, err := br.U16()
	if err != nil {
		return nil, fmt.Errorf("reading item count: %w", err)
	}
	if dat.Outfits, err = br.U16(); err != nil {
		return nil, fmt.Errorf("reading outfit count: %w", err)
	}
	if dat.Effects, err = br.U16(); err != nil {
		return nil, fmt.Errorf("reading effect count: %w", err)
	}
	if dat.Missiles, err = br.U16(); err != nil {
		return nil, fmt.Errorf("reading missile count: %w", err)
	}

	if itemCount >= FirstClientID {
		dat.Items = make([]Thing, 0, int(itemCount)-FirstClientID+1)
	}
	for id := FirstClientID; id <= int(itemCount); id++ {
		thing, err := parseThing(br)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", id, err)
		}
		dat.Items = append(dat.Items, thing)
	}

	return dat, nil
}

// ParseDatFile parses a dat file from disk.
func ParseDatFile(path string) (*Dat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dat file: %w", err)
	}
	return ParseDat(bytes.NewReader(data))
}

// parseThing decodes one thing record: an attribute list closed by DatEnd,
// then the composition header and its sprite ids.
func parseThing(r *binio.Reader) (Thing, error) {
	var thing Thing

	for {
		raw, err := r.U8()
		if err != nil {
			return Thing{}, err
		}
		attr := DatAttribute(raw)
		if !attr.known() {
			return Thing{}, r.Errorf(binio.ErrUnknownTag, "dat attribute 0x%02x", raw)
		}
		if attr == DatEnd {
			break
		}

		if err := parseDatAttribute(r, attr, &thing); err != nil {
			return Thing{}, fmt.Errorf("attribute %d: %w", attr, err)
		}
	}

	if err := parseComposition(r, &thing); err != nil {
		return Thing{}, err
	}
	return thing, nil
}

func parseDatAttribute(r *binio.Reader, attr DatAttribute, thing *Thing) error {
	var err error

	switch attr {
	case DatGround, DatWritable, DatWritableOnce:
		// ground speed or maximum text length
		_, err = r.U16()

	case DatLight:
		// intensity, color
		err = r.Skip(4)

	case DatDisplacement:
		if thing.Displacement[0], err = r.U16(); err != nil {
			return err
		}
		thing.Displacement[1], err = r.U16()

	case DatElevation:
		thing.Elevation, err = r.U16()

	case DatMinimapColor, DatLensHelp, DatCloth, DatDefaultAction:
		_, err = r.U16()

	case DatMarket:
		// category, trade-as id, show-as id, name, vocation, level
		if err = r.Skip(6); err != nil {
			return err
		}
		if _, err = r.ReadString(); err != nil {
			return err
		}
		err = r.Skip(4)
	}

	return err
}

func parseComposition(r *binio.Reader, thing *Thing) error {
	var err error
	if thing.Width, err = r.U8(); err != nil {
		return err
	}
	if thing.Height, err = r.U8(); err != nil {
		return err
	}
	if thing.Width > 1 || thing.Height > 1 {
		// exact size, only present for multi-cell things
		if _, err = r.U8(); err != nil {
			return err
		}
	}

	for _, field := range []*uint8{&thing.Layers, &thing.PatternWidth, &thing.PatternHeight, &thing.PatternDepth, &thing.AnimationLength} {
		if *field, err = r.U8(); err != nil {
			return err
		}
	}

	if thing.AnimationLength > 1 {
		// async flag, loop count, start phase, then min/max duration per frame
		if err = r.Skip(1 + 4 + 1 + 8*int(thing.AnimationLength)); err != nil {
			return err
		}
	}

	count := thing.SpriteCount()
	thing.SpriteIDs = make([]uint32, count)
	for i := range thing.SpriteIDs {
		if thing.SpriteIDs[i], err = r.U32(); err != nil {
			return fmt.Errorf("reading sprite id %d of %d: %w", i, count, err)
		}
	}
	return nil
}
