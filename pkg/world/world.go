// Package world stores decoded map tiles in fixed-size square sectors.
//
// A Map is owned by a single goroutine; callers serialize access.
package world

import (
	"cmp"
	"iter"
	"maps"
	"slices"

	"github.com/google/hilbert"

	"github.com/Faultbox/otmap/pkg/formats"
)

// SectorSize is the edge length of a sector in tiles.
const SectorSize = 32

const sectorMask = SectorSize - 1

// sectorGrid is the number of sectors along one axis of the u16 world.
const sectorGrid = (1 << 16) / SectorSize

// Sector holds the tiles of one SectorSize x SectorSize square on a floor.
type Sector struct {
	Origin formats.Position

	// Tiles is indexed column-major: (x-Origin.X)*SectorSize + (y-Origin.Y).
	Tiles [SectorSize * SectorSize][]formats.MapItem
}

// SectorOrigin quantizes pos to the origin of the sector containing it.
func SectorOrigin(pos formats.Position) formats.Position {
	return formats.Position{X: pos.X &^ sectorMask, Y: pos.Y &^ sectorMask, Z: pos.Z}
}

func tileIndex(pos formats.Position) int {
	return int(pos.X&sectorMask)*SectorSize + int(pos.Y&sectorMask)
}

// Tile returns the item list at pos, which must lie inside the sector.
func (s *Sector) Tile(pos formats.Position) []formats.MapItem {
	return s.Tiles[tileIndex(pos)]
}

// TilePosition returns the world position of tile index i.
func (s *Sector) TilePosition(i int) formats.Position {
	return formats.Position{
		X: s.Origin.X + uint16(i/SectorSize),
		Y: s.Origin.Y + uint16(i%SectorSize),
		Z: s.Origin.Z,
	}
}

// Map is a sparse collection of sectors keyed by origin.
type Map struct {
	sectors map[formats.Position]*Sector
	tiles   int
}

// New returns an empty Map.
func New() *Map {
	return &Map{sectors: make(map[formats.Position]*Sector)}
}

// Sector returns the sector containing pos, if it exists.
func (m *Map) Sector(pos formats.Position) (*Sector, bool) {
	s, ok := m.sectors[SectorOrigin(pos)]
	return s, ok
}

// SectorOrCreate returns the sector containing pos, creating it on first
// use.
func (m *Map) SectorOrCreate(pos formats.Position) *Sector {
	origin := SectorOrigin(pos)
	if s, ok := m.sectors[origin]; ok {
		return s
	}
	s := &Sector{Origin: origin}
	m.sectors[origin] = s
	return s
}

// Tile returns the items at pos, or nil if nothing was stored there.
func (m *Map) Tile(pos formats.Position) []formats.MapItem {
	s, ok := m.Sector(pos)
	if !ok {
		return nil
	}
	return s.Tile(pos)
}

// AddTile appends a copy of items to the tile at pos. Its signature
// matches formats.TileFunc so it can be handed to MapLoader.Load.
func (m *Map) AddTile(pos formats.Position, items []formats.MapItem) {
	s := m.SectorOrCreate(pos)
	i := tileIndex(pos)
	if s.Tiles[i] == nil {
		m.tiles++
	}
	s.Tiles[i] = append(s.Tiles[i], items...)
	if s.Tiles[i] == nil {
		// keep empty tiles distinguishable from absent ones
		s.Tiles[i] = []formats.MapItem{}
	}
}

// Len returns the number of sectors.
func (m *Map) Len() int {
	return len(m.sectors)
}

// TileCount returns the number of distinct tiles stored.
func (m *Map) TileCount() int {
	return m.tiles
}

// Sectors iterates over all sectors ordered by floor, then along a Hilbert
// curve over the sector grid so neighbours in the sequence are spatially
// close.
func (m *Map) Sectors() iter.Seq[*Sector] {
	return m.ordered(slices.Collect(maps.Values(m.sectors)))
}

// Floor iterates over the sectors of floor z in Hilbert order.
func (m *Map) Floor(z uint8) iter.Seq[*Sector] {
	var sectors []*Sector
	for origin, s := range m.sectors {
		if origin.Z == z {
			sectors = append(sectors, s)
		}
	}
	return m.ordered(sectors)
}

func (m *Map) ordered(sectors []*Sector) iter.Seq[*Sector] {
	h, _ := hilbert.NewHilbert(sectorGrid)

	keys := make(map[*Sector]int, len(sectors))
	for _, s := range sectors {
		d, _ := h.MapInverse(int(s.Origin.X)/SectorSize, int(s.Origin.Y)/SectorSize)
		keys[s] = d
	}
	slices.SortFunc(sectors, func(a, b *Sector) int {
		return cmp.Or(
			cmp.Compare(a.Origin.Z, b.Origin.Z),
			cmp.Compare(keys[a], keys[b]),
		)
	})

	return func(yield func(*Sector) bool) {
		for _, s := range sectors {
			if !yield(s) {
				return
			}
		}
	}
}
