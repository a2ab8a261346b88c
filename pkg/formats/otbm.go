package formats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/otmap/pkg/binio"
	"github.com/Faultbox/otmap/pkg/nodefile"
)

// OTBMNode is a map node kind.
type OTBMNode uint8

// Map node kinds.
const (
	NodeRoot      OTBMNode = 0
	NodeRootV1    OTBMNode = 1
	NodeMapData   OTBMNode = 2
	NodeItemDef   OTBMNode = 3
	NodeTileArea  OTBMNode = 4
	NodeTile      OTBMNode = 5
	NodeItem      OTBMNode = 6
	NodeTileSq    OTBMNode = 7
	NodeTileRef   OTBMNode = 8
	NodeSpawns    OTBMNode = 9
	NodeSpawnArea OTBMNode = 10
	NodeMonster   OTBMNode = 11
	NodeTowns     OTBMNode = 12
	NodeTown      OTBMNode = 13
	NodeHouseTile OTBMNode = 14
	NodeWaypoints OTBMNode = 15
	NodeWaypoint  OTBMNode = 16
)

var nodeNames = map[OTBMNode]string{
	NodeRoot:      "Root",
	NodeRootV1:    "RootV1",
	NodeMapData:   "MapData",
	NodeItemDef:   "ItemDef",
	NodeTileArea:  "TileArea",
	NodeTile:      "Tile",
	NodeItem:      "Item",
	NodeTileSq:    "TileSquare",
	NodeTileRef:   "TileRef",
	NodeSpawns:    "Spawns",
	NodeSpawnArea: "SpawnArea",
	NodeMonster:   "Monster",
	NodeTowns:     "Towns",
	NodeTown:      "Town",
	NodeHouseTile: "HouseTile",
	NodeWaypoints: "Waypoints",
	NodeWaypoint:  "Waypoint",
}

// String returns the node kind name.
func (k OTBMNode) String() string {
	if name, ok := nodeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// OTBMAttribute is an attribute tag inside map node data.
type OTBMAttribute uint8

// Map attribute tags.
const (
	AttrMapDescription  OTBMAttribute = 1
	AttrTileFlags       OTBMAttribute = 3
	AttrActionID        OTBMAttribute = 4
	AttrUniqueID        OTBMAttribute = 5
	AttrText            OTBMAttribute = 6
	AttrItemDescription OTBMAttribute = 7
	AttrTeleportDest    OTBMAttribute = 8
	AttrItem            OTBMAttribute = 9
	AttrDepotID         OTBMAttribute = 10
	AttrHouseFile       OTBMAttribute = 11
	AttrRuneCharges     OTBMAttribute = 12
	AttrSpawnFile       OTBMAttribute = 13
	AttrHouseDoorID     OTBMAttribute = 14
	AttrCount           OTBMAttribute = 15
	AttrDuration        OTBMAttribute = 16
	AttrDecayingState   OTBMAttribute = 17
	AttrWrittenDate     OTBMAttribute = 18
	AttrWrittenBy       OTBMAttribute = 19
	AttrSleeperGUID     OTBMAttribute = 20
	AttrSleepStart      OTBMAttribute = 21
	AttrCharges         OTBMAttribute = 22
	AttrContainerItems  OTBMAttribute = 23
	AttrName            OTBMAttribute = 24
	AttrArticle         OTBMAttribute = 25
	AttrPluralName      OTBMAttribute = 26
	AttrWeight          OTBMAttribute = 27
	AttrAttack          OTBMAttribute = 28
	AttrDefense         OTBMAttribute = 29
	AttrExtraDefense    OTBMAttribute = 30
	AttrArmor           OTBMAttribute = 31
	AttrHitChance       OTBMAttribute = 32
	AttrShootRange      OTBMAttribute = 33
	AttrAttributeMap    OTBMAttribute = 128
)

// attrValue is the wire shape of an item attribute payload.
type attrValue uint8

const (
	valueU8 attrValue = iota + 1
	valueU16
	valueU32
	valueI32
	valueString
	valuePosition
)

// itemAttrValues lists the item attributes that can be decoded and their
// payload shape. Anything else has no length to skip by and fails.
var itemAttrValues = map[OTBMAttribute]attrValue{
	AttrCount:           valueU8,
	AttrRuneCharges:     valueU8,
	AttrDecayingState:   valueU8,
	AttrHitChance:       valueU8,
	AttrShootRange:      valueU8,
	AttrHouseDoorID:     valueU8,
	AttrCharges:         valueU16,
	AttrActionID:        valueU16,
	AttrUniqueID:        valueU16,
	AttrDepotID:         valueU16,
	AttrWrittenDate:     valueU32,
	AttrWeight:          valueU32,
	AttrSleeperGUID:     valueU32,
	AttrSleepStart:      valueU32,
	AttrDuration:        valueI32,
	AttrAttack:          valueI32,
	AttrDefense:         valueI32,
	AttrExtraDefense:    valueI32,
	AttrArmor:           valueI32,
	AttrText:            valueString,
	AttrWrittenBy:       valueString,
	AttrItemDescription: valueString,
	AttrName:            valueString,
	AttrArticle:         valueString,
	AttrPluralName:      valueString,
	AttrTeleportDest:    valuePosition,
}

// ItemAttribute is one decoded attribute of a map item. Which field holds
// the value depends on Kind: numeric attributes use Int, string attributes
// Text and teleport destinations Position. Rune charges are reported as
// AttrCount.
type ItemAttribute struct {
	Kind     OTBMAttribute
	Int      int64
	Text     string
	Position Position
}

// MapItem is an item placed on a tile.
type MapItem struct {
	ID         uint16 // server id
	Attributes []ItemAttribute
}

// Town is a town record with its temple position.
type Town struct {
	ID             uint32
	Name           string
	TemplePosition Position
}

// Waypoint is a named map position.
type Waypoint struct {
	Name     string
	Position Position
}

// TileFunc receives one completed tile. The items slice is reused after
// the call returns; copy it to keep it.
type TileFunc func(pos Position, items []MapItem)

// MapOption configures a MapLoader.
type MapOption func(*MapLoader)

// WithLogger sets the logger used to report skipped nodes.
func WithLogger(log *zap.Logger) MapOption {
	return func(l *MapLoader) {
		l.log = log
	}
}

// MapLoader streams an .otbm map. OpenMap reads the headers, Load then
// continues from the same position and emits tiles one at a time.
type MapLoader struct {
	Version      uint32
	Width        uint16
	Height       uint16
	ItemsMajor   uint32
	ItemsMinor   uint32
	Descriptions []string
	HouseFiles   []string
	SpawnFiles   []string

	Towns     []Town
	Waypoints []Waypoint

	// Tiles counts the tiles emitted by Load.
	Tiles int

	r       *binio.Reader
	closer  io.Closer
	log     *zap.Logger
	headers bool
	loaded  bool

	// tilesFollow is set when the header pass ended on a START byte, so at
	// least one more node must follow.
	tilesFollow bool

	payload bytes.Reader
	pr      binio.Reader

	origin    Position
	hasOrigin bool
	tile      Position
	hasTile   bool
	items     []MapItem
	emit      TileFunc
}

// OpenMap reads the map headers from r. The leading u32 file identifier
// must already have been consumed. r must stay readable until Load returns.
func OpenMap(r io.Reader, opts ...MapOption) (*MapLoader, error) {
	l := &MapLoader{
		r:   binio.NewReader(buffered(r)),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	stopped, err := nodefile.Stream(l.r, false, l.headerNode)
	if err != nil {
		return nil, fmt.Errorf("reading map headers: %w", err)
	}
	l.tilesFollow = stopped
	if !l.headers {
		return nil, fmt.Errorf("%w: map data node not found", binio.ErrMalformedStream)
	}
	return l, nil
}

// OpenMapFile opens an .otbm file, checks its identifier and reads the
// headers. Close releases the file.
func OpenMapFile(path string, opts ...MapOption) (*MapLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening map file: %w", err)
	}

	br := binio.NewReader(f)
	if _, err := br.U32(); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading file identifier: %w", err)
	}

	l, err := OpenMap(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.closer = f
	return l, nil
}

// Close closes the underlying file if the loader opened it.
func (l *MapLoader) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Load streams the tile section and calls fn once per tile. A tile is
// emitted when the next tile or tile area begins, and the last one after
// the input is exhausted. Load can only run once.
func (l *MapLoader) Load(fn TileFunc) error {
	if l.loaded {
		return errors.New("map already loaded")
	}
	l.loaded = true
	l.emit = fn

	if !l.tilesFollow {
		// the header section was the whole file
		return nil
	}
	if _, err := nodefile.Stream(l.r, true, l.tileNode); err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	l.flushTile()
	return nil
}

func (l *MapLoader) headerNode(kind byte, data []byte) (bool, error) {
	r := binio.FromBytes(data)

	switch OTBMNode(kind) {
	case NodeRoot, NodeRootV1:
		var err error
		if l.Version, err = r.U32(); err != nil {
			return false, err
		}
		if l.Width, err = r.U16(); err != nil {
			return false, err
		}
		if l.Height, err = r.U16(); err != nil {
			return false, err
		}
		if l.ItemsMajor, err = r.U32(); err != nil {
			return false, err
		}
		if l.ItemsMinor, err = r.U32(); err != nil {
			return false, err
		}
		return true, nil

	case NodeMapData:
		for !r.Empty() {
			raw, err := r.U8()
			if err != nil {
				return false, err
			}
			attr := OTBMAttribute(raw)
			if attr != AttrMapDescription && attr != AttrHouseFile && attr != AttrSpawnFile {
				return false, r.Errorf(binio.ErrUnknownTag, "map data attribute %d", raw)
			}
			value, err := r.ReadString()
			if err != nil {
				return false, err
			}
			switch attr {
			case AttrMapDescription:
				l.Descriptions = append(l.Descriptions, value)
			case AttrHouseFile:
				l.HouseFiles = append(l.HouseFiles, value)
			case AttrSpawnFile:
				l.SpawnFiles = append(l.SpawnFiles, value)
			}
		}
		l.headers = true
		return false, nil

	default:
		return false, fmt.Errorf("%w: %s node before map data", binio.ErrMalformedStream, OTBMNode(kind))
	}
}

func (l *MapLoader) tileNode(kind byte, data []byte) (bool, error) {
	l.payload.Reset(data)
	l.pr.Reset(&l.payload)
	r := &l.pr

	var err error
	switch k := OTBMNode(kind); k {
	case NodeTileArea:
		l.flushTile()
		if l.origin, err = ReadPosition(r); err != nil {
			return false, fmt.Errorf("tile area: %w", err)
		}
		l.hasOrigin = true

	case NodeTile, NodeHouseTile:
		if err = l.readTile(r, k); err != nil {
			return false, fmt.Errorf("tile near %s: %w", l.origin, err)
		}

	case NodeItem:
		if !l.hasTile {
			return false, fmt.Errorf("%w: item node outside of a tile", binio.ErrPrecondition)
		}
		item, err := readMapItem(r)
		if err != nil {
			return false, fmt.Errorf("item on tile %s: %w", l.tile, err)
		}
		l.items = append(l.items, item)

	case NodeTown:
		var town Town
		if town.ID, err = r.U32(); err == nil {
			if town.Name, err = r.ReadString(); err == nil {
				town.TemplePosition, err = ReadPosition(r)
			}
		}
		if err != nil {
			return false, fmt.Errorf("town: %w", err)
		}
		l.Towns = append(l.Towns, town)

	case NodeWaypoint:
		var wp Waypoint
		if wp.Name, err = r.ReadString(); err == nil {
			wp.Position, err = ReadPosition(r)
		}
		if err != nil {
			return false, fmt.Errorf("waypoint: %w", err)
		}
		l.Waypoints = append(l.Waypoints, wp)

	default:
		l.log.Debug("ignoring map node", zap.Stringer("kind", k), zap.Int("size", len(data)))
	}

	return true, nil
}

func (l *MapLoader) readTile(r *binio.Reader, kind OTBMNode) error {
	if !l.hasOrigin {
		return fmt.Errorf("%w: tile node outside of a tile area", binio.ErrPrecondition)
	}

	dx, err := r.U8()
	if err != nil {
		return err
	}
	dy, err := r.U8()
	if err != nil {
		return err
	}

	l.flushTile()

	x, y := int(l.origin.X)+int(dx), int(l.origin.Y)+int(dy)
	if x > 0xFFFF || y > 0xFFFF {
		return fmt.Errorf("%w: tile offset (%d,%d) overflows area %s", binio.ErrMalformedStream, dx, dy, l.origin)
	}
	l.tile = Position{X: uint16(x), Y: uint16(y), Z: l.origin.Z}
	l.hasTile = true

	if kind == NodeHouseTile {
		if _, err := r.U32(); err != nil { // house id
			return err
		}
	}

	for !r.Empty() {
		raw, err := r.U8()
		if err != nil {
			return err
		}
		switch OTBMAttribute(raw) {
		case AttrTileFlags:
			if _, err := r.U32(); err != nil {
				return err
			}
		case AttrItem:
			id, err := r.U16()
			if err != nil {
				return err
			}
			l.items = append(l.items, MapItem{ID: id})
		default:
			return r.Errorf(binio.ErrUnknownTag, "tile attribute %d", raw)
		}
	}
	return nil
}

func (l *MapLoader) flushTile() {
	if !l.hasTile {
		return
	}
	l.emit(l.tile, l.items)
	l.Tiles++
	l.items = l.items[:0]
	l.hasTile = false
}

func readMapItem(r *binio.Reader) (MapItem, error) {
	id, err := r.U16()
	if err != nil {
		return MapItem{}, err
	}
	item := MapItem{ID: id}

	for !r.Empty() {
		raw, err := r.U8()
		if err != nil {
			return MapItem{}, err
		}
		attr, err := readItemAttribute(r, OTBMAttribute(raw))
		if err != nil {
			return MapItem{}, fmt.Errorf("item %d: %w", id, err)
		}
		item.Attributes = append(item.Attributes, attr)
	}
	return item, nil
}

func readItemAttribute(r *binio.Reader, kind OTBMAttribute) (ItemAttribute, error) {
	shape, ok := itemAttrValues[kind]
	if !ok {
		return ItemAttribute{}, r.Errorf(binio.ErrUnknownTag, "item attribute %d", uint8(kind))
	}
	if kind == AttrRuneCharges {
		kind = AttrCount
	}

	attr := ItemAttribute{Kind: kind}
	switch shape {
	case valueU8:
		v, err := r.U8()
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Int = int64(v)
	case valueU16:
		v, err := r.U16()
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Int = int64(v)
	case valueU32:
		v, err := r.U32()
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Int = int64(v)
	case valueI32:
		v, err := r.I32()
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Int = int64(v)
	case valueString:
		v, err := r.ReadString()
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Text = v
	case valuePosition:
		v, err := ReadPosition(r)
		if err != nil {
			return ItemAttribute{}, err
		}
		attr.Position = v
	}
	return attr, nil
}
