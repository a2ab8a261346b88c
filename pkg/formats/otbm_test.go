package formats

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/otmap/internal/nodetest"
	"github.com/Faultbox/otmap/pkg/binio"
)

type loadedTile struct {
	Pos   Position
	Items []MapItem
}

func mapRoot(kind OTBMNode, children ...nodetest.Node) nodetest.Node {
	root := &nodetest.Payload{}
	root.U32(2).U16(2048).U16(1024).U32(3).U32(57)

	data := &nodetest.Payload{}
	data.U8(uint8(AttrMapDescription)).Str("Saved with Remere's Map Editor")
	data.U8(uint8(AttrSpawnFile)).Str("map-spawn.xml")
	data.U8(uint8(AttrHouseFile)).Str("map-house.xml")

	return nodetest.Node{
		Kind: uint8(kind),
		Data: root.Bytes(),
		Children: []nodetest.Node{
			{Kind: uint8(NodeMapData), Data: data.Bytes(), Children: children},
		},
	}
}

func tileArea(x, y uint16, z uint8, tiles ...nodetest.Node) nodetest.Node {
	p := &nodetest.Payload{}
	p.Position(x, y, z)
	return nodetest.Node{Kind: uint8(NodeTileArea), Data: p.Bytes(), Children: tiles}
}

func tile(dx, dy uint8, attrs []byte, items ...nodetest.Node) nodetest.Node {
	data := append([]byte{dx, dy}, attrs...)
	return nodetest.Node{Kind: uint8(NodeTile), Data: data, Children: items}
}

func item(id uint16, attrs ...byte) nodetest.Node {
	p := &nodetest.Payload{}
	p.U16(id)
	p.Write(attrs)
	return nodetest.Node{Kind: uint8(NodeItem), Data: p.Bytes()}
}

func openTestMap(t *testing.T, tree nodetest.Node, opts ...MapOption) *MapLoader {
	t.Helper()
	l, err := OpenMap(bytes.NewReader(nodetest.Encode(tree)), opts...)
	if err != nil {
		t.Fatalf("OpenMap failed: %v", err)
	}
	return l
}

func loadAll(l *MapLoader) ([]loadedTile, error) {
	var tiles []loadedTile
	err := l.Load(func(pos Position, items []MapItem) {
		tiles = append(tiles, loadedTile{Pos: pos, Items: slices.Clone(items)})
	})
	return tiles, err
}

func TestOpenMap_Headers(t *testing.T) {
	for _, kind := range []OTBMNode{NodeRoot, NodeRootV1} {
		t.Run(kind.String(), func(t *testing.T) {
			l := openTestMap(t, mapRoot(kind))

			if l.Version != 2 || l.Width != 2048 || l.Height != 1024 {
				t.Errorf("header = v%d %dx%d", l.Version, l.Width, l.Height)
			}
			if l.ItemsMajor != 3 || l.ItemsMinor != 57 {
				t.Errorf("items version = %d.%d", l.ItemsMajor, l.ItemsMinor)
			}
			if diff := cmp.Diff([]string{"Saved with Remere's Map Editor"}, l.Descriptions); diff != "" {
				t.Errorf("descriptions (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"map-spawn.xml"}, l.SpawnFiles); diff != "" {
				t.Errorf("spawn files (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"map-house.xml"}, l.HouseFiles); diff != "" {
				t.Errorf("house files (-want +got):\n%s", diff)
			}

			// header-only map
			tiles, err := loadAll(l)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(tiles) != 0 {
				t.Errorf("expected no tiles, got %d", len(tiles))
			}
		})
	}
}

func TestMapLoader_TruncatedTileSection(t *testing.T) {
	header := nodetest.Encode(mapRoot(NodeRoot))

	tests := []struct {
		name string
		tail []byte
	}{
		{"dangling start", []byte{0xFE}},
		{"tile area without payload", []byte{0xFE, uint8(NodeTileArea)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(slices.Clone(header), tt.tail...)
			l, err := OpenMap(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("OpenMap failed: %v", err)
			}
			tiles, err := loadAll(l)
			if !errors.Is(err, binio.ErrUnexpectedEnd) {
				t.Errorf("expected ErrUnexpectedEnd, got %v", err)
			}
			if len(tiles) != 0 {
				t.Errorf("expected no tiles, got %d", len(tiles))
			}
		})
	}
}

func TestOpenMap_Errors(t *testing.T) {
	badData := &nodetest.Payload{}
	badData.U8(uint8(AttrTileFlags)).U32(0)

	root := &nodetest.Payload{}
	root.U32(2).U16(1).U16(1).U32(3).U32(57)

	tests := []struct {
		name string
		tree nodetest.Node
		want error
	}{
		{
			name: "unknown map data attribute",
			tree: nodetest.Node{Data: root.Bytes(), Children: []nodetest.Node{{Kind: uint8(NodeMapData), Data: badData.Bytes()}}},
			want: binio.ErrUnknownTag,
		},
		{
			name: "tile area before map data",
			tree: tileArea(0, 0, 7),
			want: binio.ErrMalformedStream,
		},
		{
			name: "no map data",
			tree: nodetest.Node{Data: root.Bytes()},
			want: binio.ErrMalformedStream,
		},
		{
			name: "short root",
			tree: nodetest.Node{Data: []byte{2, 0, 0, 0}},
			want: binio.ErrUnexpectedEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenMap(bytes.NewReader(nodetest.Encode(tt.tree)))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMapLoader_Load(t *testing.T) {
	p := &nodetest.Payload{}
	p.U8(uint8(AttrItem)).U16(4526)
	groundAttr := p.Bytes()

	flags := &nodetest.Payload{}
	flags.U8(uint8(AttrTileFlags)).U32(1)

	tree := mapRoot(NodeRoot,
		tileArea(100, 200, 7,
			tile(2, 3, nil, item(99)),
			tile(4, 5, append(flags.Bytes(), groundAttr...), item(1987), item(2148)),
		),
		tileArea(256, 256, 6,
			tile(0, 0, groundAttr),
		),
	)

	l := openTestMap(t, tree)
	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []loadedTile{
		{Pos: Position{102, 203, 7}, Items: []MapItem{{ID: 99}}},
		{Pos: Position{104, 205, 7}, Items: []MapItem{{ID: 4526}, {ID: 1987}, {ID: 2148}}},
		{Pos: Position{256, 256, 6}, Items: []MapItem{{ID: 4526}}},
	}
	if diff := cmp.Diff(want, tiles); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
	if l.Tiles != 3 {
		t.Errorf("Tiles = %d, want 3", l.Tiles)
	}

	if err := l.Load(func(Position, []MapItem) {}); err == nil {
		t.Error("expected error on second Load")
	}
}

func TestMapLoader_SingleTileFlushedOnce(t *testing.T) {
	l := openTestMap(t, mapRoot(NodeRoot, tileArea(1000, 1000, 7, tile(0, 0, nil))))

	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []loadedTile{{Pos: Position{1000, 1000, 7}, Items: nil}}
	if diff := cmp.Diff(want, tiles, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestMapLoader_HouseTile(t *testing.T) {
	p := &nodetest.Payload{}
	p.U8(5).U8(6).U32(17)
	p.U8(uint8(AttrItem)).U16(405)
	house := nodetest.Node{Kind: uint8(NodeHouseTile), Data: p.Bytes(), Children: []nodetest.Node{item(1211)}}

	l := openTestMap(t, mapRoot(NodeRoot, tileArea(32, 64, 8, house)))
	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []loadedTile{{Pos: Position{37, 70, 8}, Items: []MapItem{{ID: 405}, {ID: 1211}}}}
	if diff := cmp.Diff(want, tiles); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestMapLoader_ItemAttributes(t *testing.T) {
	p := &nodetest.Payload{}
	p.U8(uint8(AttrCount)).U8(5)
	p.U8(uint8(AttrActionID)).U16(1000)
	p.U8(uint8(AttrText)).Str("hello")
	p.U8(uint8(AttrTeleportDest)).Position(160, 54, 7)
	p.U8(uint8(AttrRuneCharges)).U8(3)
	p.U8(uint8(AttrAttack)).I32(-5)
	p.U8(uint8(AttrSleeperGUID)).U32(77)

	l := openTestMap(t, mapRoot(NodeRoot, tileArea(0, 0, 7, tile(0, 0, nil, item(1387, p.Bytes()...)))))
	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tiles) != 1 || len(tiles[0].Items) != 1 {
		t.Fatalf("unexpected tiles: %+v", tiles)
	}

	want := MapItem{
		ID: 1387,
		Attributes: []ItemAttribute{
			{Kind: AttrCount, Int: 5},
			{Kind: AttrActionID, Int: 1000},
			{Kind: AttrText, Text: "hello"},
			{Kind: AttrTeleportDest, Position: Position{160, 54, 7}},
			{Kind: AttrCount, Int: 3},
			{Kind: AttrAttack, Int: -5},
			{Kind: AttrSleeperGUID, Int: 77},
		},
	}
	if diff := cmp.Diff(want, tiles[0].Items[0]); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestMapLoader_TownsAndWaypoints(t *testing.T) {
	town := &nodetest.Payload{}
	town.U32(1).Str("Königsberg").Position(32369, 32241, 7)
	wp := &nodetest.Payload{}
	wp.Str("temple").Position(32369, 32240, 7)

	tree := mapRoot(NodeRoot,
		tileArea(0, 0, 7, tile(0, 0, nil)),
		nodetest.Node{Kind: uint8(NodeTowns), Children: []nodetest.Node{{Kind: uint8(NodeTown), Data: town.Bytes()}}},
		nodetest.Node{Kind: uint8(NodeWaypoints), Children: []nodetest.Node{{Kind: uint8(NodeWaypoint), Data: wp.Bytes()}}},
	)

	l := openTestMap(t, tree)
	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tiles) != 1 {
		t.Errorf("expected 1 tile, got %d", len(tiles))
	}

	if diff := cmp.Diff([]Town{{ID: 1, Name: "Königsberg", TemplePosition: Position{32369, 32241, 7}}}, l.Towns); diff != "" {
		t.Errorf("towns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Waypoint{{Name: "temple", Position: Position{32369, 32240, 7}}}, l.Waypoints); diff != "" {
		t.Errorf("waypoints (-want +got):\n%s", diff)
	}
}

func TestMapLoader_LogsIgnoredNodes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	spawn := &nodetest.Payload{}
	spawn.Position(100, 100, 7).U8(3)

	tree := mapRoot(NodeRoot,
		nodetest.Node{Kind: uint8(NodeSpawns), Children: []nodetest.Node{{Kind: uint8(NodeSpawnArea), Data: spawn.Bytes()}}},
	)

	l := openTestMap(t, tree, WithLogger(zap.New(core)))
	if _, err := loadAll(l); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	entries := logs.FilterMessage("ignoring map node").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if got := entries[1].ContextMap()["kind"]; got != "SpawnArea" {
		t.Errorf("kind = %v, want SpawnArea", got)
	}
	if got := entries[1].ContextMap()["size"]; got != int64(6) {
		t.Errorf("size = %v, want 6", got)
	}
}

func TestMapLoader_Errors(t *testing.T) {
	unknownTileAttr := []byte{0x02}

	tests := []struct {
		name string
		tree nodetest.Node
		want error
	}{
		{
			name: "tile outside tile area",
			tree: mapRoot(NodeRoot, tile(0, 0, nil)),
			want: binio.ErrPrecondition,
		},
		{
			name: "item outside tile",
			tree: mapRoot(NodeRoot, tileArea(0, 0, 7, item(100))),
			want: binio.ErrPrecondition,
		},
		{
			name: "unknown tile attribute",
			tree: mapRoot(NodeRoot, tileArea(0, 0, 7, tile(0, 0, unknownTileAttr))),
			want: binio.ErrUnknownTag,
		},
		{
			name: "unknown item attribute",
			tree: mapRoot(NodeRoot, tileArea(0, 0, 7, tile(0, 0, nil, item(100, 99)))),
			want: binio.ErrUnknownTag,
		},
		{
			name: "undecodable text attribute",
			tree: mapRoot(NodeRoot, tileArea(0, 0, 7, tile(0, 0, nil, item(100, uint8(AttrText), 1, 0, 0x81)))),
			want: binio.ErrDecode,
		},
		{
			name: "tile offset overflows",
			tree: mapRoot(NodeRoot, tileArea(65535, 0, 7, tile(1, 0, nil))),
			want: binio.ErrMalformedStream,
		},
		{
			name: "truncated tile area",
			tree: mapRoot(NodeRoot, nodetest.Node{Kind: uint8(NodeTileArea), Data: []byte{1, 0}}),
			want: binio.ErrUnexpectedEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := openTestMap(t, tt.tree)
			_, err := loadAll(l)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOpenMapFile(t *testing.T) {
	data := append([]byte{0, 0, 0, 0}, nodetest.Encode(mapRoot(NodeRoot, tileArea(10, 20, 7, tile(1, 1, nil, item(5)))))...)

	path := filepath.Join(t.TempDir(), "test.otbm")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := OpenMapFile(path)
	if err != nil {
		t.Fatalf("OpenMapFile failed: %v", err)
	}
	defer l.Close()

	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []loadedTile{{Pos: Position{11, 21, 7}, Items: []MapItem{{ID: 5}}}}
	if diff := cmp.Diff(want, tiles); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}

	if _, err := OpenMapFile(filepath.Join(t.TempDir(), "missing.otbm")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenMapFile_GeneratedFile(t *testing.T) {
	testFile := filepath.Join("testdata", "test.otbm")
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skip("testdata/test.otbm not found, run: go run testdata/generate_map.go")
	}

	l, err := OpenMapFile(testFile)
	if err != nil {
		t.Fatalf("failed to open test map: %v", err)
	}
	defer l.Close()

	if l.Width != 64 || l.Height != 64 {
		t.Errorf("expected 64x64, got %dx%d", l.Width, l.Height)
	}

	tiles, err := loadAll(l)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(tiles))
	}

	last := tiles[3]
	want := loadedTile{
		Pos: Position{32001, 32001, 7},
		Items: []MapItem{
			{ID: 4526},
			{ID: 2050, Attributes: []ItemAttribute{{Kind: AttrActionID, Int: 1000}}},
		},
	}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("last tile mismatch (-want +got):\n%s", diff)
	}
	if len(l.Towns) != 1 || l.Towns[0].Name != "Testville" {
		t.Errorf("unexpected towns: %+v", l.Towns)
	}
}
