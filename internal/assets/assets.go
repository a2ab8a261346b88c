// Package assets opens a client data set and serves item things, sprites
// and maps from it.
package assets

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/otmap/internal/config"
	"github.com/Faultbox/otmap/internal/logger"
	"github.com/Faultbox/otmap/pkg/formats"
	"github.com/Faultbox/otmap/pkg/world"
)

// ErrUnknownItem is returned for server ids without a thing.
var ErrUnknownItem = errors.New("unknown item")

// Manager holds the parsed item tables and the open sprite container.
// It is safe for concurrent use.
type Manager struct {
	Dat   *formats.Dat
	Items *formats.ItemTypes

	data    config.DataConfig
	sprites *formats.SpriteFile
	sprMu   sync.Mutex
	cache   *Cache
	log     *zap.Logger
}

// Open parses the dat and otb files named in data and opens the sprite
// container if one is configured.
func Open(data config.DataConfig, cache config.CacheConfig) (*Manager, error) {
	m := &Manager{
		data: data,
		log:  logger.Named("assets"),
	}

	start := time.Now()
	var err error
	if m.Dat, err = formats.ParseDatFile(data.Path(data.Dat)); err != nil {
		return nil, fmt.Errorf("loading %s: %w", data.Dat, err)
	}
	if m.Items, err = formats.ParseItemTypesFile(data.Path(data.Otb)); err != nil {
		return nil, fmt.Errorf("loading %s: %w", data.Otb, err)
	}

	if data.Spr != "" {
		if m.sprites, err = formats.OpenSpritesFile(data.Path(data.Spr)); err != nil {
			return nil, fmt.Errorf("loading %s: %w", data.Spr, err)
		}
		if m.cache, err = NewCache(int64(cache.SpriteCacheMB) << 20); err != nil {
			m.sprites.Close()
			return nil, err
		}
	}

	m.log.Info("data loaded",
		zap.Int("things", len(m.Dat.Items)),
		zap.Int("item_types", m.Items.Len()),
		zap.Stringer("otb_version", m.Items.Version),
		zap.Int("sprites", m.SpriteCount()),
		zap.Duration("took", time.Since(start)),
	)
	return m, nil
}

// Close releases the sprite container and cache.
func (m *Manager) Close() error {
	m.cache.Close()
	if m.sprites != nil {
		return m.sprites.Close()
	}
	return nil
}

// SpriteCount returns the number of sprites, or 0 without a container.
func (m *Manager) SpriteCount() int {
	if m.sprites == nil {
		return 0
	}
	return m.sprites.Count()
}

// ThingForServerID maps a server item id to its client thing.
func (m *Manager) ThingForServerID(serverID uint16) (*formats.Thing, error) {
	clientID, ok := m.Items.ClientID(serverID)
	if !ok {
		return nil, fmt.Errorf("%w: server id %d has no client id", ErrUnknownItem, serverID)
	}
	thing, ok := m.Dat.Thing(clientID)
	if !ok {
		return nil, fmt.Errorf("%w: client id %d of server id %d is outside the dat", ErrUnknownItem, clientID, serverID)
	}
	return thing, nil
}

// SpriteRGBA returns sprite id as a 32x32 image. Results are cached; the
// returned image is shared and must not be modified.
func (m *Manager) SpriteRGBA(id uint32) (*image.NRGBA, error) {
	if m.sprites == nil {
		return nil, fmt.Errorf("%w: no sprite file configured", formats.ErrSpriteNotFound)
	}
	if img, ok := m.cache.Get(id); ok {
		return img, nil
	}

	m.sprMu.Lock()
	img, err := m.sprites.Sprite(id)
	m.sprMu.Unlock()
	if err != nil {
		return nil, err
	}

	m.cache.Set(id, img)
	return img, nil
}

// ItemImage renders the first animation frame of a server item with all
// its layers. Multi-tile things extend up and to the left of the bottom
// right cell, as the client draws them.
func (m *Manager) ItemImage(serverID uint16) (*image.NRGBA, error) {
	thing, err := m.ThingForServerID(serverID)
	if err != nil {
		return nil, err
	}
	if m.sprites == nil {
		return nil, fmt.Errorf("%w: no sprite file configured", formats.ErrSpriteNotFound)
	}

	w, h := int(thing.Width), int(thing.Height)
	img := image.NewNRGBA(image.Rect(0, 0, w*formats.SpriteSize, h*formats.SpriteSize))

	m.sprMu.Lock()
	defer m.sprMu.Unlock()

	for layer := 0; layer < int(thing.Layers); layer++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx, ok := thing.SpriteIndex(0, 0, 0, layer, y, x)
				if !ok {
					return img, nil
				}
				id := thing.SpriteIDs[idx]
				if id == 0 {
					continue
				}
				px := (w - 1 - x) * formats.SpriteSize
				py := (h - 1 - y) * formats.SpriteSize
				if err := m.sprites.ReadSprite(id, img.Pix[img.PixOffset(px, py):], img.Stride); err != nil {
					return nil, fmt.Errorf("item %d layer %d cell %d,%d: %w", serverID, layer, x, y, err)
				}
			}
		}
	}
	return img, nil
}

// LoadMap streams the configured map into a sector store. When progress is
// not nil every byte read from the map file is also written to it.
func (m *Manager) LoadMap(progress io.Writer) (*world.Map, *formats.MapLoader, error) {
	if m.data.Map == "" {
		return nil, nil, errors.New("no map configured")
	}
	path := m.data.Path(m.data.Map)

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening map: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if progress != nil {
		r = io.TeeReader(f, progress)
	}

	var ident [4]byte
	if _, err := io.ReadFull(r, ident[:]); err != nil {
		return nil, nil, fmt.Errorf("reading map identifier: %w", err)
	}

	start := time.Now()
	loader, err := formats.OpenMap(r, formats.WithLogger(m.log.Named("otbm")))
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	m.log.Debug("map headers read",
		zap.String("path", path),
		zap.Uint32("version", loader.Version),
		zap.Uint16("width", loader.Width),
		zap.Uint16("height", loader.Height),
	)

	w := world.New()
	if err := loader.Load(w.AddTile); err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", path, err)
	}

	m.log.Info("map loaded",
		zap.String("path", path),
		zap.Int("tiles", w.TileCount()),
		zap.Int("sectors", w.Len()),
		zap.Int("towns", len(loader.Towns)),
		zap.Duration("took", time.Since(start)),
	)
	return w, loader, nil
}
