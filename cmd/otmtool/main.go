// otmtool inspects OpenTibia client data files and maps.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"sort"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/Faultbox/otmap/internal/assets"
	"github.com/Faultbox/otmap/internal/config"
	"github.com/Faultbox/otmap/internal/logger"
	"github.com/Faultbox/otmap/pkg/formats"
	"github.com/Faultbox/otmap/pkg/world"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "info":
		err = cmdInfo(cfg)
	case "load":
		err = cmdLoad(cfg)
	case "tile":
		err = cmdTile(cfg, args)
	case "item":
		err = cmdItem(cfg, args)
	case "sprite":
		err = cmdSprite(cfg, args)
	case "config":
		err = cmdConfig(cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`otmtool - OpenTibia data and map utility

Usage:
  otmtool [flags] <command> [args]

Flags:
  -config <file>     Config file (default: ./config.yaml or user config dir)
  -data-dir <dir>    Directory holding Tibia.dat, Tibia.spr and items.otb
  -map <file>        Map to load, relative to the data dir
  -debug             Enable debug logging

Commands:
  info                         Show data file and map header information
  load                         Load the map and print sector statistics
  tile <x> <y> <z>             Load the map and list the items on one tile
  item <server-id> [out.png]   Show an item's thing, optionally render it
  sprite <id> <out.png>        Export one sprite as PNG
  config [file]                Write the effective config as YAML

Examples:
  otmtool -data-dir ./860 info
  otmtool -data-dir ./860 -map world.otbm load
  otmtool -data-dir ./860 item 2160 coin.png`)
}

func usageError(usage string) error {
	return fmt.Errorf("usage: otmtool %s", usage)
}

func cmdInfo(cfg *config.Config) error {
	m, err := assets.Open(cfg.Data, config.CacheConfig{})
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Printf("Dat:       %s (signature 0x%08X)\n", cfg.Data.Path(cfg.Data.Dat), m.Dat.Signature)
	fmt.Printf("  Items:    %d (client ids %d-%d)\n", len(m.Dat.Items), formats.FirstClientID, m.Dat.MaxClientID())
	fmt.Printf("  Outfits:  %d\n", m.Dat.Outfits)
	fmt.Printf("  Effects:  %d\n", m.Dat.Effects)
	fmt.Printf("  Missiles: %d\n", m.Dat.Missiles)
	fmt.Printf("Otb:       %s\n", cfg.Data.Path(cfg.Data.Otb))
	fmt.Printf("  Version:  %s\n", m.Items.Version)
	fmt.Printf("  Items:    %d\n", m.Items.Len())
	if m.Items.Description != "" {
		fmt.Printf("  Comment:  %s\n", m.Items.Description)
	}
	fmt.Printf("Sprites:   %d\n", m.SpriteCount())

	if cfg.Data.Map == "" {
		return nil
	}

	l, err := formats.OpenMapFile(cfg.Data.Path(cfg.Data.Map), formats.WithLogger(logger.Named("otbm")))
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("Map:       %s\n", cfg.Data.Path(cfg.Data.Map))
	fmt.Printf("  Version:  %d\n", l.Version)
	fmt.Printf("  Size:     %dx%d\n", l.Width, l.Height)
	fmt.Printf("  Items:    %d.%d\n", l.ItemsMajor, l.ItemsMinor)
	for _, d := range l.Descriptions {
		fmt.Printf("  Comment:  %s\n", d)
	}
	for _, f := range l.SpawnFiles {
		fmt.Printf("  Spawns:   %s\n", f)
	}
	for _, f := range l.HouseFiles {
		fmt.Printf("  Houses:   %s\n", f)
	}
	return nil
}

func loadMap(cfg *config.Config) (*world.Map, *formats.MapLoader, error) {
	m, err := assets.Open(cfg.Data, config.CacheConfig{})
	if err != nil {
		return nil, nil, err
	}
	defer m.Close()

	size := int64(-1)
	if st, err := os.Stat(cfg.Data.Path(cfg.Data.Map)); err == nil {
		size = st.Size()
	}
	bar := progressbar.DefaultBytes(size, "loading map")
	defer bar.Finish()

	return m.LoadMap(bar)
}

func cmdLoad(cfg *config.Config) error {
	w, l, err := loadMap(cfg)
	if err != nil {
		return err
	}

	floors := make(map[uint8][2]int)
	for s := range w.Sectors() {
		f := floors[s.Origin.Z]
		f[0]++
		for _, items := range s.Tiles {
			if items != nil {
				f[1]++
			}
		}
		floors[s.Origin.Z] = f
	}

	zs := make([]int, 0, len(floors))
	for z := range floors {
		zs = append(zs, int(z))
	}
	sort.Ints(zs)

	fmt.Printf("Tiles:   %d\n", w.TileCount())
	fmt.Printf("Sectors: %d\n", w.Len())
	fmt.Println()
	fmt.Println("Floor  Sectors  Tiles")
	for _, z := range zs {
		f := floors[uint8(z)]
		fmt.Printf("  %-4d %7d %6d\n", z, f[0], f[1])
	}

	if len(l.Towns) > 0 {
		fmt.Println()
		fmt.Println("Towns:")
		for _, t := range l.Towns {
			fmt.Printf("  %-4d %-20s temple %s\n", t.ID, t.Name, t.TemplePosition)
		}
	}
	if len(l.Waypoints) > 0 {
		fmt.Printf("Waypoints: %d\n", len(l.Waypoints))
	}
	return nil
}

func cmdTile(cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return usageError("tile <x> <y> <z>")
	}
	var coords [3]uint64
	for i, bits := range []int{16, 16, 8} {
		v, err := strconv.ParseUint(args[i], 10, bits)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q: %w", args[i], err)
		}
		coords[i] = v
	}
	pos := formats.Position{X: uint16(coords[0]), Y: uint16(coords[1]), Z: uint8(coords[2])}

	w, _, err := loadMap(cfg)
	if err != nil {
		return err
	}

	items := w.Tile(pos)
	if items == nil {
		fmt.Printf("No tile at %s\n", pos)
		return nil
	}
	fmt.Printf("Tile %s (sector %s):\n", pos, world.SectorOrigin(pos))
	for _, item := range items {
		fmt.Printf("  %d", item.ID)
		for _, a := range item.Attributes {
			switch {
			case a.Text != "":
				fmt.Printf(" attr%d=%q", a.Kind, a.Text)
			case a.Kind == formats.AttrTeleportDest:
				fmt.Printf(" teleport=%s", a.Position)
			default:
				fmt.Printf(" attr%d=%d", a.Kind, a.Int)
			}
		}
		fmt.Println()
	}
	return nil
}

func cmdItem(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usageError("item <server-id> [out.png]")
	}
	id, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid server id %q: %w", args[0], err)
	}

	m, err := assets.Open(cfg.Data, cfg.Cache)
	if err != nil {
		return err
	}
	defer m.Close()

	thing, err := m.ThingForServerID(uint16(id))
	if err != nil {
		return err
	}
	clientID, _ := m.Items.ClientID(uint16(id))

	fmt.Printf("Server id:    %d\n", id)
	fmt.Printf("Client id:    %d\n", clientID)
	fmt.Printf("Size:         %dx%d, %d layers\n", thing.Width, thing.Height, thing.Layers)
	fmt.Printf("Patterns:     %dx%dx%d\n", thing.PatternWidth, thing.PatternHeight, thing.PatternDepth)
	fmt.Printf("Frames:       %d\n", thing.AnimationLength)
	fmt.Printf("Displacement: %d,%d elevation %d\n", thing.Displacement[0], thing.Displacement[1], thing.Elevation)
	fmt.Printf("Sprites:      %v\n", thing.SpriteIDs)

	if len(args) < 2 {
		return nil
	}
	img, err := m.ItemImage(uint16(id))
	if err != nil {
		return err
	}
	return writePNG(args[1], img)
}

func cmdSprite(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usageError("sprite <id> <out.png>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sprite id %q: %w", args[0], err)
	}

	m, err := assets.Open(cfg.Data, cfg.Cache)
	if err != nil {
		return err
	}
	defer m.Close()

	img, err := m.SpriteRGBA(uint32(id))
	if err != nil {
		return err
	}
	return writePNG(args[1], img)
}

func cmdConfig(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[0])
		return nil
	}
	path, err := cfg.Save()
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%dx%d)\n", path, img.Bounds().Dx(), img.Bounds().Dy())
	return nil
}
