// Package config handles tool configuration loading and management.
package config

import "path/filepath"

// Config holds all settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds client and map file paths. Relative paths are resolved
// against Dir.
type DataConfig struct {
	Dir string `yaml:"dir"`
	Dat string `yaml:"dat"` // Tibia.dat thing metadata
	Spr string `yaml:"spr"` // Tibia.spr sprite container
	Otb string `yaml:"otb"` // items.otb server to client id table
	Map string `yaml:"map"` // .otbm map, optional
}

// Path resolves name against Dir. Empty names stay empty.
func (d DataConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// CacheConfig holds decoded sprite cache settings.
type CacheConfig struct {
	SpriteCacheMB int `yaml:"sprite_cache_mb"` // 0 disables the cache
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir: ".",
			Dat: "Tibia.dat",
			Spr: "Tibia.spr",
			Otb: "items.otb",
		},
		Cache: CacheConfig{
			SpriteCacheMB: 64,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
