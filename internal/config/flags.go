package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagDataDir = flag.String("data-dir", "", "Directory holding the client data files")
	flagMap     = flag.String("map", "", "Path to an .otbm map")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagDataDir != "" {
		cfg.Data.Dir = *flagDataDir
	}
	if *flagMap != "" {
		cfg.Data.Map = *flagMap
	}
}
