// Package config loads the optional ua.toml project file that
// supplements (never overrides) CLI flags with defaults for the
// compiler's root directory, default arch/sys, and import roots.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config mirrors the handful of settings a UA project wants to pin once
// instead of repeating on every invocation.
type Config struct {
	Compiler struct {
		// CompilerDir is the spec's <compiler_dir> root: std_*/hw_*
		// imports resolve under CompilerDir + "/lib/<name>.ua", not
		// directly under CompilerDir itself.
		CompilerDir    string   `toml:"compiler_dir"`
		ImportRoots    []string `toml:"import_roots"`
		MaxImportDepth int      `toml:"max_import_depth"`
	} `toml:"compiler"`

	Defaults struct {
		Arch string `toml:"arch"`
		Sys  string `toml:"sys"`
	} `toml:"defaults"`
}

// Default returns the built-in configuration used when no ua.toml is
// present.
func Default() *Config {
	cfg := &Config{}
	cfg.Compiler.CompilerDir = "."
	cfg.Compiler.MaxImportDepth = 16
	cfg.Defaults.Sys = "baremetal"
	return cfg
}

// Load reads path if it exists, overlaying values onto the defaults.
// A missing file is not an error — it just means "use defaults".
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
