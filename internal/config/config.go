// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads CLI configuration.
// Only non-secret settings are kept here; secrets go to the OS keychain.
//
// Sources are layered, highest priority last:
//   - built-in defaults
//   - $XDG_CONFIG_HOME/kqlnb/config.yaml
//   - KQLNB_* environment variables (KQLNB_STORE_PATH -> store.path)
//   - command-line flags that were explicitly set
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"kqlnb/cli/internal/xdg"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "KQLNB_"

// FileName is the config file name inside the XDG config directory.
const FileName = "config.yaml"

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel  string        `koanf:"log_level"`
	Workspace string        `koanf:"workspace"`
	Store     StoreConfig   `koanf:"store"`
	HTTP      HTTPConfig    `koanf:"http"`
	Gateway   GatewayConfig `koanf:"gateway"`

	// File is the config file that was read, or "" when none existed.
	File string `koanf:"-"`
}

// StoreConfig locates the persistent state database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// HTTPConfig tunes the REST transports.
type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// GatewayConfig configures `kqlnb gateway serve`.
type GatewayConfig struct {
	Listen string `koanf:"listen"`
}

func defaults() (map[string]any, error) {
	state, err := xdg.StateDir()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return map[string]any{
		"log_level":      "info",
		"workspace":      cwd,
		"store.path":     filepath.Join(state, "state.db"),
		"http.timeout":   "60s",
		"gateway.listen": "127.0.0.1:7443",
	}, nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads configuration. cfgFile overrides the default file location;
// a missing default file is not an error. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	d, err := defaults()
	if err != nil {
		return Config{}, err
	}
	if err := k.Load(confmap.Provider(d, "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := cfgFile != ""
	if !explicit {
		if cfgFile, err = Path(); err != nil {
			return Config{}, err
		}
	}
	used := ""
	if _, statErr := os.Stat(cfgFile); statErr == nil || explicit {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		used = cfgFile
	}

	// KQLNB_STORE_PATH -> store.path, KQLNB_LOG_LEVEL -> log_level
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	c.File = used
	return c, c.Validate()
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"workspace": "workspace",
	"store":     "store.path",
	"listen":    "gateway.listen",
	"timeout":   "http.timeout",
}

// envKey maps an environment variable to a config key. The first
// underscore after the prefix separates a section from its field for the
// sections that exist; everything else stays a top-level snake_case key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"store", "http", "gateway"} {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// Validate checks the values that cannot be defaulted later.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	return nil
}
