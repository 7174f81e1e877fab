package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	suipackconfig "github.com/pithecene-io/suipack/cli/config"
)

// loadConfig loads --config when set. A nil config means no file.
func loadConfig(c *cli.Context) (*suipackconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := suipackconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("--config: %w", err)
	}
	return cfg, nil
}

// configVal reads a field from cfg, or returns the zero value when no
// config file was loaded.
func configVal[T any](cfg *suipackconfig.Config, get func(*suipackconfig.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag when explicitly set, else the config value
// when non-empty, else the flag default.
func resolveString(c *cli.Context, name, fromConfig string) string {
	if c.IsSet(name) || fromConfig == "" {
		return c.String(name)
	}
	return fromConfig
}

func resolveInt(c *cli.Context, name string, fromConfig int) int {
	if c.IsSet(name) || fromConfig == 0 {
		return c.Int(name)
	}
	return fromConfig
}

// resolveBool lets a set flag win either way; an unset flag yields to a
// true config value.
func resolveBool(c *cli.Context, name string, fromConfig bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return c.Bool(name) || fromConfig
}

func resolveDuration(c *cli.Context, name string, fromConfig time.Duration) time.Duration {
	if c.IsSet(name) || fromConfig == 0 {
		return c.Duration(name)
	}
	return fromConfig
}
