// Package config provides configuration management for orgchart.
//
// Config file locations (priority order):
//  1. $ORGCHART_CONFIG
//  2. ./orgchart.yaml
//  3. $XDG_CONFIG_HOME/orgchart/config.yaml
//  4. ~/.config/orgchart/config.yaml
//  5. /etc/orgchart/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"orgchart/internal/domain"
	"orgchart/internal/graph"
	"orgchart/internal/lookup"
	"orgchart/internal/proximity"
	"orgchart/internal/repository"
	"orgchart/internal/surface"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./orgchart.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Graph.Account == "" {
		c.Graph.Account = "default"
	}
	if c.Graph.Shape == "" {
		c.Graph.Shape = string(repository.ShapeSeparated)
	}
	if c.Graph.Singletons == "" {
		c.Graph.Singletons = string(graph.SingletonKeep)
	}
	if c.Graph.Pairs == "" {
		c.Graph.Pairs = string(graph.PairsUnordered)
	}
	if c.Graph.Threshold == 0 {
		c.Graph.Threshold = proximity.DefaultThreshold
	}
	if c.Graph.FrameInterval == 0 {
		c.Graph.FrameInterval = Duration(surface.DefaultFrameInterval)
	}
	if c.Graph.GridSpacing == 0 {
		c.Graph.GridSpacing = surface.DefaultGridSpacing
	}

	if c.Viewport.Width == 0 {
		c.Viewport.Width = surface.DefaultWidth
	}
	if c.Viewport.Height == 0 {
		c.Viewport.Height = surface.DefaultHeight
	}
	if c.Viewport.Zoom == 0 {
		c.Viewport.Zoom = surface.DefaultZoom
	}
	if c.Viewport.Padding == 0 {
		c.Viewport.Padding = surface.DefaultPadding
	}
	if c.Viewport.MinZoom == 0 {
		c.Viewport.MinZoom = surface.DefaultMinZoom
	}
	if c.Viewport.MaxZoom == 0 {
		c.Viewport.MaxZoom = surface.DefaultMaxZoom
	}

	if c.Lookup.Debounce == 0 {
		c.Lookup.Debounce = Duration(lookup.DefaultDebounce)
	}
	if c.Lookup.MinChars == 0 {
		c.Lookup.MinChars = lookup.DefaultMinChars
	}
	if c.Lookup.Limit == 0 {
		c.Lookup.Limit = lookup.DefaultLimit
	}

	if c.Seed.Debounce == 0 {
		c.Seed.Debounce = Duration(500 * time.Millisecond)
	}
}

// Validate checks the config against its validation tags
func (c *Config) Validate() error {
	if err := domain.Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GraphOptions returns the graph building policies
func (c *Config) GraphOptions() graph.Options {
	return graph.Options{
		Singletons: graph.SingletonPolicy(c.Graph.Singletons),
		Pairs:      graph.PairStrategy(c.Graph.Pairs),
	}
}

// FitOptions returns the viewport fit settings
func (c *Config) FitOptions() surface.FitOptions {
	return surface.FitOptions{
		Padding: c.Viewport.Padding,
		MinZoom: c.Viewport.MinZoom,
		MaxZoom: c.Viewport.MaxZoom,
	}
}

// LookupOptions returns the typeahead settings
func (c *Config) LookupOptions() lookup.Options {
	return lookup.Options{
		Debounce: c.Lookup.Debounce.Duration(),
		MinChars: c.Lookup.MinChars,
		Limit:    c.Lookup.Limit,
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Account: %s, Shape: %s\n", c.Graph.Account, c.Graph.Shape)
	summary += fmt.Sprintf("Singletons: %s, Pairs: %s, Proximity: %.0fpx\n",
		c.Graph.Singletons, c.Graph.Pairs, c.Graph.Threshold)
	summary += fmt.Sprintf("Database: %s, Listen: %s", c.Database.Path, c.Server.Addr)
	if c.Seed.Path != "" {
		summary += fmt.Sprintf(", Seed: %s (watch=%t)", c.Seed.Path, c.Seed.Watch)
	}

	return summary
}
