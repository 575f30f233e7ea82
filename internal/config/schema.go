package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Graph    GraphConfig    `yaml:"graph"`
	Viewport ViewportConfig `yaml:"viewport"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Seed     SeedConfig     `yaml:"seed"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" validate:"required"`
	CORSOrigins     []string `yaml:"cors_origins,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// GraphConfig holds the account and the graph building policies
type GraphConfig struct {
	Account       string   `yaml:"account" validate:"required"`
	Shape         string   `yaml:"shape" validate:"oneof=separated rows"`     // how the backend lays out a fetch
	Singletons    string   `yaml:"singletons" validate:"oneof=keep drop"`     // single-member link buckets
	Pairs         string   `yaml:"pairs" validate:"oneof=unordered directed"` // duplicate edge comparison
	Threshold     float64  `yaml:"proximity_threshold" validate:"gt=0"`       // px
	FrameInterval Duration `yaml:"frame_interval,omitempty"`
	GridSpacing   float64  `yaml:"grid_spacing,omitempty" validate:"gte=0"`
}

// ViewportConfig holds the headless canvas geometry
type ViewportConfig struct {
	Width   float64 `yaml:"width" validate:"gt=0"`
	Height  float64 `yaml:"height" validate:"gt=0"`
	Zoom    float64 `yaml:"zoom" validate:"gt=0"`
	Padding float64 `yaml:"padding" validate:"gte=0"`
	MinZoom float64 `yaml:"min_zoom" validate:"gt=0"`
	MaxZoom float64 `yaml:"max_zoom" validate:"gtefield=MinZoom"`
}

// LookupConfig holds typeahead settings
type LookupConfig struct {
	Debounce Duration `yaml:"debounce,omitempty"`
	MinChars int      `yaml:"min_chars" validate:"min=1"`
	Limit    int      `yaml:"limit" validate:"min=1,max=100"`
}

// SeedConfig names a fragment file imported at start
type SeedConfig struct {
	Path     string   `yaml:"path,omitempty"`
	Watch    bool     `yaml:"watch,omitempty"`
	Replace  bool     `yaml:"replace,omitempty"`
	Debounce Duration `yaml:"debounce,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
