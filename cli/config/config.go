package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/brainlink/transport"
	"github.com/pithecene-io/brainlink/types"
)

// DefaultFileName is the config file looked up in the working directory
// when --config is not given.
const DefaultFileName = "brainlink.yaml"

// Config represents a brainlink.yaml file.
// All values are optional and act as defaults for command flags.
// Flags always override config values.
type Config struct {
	Port         string          `yaml:"port"`
	Slot         int             `yaml:"slot"`
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Icon         string          `yaml:"icon"`
	Compress     *bool           `yaml:"compress"`
	After        string          `yaml:"after"`
	Strategy     string          `yaml:"strategy"`
	MaxPatchSize int             `yaml:"max_patch_size"`
	Transport    TransportConfig `yaml:"transport"`
	Storage      StorageConfig   `yaml:"storage"`
	Adapter      AdapterConfig   `yaml:"adapter"`
}

// TransportConfig tunes the serial session.
type TransportConfig struct {
	BaudRate       int      `yaml:"baud_rate"`
	RequestTimeout Duration `yaml:"request_timeout"`
	Attempts       int      `yaml:"attempts"`
	RetryDelay     Duration `yaml:"retry_delay"`
	ChunkSize      int      `yaml:"chunk_size"`
	StreamBuffer   int      `yaml:"stream_buffer"`
}

// StorageConfig selects the reference image store.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig selects where upload completion events are published.
type AdapterConfig struct {
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel,omitempty"`
	// BoardKey is the redis hash holding the last upload per slot.
	BoardKey string            `yaml:"board_key,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Secret   string            `yaml:"secret,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "250ms", "2s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "2s" or "1m30s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration %q must not be negative", node.Line, s)
	}
	d.Duration = parsed
	return nil
}

// Apply overlays the non-zero transport settings onto base.
func (t TransportConfig) Apply(base transport.Config) transport.Config {
	if t.BaudRate > 0 {
		base.BaudRate = t.BaudRate
	}
	if t.RequestTimeout.Duration > 0 {
		base.RequestTimeout = t.RequestTimeout.Duration
	}
	if t.Attempts > 0 {
		base.Attempts = t.Attempts
	}
	if t.RetryDelay.Duration > 0 {
		base.RetryDelay = t.RetryDelay.Duration
	}
	if t.StreamBuffer > 0 {
		base.StreamBuffer = t.StreamBuffer
	}
	return base
}

// Validate checks enumerated and ranged values. Empty values are valid:
// they mean "not set here".
func (c *Config) Validate() error {
	var errs []error
	if c.Slot != 0 && (c.Slot < types.MinSlot || c.Slot > types.MaxSlot) {
		errs = append(errs, fmt.Errorf("slot %d out of range %d..%d", c.Slot, types.MinSlot, types.MaxSlot))
	}
	if len(c.Name) > types.MaxNameLen {
		errs = append(errs, fmt.Errorf("name longer than %d bytes", types.MaxNameLen))
	}
	if len(c.Description) > types.MaxDescriptionLen {
		errs = append(errs, fmt.Errorf("description longer than %d bytes", types.MaxDescriptionLen))
	}
	if c.Icon != "" {
		if _, err := types.ParseIcon(c.Icon); err != nil {
			errs = append(errs, err)
		}
	}
	if c.After != "" {
		if _, err := types.ParseAfterAction(c.After); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Strategy != "" {
		if _, err := types.ParseStrategy(c.Strategy); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MaxPatchSize < 0 {
		errs = append(errs, fmt.Errorf("max_patch_size must be >= 0, got %d", c.MaxPatchSize))
	}
	if c.Transport.ChunkSize < 0 || c.Transport.Attempts < 0 {
		errs = append(errs, errors.New("transport chunk_size and attempts must be >= 0"))
	}
	switch c.Storage.Backend {
	case "", "none", "fs", "s3", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q (want fs, s3, memory or none)", c.Storage.Backend))
	}
	if c.Storage.Backend == "s3" && c.Storage.Path == "" {
		errs = append(errs, errors.New(`storage backend "s3" requires a path (bucket/prefix)`))
	}
	switch c.Adapter.Type {
	case "":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter %q requires a url", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter type %q (want redis or webhook)", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}
