// Package config loads pipeline configuration from defaults, an optional
// YAML file or in-memory YAML document and HTTPPIPE_ environment variables,
// in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultEnvPrefix prefixes every environment variable. A double
	// underscore separates sections: HTTPPIPE_RETRY__MAX_RETRIES.
	DefaultEnvPrefix = "HTTPPIPE_"

	// DefaultFile is read when present; a missing default file is fine.
	DefaultFile = "httppipe.yaml"

	envSectionDelim = "__"
)

type loadOptions struct {
	file         string
	fileRequired bool
	data         []byte
	envPrefix    string
	overrides    map[string]any
}

// Option customises Load.
type Option func(*loadOptions)

// WithFile reads path instead of DefaultFile. The file must exist.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		if path != "" {
			o.file = path
			o.fileRequired = true
		}
	}
}

// WithBytes reads YAML from data instead of a file, e.g. a document piped
// on stdin.
func WithBytes(data []byte) Option {
	return func(o *loadOptions) {
		o.data = data
	}
}

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithOverrides applies dotted keys after every other source, e.g. values
// taken from command-line flags.
func WithOverrides(values map[string]any) Option {
	return func(o *loadOptions) {
		o.overrides = values
	}
}

// Load builds and validates the configuration.
func Load(opts ...Option) (*Config, error) {
	o := &loadOptions{file: DefaultFile, envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(o)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if o.data != nil {
		if err := k.Load(rawbytes.Provider(o.data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	} else if err := k.Load(file.Provider(o.file), yaml.Parser()); err != nil {
		if o.fileRequired || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", o.file, err)
		}
	}

	mapKey := envKeyMapper(o.envPrefix)
	envOpt := envprovider.Opt{
		Prefix: o.envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return mapKey(key), value
		},
	}
	if err := k.Load(envprovider.Provider(".", envOpt), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(o.overrides) > 0 {
		if err := k.Load(confmap.Provider(o.overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper turns HTTPPIPE_RETRY__MAX_RETRIES into retry.max_retries.
func envKeyMapper(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), strings.ToLower(envSectionDelim), ".")
	}
}

// EnvVar returns the environment variable that sets a dotted key.
func EnvVar(key string) string {
	return DefaultEnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", envSectionDelim))
}

// All returns the effective flattened key/value set, or nil for a Config
// not produced by Load.
func (c *Config) All() map[string]any {
	if c.k == nil {
		return nil
	}
	return c.k.All()
}
