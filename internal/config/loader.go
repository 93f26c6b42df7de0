package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands ${VAR}/$VAR environment
// references, decodes it strictly, applies defaults, and validates it
// against the embedded JSON Schema. Grounded on the teacher's
// config.Load/loadRawRecursive, simplified by dropping $include directive
// resolution: this module ships one config file per run, not the teacher's
// multi-file channel/auth overlay, so there is nothing for includes to
// compose.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes decodes raw YAML bytes, exposed separately so tests can
// validate an in-memory document; Load reads a file and delegates here.
func LoadBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := ValidateRaw(raw); err != nil {
		return nil, fmt.Errorf("config: schema validation: %w", err)
	}

	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal: %w", err)
	}

	var cfg Config
	strict := yaml.NewDecoder(bytes.NewReader(payload))
	strict.KnownFields(true)
	if err := strict.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}
