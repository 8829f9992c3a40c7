package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	DataDir   string       `toml:"DataDir" yaml:"data_dir"`
	InMemory  bool         `toml:"InMemory" yaml:"in_memory"`
	Ledger    Ledger       `toml:"ledger" yaml:"ledger"`
	Gateway   Gateway      `toml:"gateway" yaml:"gateway"`
	Logging   Logging      `toml:"logging" yaml:"logging"`
	Telemetry Telemetry    `toml:"telemetry" yaml:"telemetry"`
	Pauses    Pauses       `toml:"pauses" yaml:"pauses"`
	Genesis   []Allocation `toml:"genesis" yaml:"genesis"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		DataDir: "./p2p-data",
		Ledger: Ledger{
			Reserve:         "0",
			EvidenceWindow:  "48h",
			VotingWindow:    "168h",
			OfferCooldown:   "5m",
			DisputeCooldown: "1h",
			MinRewardVolume: "10000000",
		},
		Gateway: Gateway{
			ListenAddress:      ":8080",
			ReadHeaderTimeout:  "5s",
			ShutdownTimeout:    "10s",
			SignatureSkew:      "2m",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			StreamBuffer:       64,
		},
		Logging: Logging{Level: "info"},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			SampleRatio: 1,
		},
		Genesis: []Allocation{},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the configuration at path. A missing file is created with the
// defaults. TOML is assumed unless the extension is .yaml or .yml.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
		}
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []Allocation{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
