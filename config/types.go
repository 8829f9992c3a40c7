package config

import "sort"

// Ledger holds the exchange parameters. Amounts are decimal base units and
// durations use Go duration syntax ("48h").
type Ledger struct {
	Reserve         string `toml:"Reserve" yaml:"reserve"`
	EvidenceWindow  string `toml:"EvidenceWindow" yaml:"evidence_window"`
	VotingWindow    string `toml:"VotingWindow" yaml:"voting_window"`
	OfferCooldown   string `toml:"OfferCooldown" yaml:"offer_cooldown"`
	DisputeCooldown string `toml:"DisputeCooldown" yaml:"dispute_cooldown"`
	MinRewardVolume string `toml:"MinRewardVolume" yaml:"min_reward_volume"`
}

// Gateway configures the HTTP surface.
type Gateway struct {
	ListenAddress      string  `toml:"ListenAddress" yaml:"listen_address"`
	ReadHeaderTimeout  string  `toml:"ReadHeaderTimeout" yaml:"read_header_timeout"`
	ShutdownTimeout    string  `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	SignatureSkew      string  `toml:"SignatureSkew" yaml:"signature_skew"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"RateLimitBurst" yaml:"rate_limit_burst"`
	StreamBuffer       int     `toml:"StreamBuffer" yaml:"stream_buffer"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Environment string  `toml:"Environment" yaml:"environment"`
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Allocation is a genesis balance for a bech32 address.
type Allocation struct {
	Address string `toml:"Address" yaml:"address"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// Pauses switches whole operation groups off.
type Pauses struct {
	Admin      bool `toml:"Admin" yaml:"admin"`
	Offer      bool `toml:"Offer" yaml:"offer"`
	Dispute    bool `toml:"Dispute" yaml:"dispute"`
	Reputation bool `toml:"Reputation" yaml:"reputation"`
	Rewards    bool `toml:"Rewards" yaml:"rewards"`
	Transfer   bool `toml:"Transfer" yaml:"transfer"`
}

// Modules lists the paused module names.
func (p Pauses) Modules() []string {
	var out []string
	for name, paused := range map[string]bool{
		"admin":      p.Admin,
		"offer":      p.Offer,
		"dispute":    p.Dispute,
		"reputation": p.Reputation,
		"rewards":    p.Rewards,
		"transfer":   p.Transfer,
	} {
		if paused {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
