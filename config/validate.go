package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"p2pexchange/core"
	"p2pexchange/crypto"
	"p2pexchange/observability/logging"
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required unless InMemory is set")
	}
	params, err := c.LedgerParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Gateway.ListenAddress) == "" {
		return fmt.Errorf("gateway: ListenAddress required")
	}
	for name, raw := range map[string]string{
		"ReadHeaderTimeout": c.Gateway.ReadHeaderTimeout,
		"ShutdownTimeout":   c.Gateway.ShutdownTimeout,
		"SignatureSkew":     c.Gateway.SignatureSkew,
	} {
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("gateway.%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("gateway.%s must be positive", name)
		}
	}
	if c.Gateway.RateLimitPerSecond <= 0 || c.Gateway.RateLimitBurst <= 0 {
		return fmt.Errorf("gateway: rate limit and burst must be positive")
	}
	if err := logging.ValidateLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0,1]", r)
	}
	return nil
}

// LedgerParams converts the ledger section into exchange parameters.
func (c *Config) LedgerParams() (core.Params, error) {
	var (
		params core.Params
		err    error
	)
	if params.Reserve, err = parseAmount(c.Ledger.Reserve); err != nil {
		return params, fmt.Errorf("ledger.Reserve: %w", err)
	}
	if params.MinRewardVolume, err = parseAmount(c.Ledger.MinRewardVolume); err != nil {
		return params, fmt.Errorf("ledger.MinRewardVolume: %w", err)
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"EvidenceWindow", c.Ledger.EvidenceWindow, &params.EvidenceWindow},
		{"VotingWindow", c.Ledger.VotingWindow, &params.VotingWindow},
		{"OfferCooldown", c.Ledger.OfferCooldown, &params.OfferCooldown},
		{"DisputeCooldown", c.Ledger.DisputeCooldown, &params.DisputeCooldown},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.raw); err != nil {
			return params, fmt.Errorf("ledger.%s: %w", d.name, err)
		}
	}
	return params, nil
}

// GenesisAllocations decodes the genesis section.
func (c *Config) GenesisAllocations() ([]core.Allocation, error) {
	out := make([]core.Allocation, 0, len(c.Genesis))
	seen := make(map[[20]byte]struct{}, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr, err := crypto.ParseExchangeAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("genesis[%d]: duplicate address %s", i, alloc.Address)
		}
		seen[addr] = struct{}{}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if amount.Sign() == 0 {
			return nil, fmt.Errorf("genesis[%d]: amount must be positive", i)
		}
		out = append(out, core.Allocation{Address: addr, Amount: amount})
	}
	return out, nil
}

// Durations returns the parsed gateway timeouts.
func (g Gateway) Durations() (readHeader, shutdown, skew time.Duration) {
	readHeader, _ = parseDuration(g.ReadHeaderTimeout)
	shutdown, _ = parseDuration(g.ShutdownTimeout)
	skew, _ = parseDuration(g.SignatureSkew)
	return readHeader, shutdown, skew
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return v, nil
}

func parseDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", raw)
	}
	return d, nil
}
