package core

import (
	"fmt"
	"math/big"
	"time"

	"p2pexchange/native/dispute"
	"p2pexchange/native/rewards"
)

// Params holds the tunables of the ledger that are fixed for the lifetime of
// an Exchange.
type Params struct {
	// Reserve is the protocol reserve locked by the seller on top of each
	// offer amount and returned with the final disbursement.
	Reserve         *big.Int
	EvidenceWindow  time.Duration
	VotingWindow    time.Duration
	OfferCooldown   time.Duration
	DisputeCooldown time.Duration
	MinRewardVolume *big.Int
}

// DefaultParams returns the production defaults: no reserve, a 48h evidence
// window, a 7 day voting window, one offer per seller every 5 minutes and one
// dispute per initiator every hour.
func DefaultParams() Params {
	return Params{
		Reserve:         big.NewInt(0),
		EvidenceWindow:  time.Duration(dispute.DefaultEvidenceWindow) * time.Second,
		VotingWindow:    time.Duration(dispute.DefaultVotingWindow) * time.Second,
		OfferCooldown:   5 * time.Minute,
		DisputeCooldown: time.Hour,
		MinRewardVolume: new(big.Int).Set(rewards.DefaultMinTradeVolume),
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.Reserve != nil && p.Reserve.Sign() < 0 {
		return fmt.Errorf("params: reserve must not be negative")
	}
	if p.EvidenceWindow < time.Second {
		return fmt.Errorf("params: evidence window must be at least 1s")
	}
	if p.VotingWindow <= p.EvidenceWindow {
		return fmt.Errorf("params: voting window %s must exceed evidence window %s", p.VotingWindow, p.EvidenceWindow)
	}
	if p.OfferCooldown < 0 || p.DisputeCooldown < 0 {
		return fmt.Errorf("params: cooldowns must not be negative")
	}
	if p.MinRewardVolume != nil && p.MinRewardVolume.Sign() < 0 {
		return fmt.Errorf("params: minimum reward volume must not be negative")
	}
	return nil
}

func seconds(d time.Duration) int64 { return int64(d / time.Second) }
