package common

import (
	"strings"

	exchangeerrors "p2pexchange/core/errors"
)

// Module names used by the pause guard.
const (
	ModuleAdmin      = "admin"
	ModuleOffer      = "offer"
	ModuleDispute    = "dispute"
	ModuleReputation = "reputation"
	ModuleRewards    = "rewards"
	ModuleTransfer   = "transfer"
)

var ErrModulePaused = exchangeerrors.ErrModulePaused

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]struct{}

// NewStaticPauses normalises the supplied module names.
func NewStaticPauses(modules []string) StaticPauses {
	out := make(StaticPauses, len(modules))
	for _, m := range modules {
		if trimmed := strings.ToLower(strings.TrimSpace(m)); trimmed != "" {
			out[trimmed] = struct{}{}
		}
	}
	return out
}

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	_, ok := s[strings.ToLower(module)]
	return ok
}
