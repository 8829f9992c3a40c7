package admin

import (
	"strconv"
	"strings"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	EventTypeInitialized        = "admin.initialized"
	EventTypeAuthoritiesUpdated = "admin.authoritiesUpdated"
)

func newRegistryEvent(eventType string, r *Registry) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["primary"] = crypto.FormatAddress(r.Primary)
	secondary := make([]string, 0, len(r.Secondary))
	for _, s := range r.Secondary {
		secondary = append(secondary, crypto.FormatAddress(s))
	}
	attrs["secondary"] = strings.Join(secondary, ",")
	attrs["requiredSignatures"] = strconv.FormatUint(uint64(r.RequiredSignatures), 10)
	attrs["lastRewardUpdate"] = events.FormatTime(r.LastRewardUpdate)
	return &types.Event{Type: eventType, Attributes: attrs}
}
