package reputation

import (
	"strconv"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	// EventTypeReputationCreated is emitted when a record is first stored.
	EventTypeReputationCreated = "reputation.created"
	// EventTypeReputationUpdated is emitted whenever counters change.
	EventTypeReputationUpdated = "reputation.updated"
)

func newRecordEvent(eventType string, r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["user"] = crypto.FormatAddress(r.User)
	attrs["successfulTrades"] = strconv.FormatUint(uint64(r.SuccessfulTrades), 10)
	attrs["disputedTrades"] = strconv.FormatUint(uint64(r.DisputedTrades), 10)
	attrs["disputesWon"] = strconv.FormatUint(uint64(r.DisputesWon), 10)
	attrs["disputesLost"] = strconv.FormatUint(uint64(r.DisputesLost), 10)
	attrs["rating"] = strconv.FormatUint(uint64(r.Rating), 10)
	attrs["lastUpdated"] = events.FormatTime(r.LastUpdated)
	return &types.Event{Type: eventType, Attributes: attrs}
}
