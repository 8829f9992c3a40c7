package dispute

import (
	"strconv"
	"strings"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	EventTypeDisputeOpened     = "dispute.opened"
	EventTypeJurorsAssigned    = "dispute.jurorsAssigned"
	EventTypeEvidenceSubmitted = "dispute.evidenceSubmitted"
	EventTypeVoteCast          = "dispute.voteCast"
	EventTypeVerdictReached    = "dispute.verdictReached"
	EventTypeDisputeResolved   = "dispute.resolved"
)

func newDisputeEvent(eventType string, d *Dispute) *types.Event {
	attrs := make(map[string]string)
	if d == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = events.FormatID(d.ID)
	attrs["offerId"] = events.FormatID(d.OfferID)
	attrs["initiator"] = crypto.FormatAddress(d.Initiator)
	attrs["respondent"] = crypto.FormatAddress(d.Respondent)
	attrs["status"] = d.Status.String()
	attrs["votesForBuyer"] = strconv.Itoa(int(d.VotesForBuyer))
	attrs["votesForSeller"] = strconv.Itoa(int(d.VotesForSeller))
	if d.Outcome != OutcomeNone {
		attrs["outcome"] = d.Outcome.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newJurorsEvent(d *Dispute) *types.Event {
	evt := newDisputeEvent(EventTypeJurorsAssigned, d)
	jurors := make([]string, 0, JurorCount)
	for _, j := range d.Jurors {
		jurors = append(jurors, crypto.FormatAddress(j))
	}
	evt.Attributes["jurors"] = strings.Join(jurors, ",")
	return evt
}

func newEvidenceEvent(d *Dispute, item Evidence) *types.Event {
	evt := newDisputeEvent(EventTypeEvidenceSubmitted, d)
	evt.Attributes["submitter"] = crypto.FormatAddress(item.Submitter)
	evt.Attributes["url"] = item.URL
	return evt
}

func newVoteEvent(d *Dispute, v *Vote) *types.Event {
	evt := newDisputeEvent(EventTypeVoteCast, d)
	evt.Attributes["juror"] = crypto.FormatAddress(v.Juror)
	evt.Attributes["forBuyer"] = strconv.FormatBool(v.ForBuyer)
	return evt
}
