package offer

import (
	"strconv"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	EventTypeOfferCreated      = "offer.created"
	EventTypeOfferListed       = "offer.listed"
	EventTypeOfferAccepted     = "offer.accepted"
	EventTypeOfferFiatSent     = "offer.fiatSent"
	EventTypeOfferFiatReceived = "offer.fiatReceived"
	EventTypeOfferReleased     = "offer.released"
	EventTypeOfferCancelled    = "offer.cancelled"
	EventTypeOfferDisputed     = "offer.disputed"
	EventTypeOfferSettled      = "offer.settled"
)

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = events.FormatID(o.ID)
	attrs["seller"] = crypto.FormatAddress(o.Seller)
	if o.HasBuyer() {
		attrs["buyer"] = crypto.FormatAddress(o.Buyer)
	}
	attrs["amount"] = events.FormatAmount(o.Amount)
	attrs["fiatAmount"] = strconv.FormatUint(o.FiatAmount, 10)
	attrs["fiatCurrency"] = o.FiatCurrency
	attrs["bond"] = events.FormatAmount(o.SecurityBond)
	attrs["status"] = o.Status.String()
	attrs["updatedAt"] = events.FormatTime(o.UpdatedAt)
	return &types.Event{Type: eventType, Attributes: attrs}
}
