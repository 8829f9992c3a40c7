package escrow

import (
	"strconv"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	EventTypeVaultOpened    = "escrow.opened"
	EventTypeVaultFunded    = "escrow.funded"
	EventTypeVaultDisbursed = "escrow.disbursed"
)

func newVaultEvent(eventType string, v *Vault) *types.Event {
	attrs := make(map[string]string)
	if v == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = events.FormatID(v.OfferID)
	attrs["vault"] = crypto.FormatAddress(v.Address)
	attrs["funder"] = crypto.FormatAddress(v.Funder)
	attrs["deposited"] = events.FormatAmount(v.Deposited)
	attrs["reserve"] = events.FormatAmount(v.Reserve)
	attrs["closed"] = strconv.FormatBool(v.Closed)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newFundedEvent(v *Vault, from [20]byte, amount string) *types.Event {
	evt := newVaultEvent(EventTypeVaultFunded, v)
	evt.Attributes["from"] = crypto.FormatAddress(from)
	evt.Attributes["amount"] = amount
	return evt
}

func newDisbursedEvent(v *Vault, payouts []Payout) *types.Event {
	evt := newVaultEvent(EventTypeVaultDisbursed, v)
	for i, p := range payouts {
		idx := strconv.Itoa(i)
		evt.Attributes["payout."+idx+".to"] = crypto.FormatAddress(p.To)
		evt.Attributes["payout."+idx+".amount"] = events.FormatAmount(p.Amount)
	}
	return evt
}
