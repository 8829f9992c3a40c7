package events

import (
	"math/big"

	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

const (
	// TypeTransfer is emitted for native balance movements between accounts.
	TypeTransfer = "transfer.native"
	// TypeGenesisCredit is emitted when genesis allocations are applied.
	TypeGenesisCredit = "transfer.genesis"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	attrs["from"] = crypto.FormatAddress(e.From)
	attrs["to"] = crypto.FormatAddress(e.To)
	attrs["amount"] = FormatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type GenesisCredit struct {
	To     [20]byte
	Amount *big.Int
}

func (GenesisCredit) EventType() string { return TypeGenesisCredit }

func (e GenesisCredit) Event() *types.Event {
	return &types.Event{Type: TypeGenesisCredit, Attributes: map[string]string{
		"to":     crypto.FormatAddress(e.To),
		"amount": FormatAmount(e.Amount),
	}}
}
