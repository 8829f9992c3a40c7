package offer

import (
	"fmt"
	"math/big"
	"strings"
)

// Status tracks where an offer sits in its lifecycle. Values only ever move
// forward.
type Status uint8

const (
	StatusCreated Status = iota
	StatusListed
	StatusAccepted
	StatusFiatSent
	StatusReadyForRelease
	StatusDisputeOpened
	StatusCompleted
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusCreated:         "created",
	StatusListed:          "listed",
	StatusAccepted:        "accepted",
	StatusFiatSent:        "fiat_sent",
	StatusReadyForRelease: "ready_for_release",
	StatusDisputeOpened:   "dispute_opened",
	StatusCompleted:       "completed",
	StatusCancelled:       "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for status, label := range statusNames {
		if label == normalized {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown offer status %q", name)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Offer is a seller's commitment to sell Amount of the native asset for a
// fiat payment made outside the ledger.
type Offer struct {
	ID             [32]byte
	Seller         [20]byte
	Buyer          [20]byte
	Amount         *big.Int
	FiatAmount     uint64
	FiatCurrency   string
	PaymentMethod  string
	SecurityBond   *big.Int
	Status         Status
	Nonce          uint64
	DisputeID      [32]byte
	CreatedAt      int64
	ListedAt       int64
	AcceptedAt     int64
	FiatSentAt     int64
	FiatReceivedAt int64
	CompletedAt    int64
	UpdatedAt      int64
}

// HasBuyer reports whether a buyer accepted the offer.
func (o *Offer) HasBuyer() bool { return o != nil && o.Buyer != ([20]byte{}) }

// IsParty reports whether addr is the seller or the buyer.
func (o *Offer) IsParty(addr [20]byte) bool {
	if o == nil || addr == ([20]byte{}) {
		return false
	}
	return addr == o.Seller || addr == o.Buyer
}

// Locked returns the value that a settled offer pays out: amount plus bond.
func (o *Offer) Locked() *big.Int {
	return new(big.Int).Add(cloneBigInt(o.Amount), cloneBigInt(o.SecurityBond))
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := *o
	out.Amount = cloneBigInt(o.Amount)
	out.SecurityBond = cloneBigInt(o.SecurityBond)
	return &out
}

// CreateParams carries the seller-supplied terms of a new offer.
type CreateParams struct {
	Amount        *big.Int
	FiatAmount    uint64
	FiatCurrency  string
	PaymentMethod string
	CreatedAt     int64
}

// Filter narrows offer listings. Zero values match everything.
type Filter struct {
	Status      *Status
	Participant [20]byte
	Limit       int
}

func (f Filter) match(o *Offer) bool {
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.Participant != ([20]byte{}) && !o.IsParty(f.Participant) {
		return false
	}
	return true
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

type storedOffer struct {
	ID             [32]byte
	Seller         [20]byte
	Buyer          [20]byte
	Amount         *big.Int
	FiatAmount     uint64
	FiatCurrency   string
	PaymentMethod  string
	SecurityBond   *big.Int
	Status         uint8
	Nonce          uint64
	DisputeID      [32]byte
	CreatedAt      uint64
	ListedAt       uint64
	AcceptedAt     uint64
	FiatSentAt     uint64
	FiatReceivedAt uint64
	CompletedAt    uint64
	UpdatedAt      uint64
}

func newStoredOffer(o *Offer) *storedOffer {
	return &storedOffer{
		ID:             o.ID,
		Seller:         o.Seller,
		Buyer:          o.Buyer,
		Amount:         cloneBigInt(o.Amount),
		FiatAmount:     o.FiatAmount,
		FiatCurrency:   o.FiatCurrency,
		PaymentMethod:  o.PaymentMethod,
		SecurityBond:   cloneBigInt(o.SecurityBond),
		Status:         uint8(o.Status),
		Nonce:          o.Nonce,
		DisputeID:      o.DisputeID,
		CreatedAt:      uint64(o.CreatedAt),
		ListedAt:       uint64(o.ListedAt),
		AcceptedAt:     uint64(o.AcceptedAt),
		FiatSentAt:     uint64(o.FiatSentAt),
		FiatReceivedAt: uint64(o.FiatReceivedAt),
		CompletedAt:    uint64(o.CompletedAt),
		UpdatedAt:      uint64(o.UpdatedAt),
	}
}

func (s *storedOffer) toOffer() *Offer {
	return &Offer{
		ID:             s.ID,
		Seller:         s.Seller,
		Buyer:          s.Buyer,
		Amount:         cloneBigInt(s.Amount),
		FiatAmount:     s.FiatAmount,
		FiatCurrency:   s.FiatCurrency,
		PaymentMethod:  s.PaymentMethod,
		SecurityBond:   cloneBigInt(s.SecurityBond),
		Status:         Status(s.Status),
		Nonce:          s.Nonce,
		DisputeID:      s.DisputeID,
		CreatedAt:      int64(s.CreatedAt),
		ListedAt:       int64(s.ListedAt),
		AcceptedAt:     int64(s.AcceptedAt),
		FiatSentAt:     int64(s.FiatSentAt),
		FiatReceivedAt: int64(s.FiatReceivedAt),
		CompletedAt:    int64(s.CompletedAt),
		UpdatedAt:      int64(s.UpdatedAt),
	}
}
