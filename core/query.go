package core

import (
	"math/big"

	"p2pexchange/native/admin"
	"p2pexchange/native/dispute"
	"p2pexchange/native/escrow"
	"p2pexchange/native/offer"
	"p2pexchange/native/reputation"
	"p2pexchange/native/rewards"
)

// EscrowView pairs the custody record of an offer with the live balance of
// its vault account. The two differ only if value was pushed into the vault
// from outside.
type EscrowView struct {
	Vault   *escrow.Vault
	Balance *big.Int
}

// Offer returns the offer with id.
func (x *Exchange) Offer(id [32]byte) (*offer.Offer, error) {
	var out *offer.Offer
	err := x.view(func(s *session) error {
		o, err := s.offers.Get(id)
		out = o
		return err
	})
	return out, err
}

// Offers returns the offers matching filter in creation order.
func (x *Exchange) Offers(filter offer.Filter) ([]*offer.Offer, error) {
	var out []*offer.Offer
	err := x.view(func(s *session) error {
		list, err := s.offers.Query(filter)
		out = list
		return err
	})
	return out, err
}

// Escrow returns the vault guarding offerID.
func (x *Exchange) Escrow(offerID [32]byte) (*EscrowView, error) {
	var out *EscrowView
	err := x.view(func(s *session) error {
		vault, err := s.escrow.Get(offerID)
		if err != nil {
			return err
		}
		balance, err := s.escrow.Balance(offerID)
		if err != nil {
			return err
		}
		out = &EscrowView{Vault: vault, Balance: balance}
		return nil
	})
	return out, err
}

// Dispute returns the dispute with id.
func (x *Exchange) Dispute(id [32]byte) (*dispute.Dispute, error) {
	var out *dispute.Dispute
	err := x.view(func(s *session) error {
		d, err := s.disputes.Get(id)
		out = d
		return err
	})
	return out, err
}

// DisputeForOffer returns the dispute raised against offerID.
func (x *Exchange) DisputeForOffer(offerID [32]byte) (*dispute.Dispute, error) {
	return x.Dispute(dispute.DeriveID(offerID))
}

// Vote returns juror's ballot on dispute id, if cast.
func (x *Exchange) Vote(id [32]byte, juror [20]byte) (*dispute.Vote, bool, error) {
	var (
		out *dispute.Vote
		ok  bool
	)
	err := x.view(func(s *session) error {
		v, found, err := s.disputes.Vote(id, juror)
		out, ok = v, found
		return err
	})
	return out, ok, err
}

// Reputation returns user's record, if created.
func (x *Exchange) Reputation(user [20]byte) (*reputation.Record, bool, error) {
	var (
		out *reputation.Record
		ok  bool
	)
	err := x.view(func(s *session) error {
		record, found, err := s.reputation.Get(user)
		out, ok = record, found
		return err
	})
	return out, ok, err
}

// Rewards returns user's eligibility tally. Users without activity get an
// empty tally.
func (x *Exchange) Rewards(user [20]byte) (*rewards.Account, error) {
	var out *rewards.Account
	err := x.view(func(s *session) error {
		account, _, err := s.rewards.Get(user)
		out = account
		return err
	})
	return out, err
}

// Admin returns the admin registry, if initialised.
func (x *Exchange) Admin() (*admin.Registry, bool, error) {
	var (
		out *admin.Registry
		ok  bool
	)
	err := x.view(func(s *session) error {
		registry, found, err := s.admin.Get()
		out, ok = registry, found
		return err
	})
	return out, ok, err
}

// Balance returns the native balance of addr.
func (x *Exchange) Balance(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := x.view(func(s *session) error {
		balance, err := s.manager.Balance(addr)
		out = balance
		return err
	})
	return out, err
}
