package offer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/native/common"
	"p2pexchange/native/escrow"
)

var (
	errNilState      = errors.New("offer engine: state not configured")
	errNilVault      = errors.New("offer engine: escrow not configured")
	errOfferNotFound = fmt.Errorf("%w: offer", exchangeerrors.ErrNotFound)

	offerIndexKey = []byte("offer/index")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

type vaultKeeper interface {
	Open(offerID [32]byte, funder [20]byte, reserve *big.Int) (*escrow.Vault, error)
	Deposit(offerID [32]byte, from [20]byte, amount *big.Int) (*escrow.Vault, error)
	Disburse(offerID [32]byte, payouts []escrow.Payout) (*escrow.Vault, error)
}

func offerKey(id [32]byte) []byte { return []byte(fmt.Sprintf("offer/record/%x", id)) }

func nonceKey(seller [20]byte) []byte { return []byte(fmt.Sprintf("offer/nonce/%x", seller)) }

func participantIndexKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("offer/by-user/%x", addr))
}

// DeriveID returns the deterministic identifier of the nonce-th offer created
// by seller.
func DeriveID(seller [20]byte, nonce uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return ethcrypto.Keccak256Hash([]byte("offer"), seller[:], buf[:])
}

// Engine drives offers through their lifecycle and keeps the escrow vault in
// step with every transition.
type Engine struct {
	state    engineState
	vault    vaultKeeper
	emitter  events.Emitter
	nowFn    func() int64
	reserve  *big.Int
	cooldown common.Cooldown
}

// NewEngine creates an offer engine with a no-op emitter and no creation
// cooldown.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		reserve:  big.NewInt(0),
		cooldown: common.Cooldown{Action: "offer.create"},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEscrow configures the custody backend that holds offer value.
func (e *Engine) SetEscrow(vault vaultKeeper) { e.vault = vault }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetReserve configures the protocol reserve the seller locks alongside each
// offer. It is returned to the seller when the vault is disbursed.
func (e *Engine) SetReserve(reserve *big.Int) {
	if reserve == nil || reserve.Sign() < 0 {
		e.reserve = big.NewInt(0)
		return
	}
	e.reserve = new(big.Int).Set(reserve)
}

// SetCreationCooldown configures the minimum seconds between two offers by
// the same seller. Zero disables the check.
func (e *Engine) SetCreationCooldown(seconds int64) { e.cooldown.Window = seconds }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vault == nil {
		return errNilVault
	}
	return nil
}

// Get loads an offer by identifier.
func (e *Engine) Get(id [32]byte) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedOffer
	ok, err := e.state.KVGet(offerKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errOfferNotFound
	}
	return stored.toOffer(), nil
}

func (e *Engine) store(o *Offer) error {
	return e.state.KVPut(offerKey(o.ID), newStoredOffer(o))
}

// Query returns offers matching filter in creation order.
func (e *Engine) Query(filter Filter) ([]*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	key := offerIndexKey
	if filter.Participant != ([20]byte{}) {
		key = participantIndexKey(filter.Participant)
	}
	var ids [][]byte
	if err := e.state.KVGetList(key, &ids); err != nil {
		return nil, err
	}
	out := make([]*Offer, 0, len(ids))
	for _, raw := range ids {
		var id [32]byte
		copy(id[:], raw)
		o, err := e.Get(id)
		if err != nil {
			return nil, err
		}
		if !filter.match(o) {
			continue
		}
		out = append(out, o)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (e *Engine) nextNonce(seller [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := e.state.KVGet(nonceKey(seller), &nonce); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(nonceKey(seller), nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Create validates the terms, locks Amount plus the protocol reserve from the
// seller into a fresh vault and records the offer as Created.
func (e *Engine) Create(seller [20]byte, params CreateParams) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if seller == ([20]byte{}) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	sanitized, err := SanitizeCreate(params)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := e.cooldown.Check(e.state, seller, now); err != nil {
		return nil, err
	}
	nonce, err := e.nextNonce(seller)
	if err != nil {
		return nil, err
	}
	createdAt := sanitized.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	o := &Offer{
		ID:            DeriveID(seller, nonce),
		Seller:        seller,
		Amount:        sanitized.Amount,
		FiatAmount:    sanitized.FiatAmount,
		FiatCurrency:  sanitized.FiatCurrency,
		PaymentMethod: sanitized.PaymentMethod,
		SecurityBond:  big.NewInt(0),
		Status:        StatusCreated,
		Nonce:         nonce,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	if _, err := e.vault.Open(o.ID, seller, e.reserve); err != nil {
		return nil, err
	}
	if _, err := e.vault.Deposit(o.ID, seller, o.Amount); err != nil {
		return nil, err
	}
	if err := e.store(o); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(offerIndexKey, o.ID[:]); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(participantIndexKey(seller), o.ID[:]); err != nil {
		return nil, err
	}
	if err := e.cooldown.Record(e.state, seller, now); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeOfferCreated, o))
	return o.Clone(), nil
}

// load fetches the offer and checks the caller relationship and the current
// status, in that order.
func (e *Engine) load(id [32]byte, authorize func(*Offer) bool, allowed ...Status) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	o, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if authorize != nil && !authorize(o) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	for _, status := range allowed {
		if o.Status == status {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: offer is %s", exchangeerrors.ErrInvalidOfferStatus, o.Status)
}

func (e *Engine) transition(o *Offer, status Status, eventType string) (*Offer, error) {
	o.Status = status
	o.UpdatedAt = e.now()
	if err := e.store(o); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(eventType, o))
	return o.Clone(), nil
}

func sellerOnly(caller [20]byte) func(*Offer) bool {
	return func(o *Offer) bool { return caller == o.Seller }
}

func buyerOnly(caller [20]byte) func(*Offer) bool {
	return func(o *Offer) bool { return o.HasBuyer() && caller == o.Buyer }
}

// List publishes a Created offer to the market.
func (e *Engine) List(caller [20]byte, id [32]byte) (*Offer, error) {
	o, err := e.load(id, sellerOnly(caller), StatusCreated)
	if err != nil {
		return nil, err
	}
	o.ListedAt = e.now()
	return e.transition(o, StatusListed, EventTypeOfferListed)
}

// Accept binds caller as the buyer and locks bond into the vault.
func (e *Engine) Accept(caller [20]byte, id [32]byte, bond *big.Int) (*Offer, error) {
	if bond == nil {
		bond = big.NewInt(0)
	}
	if bond.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative bond", exchangeerrors.ErrInvalidAmount)
	}
	notSeller := func(o *Offer) bool { return caller != ([20]byte{}) && caller != o.Seller }
	o, err := e.load(id, notSeller, StatusListed)
	if err != nil {
		return nil, err
	}
	if _, err := e.vault.Deposit(o.ID, caller, bond); err != nil {
		return nil, err
	}
	o.Buyer = caller
	o.SecurityBond = new(big.Int).Set(bond)
	o.AcceptedAt = e.now()
	if err := e.state.KVAppend(participantIndexKey(caller), o.ID[:]); err != nil {
		return nil, err
	}
	return e.transition(o, StatusAccepted, EventTypeOfferAccepted)
}

// MarkFiatSent records the buyer's claim that the fiat payment went out.
func (e *Engine) MarkFiatSent(caller [20]byte, id [32]byte) (*Offer, error) {
	o, err := e.load(id, buyerOnly(caller), StatusAccepted)
	if err != nil {
		return nil, err
	}
	o.FiatSentAt = e.now()
	return e.transition(o, StatusFiatSent, EventTypeOfferFiatSent)
}

// ConfirmFiatReceipt records the seller's acknowledgement of the fiat payment.
func (e *Engine) ConfirmFiatReceipt(caller [20]byte, id [32]byte) (*Offer, error) {
	o, err := e.load(id, sellerOnly(caller), StatusFiatSent)
	if err != nil {
		return nil, err
	}
	o.FiatReceivedAt = e.now()
	return e.transition(o, StatusReadyForRelease, EventTypeOfferFiatReceived)
}

// Release pays amount plus bond to the buyer and completes the offer.
func (e *Engine) Release(caller [20]byte, id [32]byte) (*Offer, error) {
	o, err := e.load(id, sellerOnly(caller), StatusReadyForRelease)
	if err != nil {
		return nil, err
	}
	if _, err := e.vault.Disburse(o.ID, []escrow.Payout{{To: o.Buyer, Amount: o.Locked()}}); err != nil {
		return nil, err
	}
	o.CompletedAt = e.now()
	return e.transition(o, StatusCompleted, EventTypeOfferReleased)
}

// Cancel withdraws an offer nobody has accepted and refunds the seller.
func (e *Engine) Cancel(caller [20]byte, id [32]byte) (*Offer, error) {
	o, err := e.load(id, sellerOnly(caller), StatusCreated, StatusListed)
	if err != nil {
		return nil, err
	}
	if _, err := e.vault.Disburse(o.ID, []escrow.Payout{{To: o.Seller, Amount: o.Locked()}}); err != nil {
		return nil, err
	}
	o.CompletedAt = e.now()
	return e.transition(o, StatusCancelled, EventTypeOfferCancelled)
}

// MarkDisputed moves an in-flight offer into arbitration.
func (e *Engine) MarkDisputed(caller [20]byte, id [32]byte, disputeID [32]byte) (*Offer, error) {
	party := func(o *Offer) bool { return o.IsParty(caller) }
	o, err := e.load(id, party, StatusAccepted, StatusFiatSent)
	if err != nil {
		return nil, err
	}
	o.DisputeID = disputeID
	return e.transition(o, StatusDisputeOpened, EventTypeOfferDisputed)
}

// SettleDispute pays the full escrow to the winning party.
func (e *Engine) SettleDispute(id [32]byte, winner [20]byte) (*Offer, error) {
	o, err := e.load(id, nil, StatusDisputeOpened)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(winner) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	if _, err := e.vault.Disburse(o.ID, []escrow.Payout{{To: winner, Amount: o.Locked()}}); err != nil {
		return nil, err
	}
	o.CompletedAt = e.now()
	return e.transition(o, StatusCompleted, EventTypeOfferSettled)
}

// RefundDispute unwinds a deadlocked dispute: the seller gets the amount back
// and the buyer gets the bond back.
func (e *Engine) RefundDispute(id [32]byte) (*Offer, error) {
	o, err := e.load(id, nil, StatusDisputeOpened)
	if err != nil {
		return nil, err
	}
	payouts := []escrow.Payout{
		{To: o.Seller, Amount: cloneBigInt(o.Amount)},
		{To: o.Buyer, Amount: cloneBigInt(o.SecurityBond)},
	}
	if _, err := e.vault.Disburse(o.ID, payouts); err != nil {
		return nil, err
	}
	o.CompletedAt = e.now()
	return e.transition(o, StatusCancelled, EventTypeOfferCancelled)
}
