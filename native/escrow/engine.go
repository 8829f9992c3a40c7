package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/types"
)

var (
	errNilState      = errors.New("escrow engine: state not configured")
	errVaultNotFound = fmt.Errorf("%w: escrow vault", exchangeerrors.ErrNotFound)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

func vaultKey(offerID [32]byte) []byte {
	return []byte(fmt.Sprintf("escrow/vault/%x", offerID))
}

// Engine keeps custody of offer value. Every movement out of a vault goes
// through Disburse, which refuses to act unless the live balance matches the
// recorded deposits exactly.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Get loads the vault guarding offerID.
func (e *Engine) Get(offerID [32]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedVault
	ok, err := e.state.KVGet(vaultKey(offerID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errVaultNotFound
	}
	return stored.toVault(), nil
}

func (e *Engine) store(v *Vault) error {
	return e.state.KVPut(vaultKey(v.OfferID), newStoredVault(v))
}

// Open creates the vault for offerID and moves reserve from funder into it.
func (e *Engine) Open(offerID [32]byte, funder [20]byte, reserve *big.Int) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if reserve == nil {
		reserve = big.NewInt(0)
	}
	if reserve.Sign() < 0 {
		return nil, exchangeerrors.ErrInvalidAmount
	}
	ok, err := e.state.KVGet(vaultKey(offerID), nil)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, exchangeerrors.ErrEscrowExists
	}
	address := VaultAddress(offerID)
	held, err := e.state.Balance(address)
	if err != nil {
		return nil, err
	}
	if held != nil && held.Sign() != 0 {
		return nil, fmt.Errorf("%w: vault address already holds %s", exchangeerrors.ErrEscrowExists, held)
	}
	vault := &Vault{
		OfferID:   offerID,
		Address:   address,
		Funder:    funder,
		Reserve:   new(big.Int).Set(reserve),
		Deposited: big.NewInt(0),
		CreatedAt: e.now(),
	}
	if err := e.state.Transfer(funder, vault.Address, reserve); err != nil {
		return nil, err
	}
	if err := e.store(vault); err != nil {
		return nil, err
	}
	e.emit(newVaultEvent(EventTypeVaultOpened, vault))
	return vault.Clone(), nil
}

// Deposit moves amount from an account into the vault and records it as
// custody owed to the eventual payees.
func (e *Engine) Deposit(offerID [32]byte, from [20]byte, amount *big.Int) (*Vault, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, exchangeerrors.ErrInvalidAmount
	}
	vault, err := e.Get(offerID)
	if err != nil {
		return nil, err
	}
	if vault.Closed {
		return nil, fmt.Errorf("%w: escrow closed", exchangeerrors.ErrInvalidOfferStatus)
	}
	if err := e.state.Transfer(from, vault.Address, amount); err != nil {
		return nil, err
	}
	vault.Deposited.Add(vault.Deposited, amount)
	if err := e.store(vault); err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		e.emit(newFundedEvent(vault, from, amount.String()))
	}
	return vault.Clone(), nil
}

// Balance returns the live balance held by the vault account.
func (e *Engine) Balance(offerID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Balance(VaultAddress(offerID))
}

// Verify checks the live balance against the recorded deposits and reserve.
func (e *Engine) Verify(offerID [32]byte) (*Vault, error) {
	vault, err := e.Get(offerID)
	if err != nil {
		return nil, err
	}
	balance, err := e.state.Balance(vault.Address)
	if err != nil {
		return nil, err
	}
	if expected := vault.Expected(); balance.Cmp(expected) != 0 {
		return nil, fmt.Errorf("%w: balance %s, expected %s", exchangeerrors.ErrInvalidEscrowBalance, balance, expected)
	}
	return vault, nil
}

// Disburse pays out the full recorded deposits and returns the reserve to the
// funder, leaving the vault empty and closed. The payouts must add up to the
// deposits and the live balance must match; otherwise nothing moves.
func (e *Engine) Disburse(offerID [32]byte, payouts []Payout) (*Vault, error) {
	vault, err := e.Get(offerID)
	if err != nil {
		return nil, err
	}
	if vault.Closed {
		return nil, fmt.Errorf("%w: escrow already disbursed", exchangeerrors.ErrInvalidOfferStatus)
	}
	total := big.NewInt(0)
	for _, p := range payouts {
		if p.Amount == nil || p.Amount.Sign() < 0 {
			return nil, exchangeerrors.ErrInvalidAmount
		}
		total.Add(total, p.Amount)
	}
	if total.Cmp(vault.Deposited) != 0 {
		return nil, fmt.Errorf("%w: payouts %s, deposits %s", exchangeerrors.ErrInvalidEscrowBalance, total, vault.Deposited)
	}
	if _, err := e.Verify(offerID); err != nil {
		return nil, err
	}
	for _, p := range payouts {
		if err := e.state.Transfer(vault.Address, p.To, p.Amount); err != nil {
			return nil, err
		}
	}
	if err := e.state.Transfer(vault.Address, vault.Funder, vault.Reserve); err != nil {
		return nil, err
	}
	vault.Closed = true
	vault.ClosedAt = e.now()
	if err := e.store(vault); err != nil {
		return nil, err
	}
	e.emit(newDisbursedEvent(vault, payouts))
	return vault.Clone(), nil
}
