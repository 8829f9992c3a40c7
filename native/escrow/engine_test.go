package escrow

import (
	"errors"
	"math/big"
	"testing"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/state"
	"p2pexchange/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type fixture struct {
	engine *Engine
	state  *state.Manager
	events *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	buf := &events.Buffer{}
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(buf)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return &fixture{engine: engine, state: st, events: buf}
}

func (f *fixture) credit(t *testing.T, addr [20]byte, amount int64) {
	t.Helper()
	if err := f.state.Credit(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, addr [20]byte) int64 {
	t.Helper()
	bal, err := f.state.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestOpenDepositDisburse(t *testing.T) {
	f := newFixture(t)
	seller, buyer := newTestAddress(0x01), newTestAddress(0x02)
	f.credit(t, seller, 1_000)
	f.credit(t, buyer, 100)
	offerID := [32]byte{0xAA}

	vault, err := f.engine.Open(offerID, seller, big.NewInt(5))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if vault.Address != VaultAddress(offerID) {
		t.Fatalf("vault address must derive from the offer")
	}
	if _, err := f.engine.Open(offerID, seller, big.NewInt(0)); !errors.Is(err, exchangeerrors.ErrEscrowExists) {
		t.Fatalf("expected EscrowExists, got %v", err)
	}
	if _, err := f.engine.Deposit(offerID, seller, big.NewInt(500)); err != nil {
		t.Fatalf("deposit seller: %v", err)
	}
	if _, err := f.engine.Deposit(offerID, buyer, big.NewInt(50)); err != nil {
		t.Fatalf("deposit buyer: %v", err)
	}
	if got := f.balance(t, vault.Address); got != 555 {
		t.Fatalf("vault balance %d", got)
	}

	closed, err := f.engine.Disburse(offerID, []Payout{{To: buyer, Amount: big.NewInt(550)}})
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if !closed.Closed {
		t.Fatalf("vault must close")
	}
	if got := f.balance(t, vault.Address); got != 0 {
		t.Fatalf("vault must be empty, has %d", got)
	}
	if got := f.balance(t, buyer); got != 600 {
		t.Fatalf("buyer balance %d", got)
	}
	if got := f.balance(t, seller); got != 500 {
		t.Fatalf("seller must get reserve back, has %d", got)
	}
	if _, err := f.engine.Disburse(offerID, []Payout{{To: buyer, Amount: big.NewInt(550)}}); !errors.Is(err, exchangeerrors.ErrInvalidOfferStatus) {
		t.Fatalf("second disbursement must fail, got %v", err)
	}
}

func TestOpenRejectsPrefundedAddress(t *testing.T) {
	f := newFixture(t)
	seller, stranger := newTestAddress(0x01), newTestAddress(0x03)
	f.credit(t, seller, 1_000)
	f.credit(t, stranger, 10)
	offerID := [32]byte{0xCC}

	if err := f.state.Transfer(stranger, VaultAddress(offerID), big.NewInt(1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.engine.Open(offerID, seller, big.NewInt(5)); !errors.Is(err, exchangeerrors.ErrEscrowExists) {
		t.Fatalf("expected EscrowExists, got %v", err)
	}
	if got := f.balance(t, seller); got != 1_000 {
		t.Fatalf("reserve must stay with the seller, has %d", got)
	}
	if _, err := f.engine.Get(offerID); !errors.Is(err, exchangeerrors.ErrNotFound) {
		t.Fatalf("no vault may be recorded, got %v", err)
	}
	if len(f.events.Events()) != 0 {
		t.Fatalf("rejected open must not emit events")
	}
}

func TestDisburseRejectsInjectedBalance(t *testing.T) {
	f := newFixture(t)
	seller, buyer, stranger := newTestAddress(0x01), newTestAddress(0x02), newTestAddress(0x03)
	f.credit(t, seller, 1_000)
	f.credit(t, stranger, 10)
	offerID := [32]byte{0xBB}

	vault, err := f.engine.Open(offerID, seller, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.engine.Deposit(offerID, seller, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.state.Transfer(stranger, vault.Address, big.NewInt(1)); err != nil {
		t.Fatalf("inject: %v", err)
	}

	_, err = f.engine.Disburse(offerID, []Payout{{To: buyer, Amount: big.NewInt(100)}})
	if !errors.Is(err, exchangeerrors.ErrInvalidEscrowBalance) {
		t.Fatalf("expected InvalidEscrowBalance, got %v", err)
	}
	if got := f.balance(t, vault.Address); got != 101 {
		t.Fatalf("value must stay locked, vault has %d", got)
	}
	if got := f.balance(t, buyer); got != 0 {
		t.Fatalf("buyer must not be paid, has %d", got)
	}
}

func TestDisburseRejectsMismatchedPayouts(t *testing.T) {
	f := newFixture(t)
	seller := newTestAddress(0x01)
	f.credit(t, seller, 100)
	offerID := [32]byte{0xCC}
	if _, err := f.engine.Open(offerID, seller, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.engine.Deposit(offerID, seller, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := f.engine.Disburse(offerID, []Payout{{To: seller, Amount: big.NewInt(99)}})
	if !errors.Is(err, exchangeerrors.ErrInvalidEscrowBalance) {
		t.Fatalf("expected InvalidEscrowBalance, got %v", err)
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	seller := newTestAddress(0x01)
	offerID := [32]byte{0xDD}
	if _, err := f.engine.Open(offerID, seller, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.engine.Deposit(offerID, seller, big.NewInt(1)); !errors.Is(err, exchangeerrors.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if _, err := f.engine.Get([32]byte{0xEE}); !errors.Is(err, exchangeerrors.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
