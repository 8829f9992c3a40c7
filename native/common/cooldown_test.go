package common

import (
	"errors"
	"testing"

	"p2pexchange/core/state"
	"p2pexchange/storage"
)

func TestCheckCooldown(t *testing.T) {
	if err := CheckCooldown(0, 100, 300); err != nil {
		t.Fatalf("first action must pass: %v", err)
	}
	if err := CheckCooldown(100, 399, 300); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if err := CheckCooldown(100, 400, 300); err != nil {
		t.Fatalf("window elapsed: %v", err)
	}
	if err := CheckCooldown(100, 101, 0); err != nil {
		t.Fatalf("zero window disables: %v", err)
	}
}

func TestCooldownPersistsPerUser(t *testing.T) {
	store := state.NewManager(storage.NewMemDB())
	cd := Cooldown{Action: "offer.create", Window: 300}
	alice, bob := [20]byte{1}, [20]byte{2}

	if err := cd.Check(store, alice, 1000); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := cd.Record(store, alice, 1000); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := cd.Check(store, alice, 1200); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected cooldown for alice, got %v", err)
	}
	if err := cd.Check(store, bob, 1200); err != nil {
		t.Fatalf("bob must not be throttled: %v", err)
	}
	if err := cd.Check(store, alice, 1300); err != nil {
		t.Fatalf("window elapsed: %v", err)
	}
}

func TestGuard(t *testing.T) {
	pauses := NewStaticPauses([]string{" Offer "})
	if err := Guard(pauses, ModuleOffer); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(pauses, ModuleDispute); err != nil {
		t.Fatalf("dispute not paused: %v", err)
	}
	if err := Guard(nil, ModuleOffer); err != nil {
		t.Fatalf("nil view never pauses: %v", err)
	}
}

func TestBoundedText(t *testing.T) {
	got, err := BoundedText("method", "  bank transfer ", 50)
	if err != nil || got != "bank transfer" {
		t.Fatalf("unexpected result %q (%v)", got, err)
	}
	if _, err := BoundedText("method", "   ", 50); err == nil {
		t.Fatalf("blank input must fail")
	}
	if _, err := BoundedText("method", "abcdef", 5); err == nil {
		t.Fatalf("overlong input must fail")
	}
	// Decomposed e + combining acute normalises to a single rune.
	if _, err := BoundedText("method", "cafe\u0301", 4); err != nil {
		t.Fatalf("NFC form must fit: %v", err)
	}
}
