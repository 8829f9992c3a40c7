package escrow

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Vault is the custody record guarding the value locked for one offer. The
// balance itself lives in the native account at Address.
type Vault struct {
	OfferID   [32]byte
	Address   [20]byte
	Funder    [20]byte
	Reserve   *big.Int
	Deposited *big.Int
	Closed    bool
	CreatedAt int64
	ClosedAt  int64
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	out.Reserve = cloneBigInt(v.Reserve)
	out.Deposited = cloneBigInt(v.Deposited)
	return &out
}

// Expected returns the balance the vault must hold for a release to proceed.
func (v *Vault) Expected() *big.Int {
	return new(big.Int).Add(cloneBigInt(v.Deposited), cloneBigInt(v.Reserve))
}

// Payout is one leg of a disbursement.
type Payout struct {
	To     [20]byte
	Amount *big.Int
}

// VaultAddress derives the custody account for an offer. Nobody holds a key
// for it; only the escrow engine moves value out.
func VaultAddress(offerID [32]byte) [20]byte {
	digest := ethcrypto.Keccak256([]byte("escrow"), offerID[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

type storedVault struct {
	OfferID   [32]byte
	Address   [20]byte
	Funder    [20]byte
	Reserve   *big.Int
	Deposited *big.Int
	Closed    bool
	CreatedAt uint64
	ClosedAt  uint64
}

func newStoredVault(v *Vault) *storedVault {
	return &storedVault{
		OfferID:   v.OfferID,
		Address:   v.Address,
		Funder:    v.Funder,
		Reserve:   cloneBigInt(v.Reserve),
		Deposited: cloneBigInt(v.Deposited),
		Closed:    v.Closed,
		CreatedAt: uint64(v.CreatedAt),
		ClosedAt:  uint64(v.ClosedAt),
	}
}

func (s *storedVault) toVault() *Vault {
	return &Vault{
		OfferID:   s.OfferID,
		Address:   s.Address,
		Funder:    s.Funder,
		Reserve:   cloneBigInt(s.Reserve),
		Deposited: cloneBigInt(s.Deposited),
		Closed:    s.Closed,
		CreatedAt: int64(s.CreatedAt),
		ClosedAt:  int64(s.ClosedAt),
	}
}
