package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/types"
)

var accountPrefix = []byte("account:")

func accountKey(addr [20]byte) []byte {
	out := make([]byte, 0, len(accountPrefix)+len(addr))
	out = append(out, accountPrefix...)
	return append(out, addr[:]...)
}

// GetAccount loads the account stored under addr. Unknown addresses yield an
// empty account.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	data, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, account); err != nil {
			return nil, fmt.Errorf("state: decode account: %w", err)
		}
	}
	return account.Normalize(), nil
}

// PutAccount stages the account for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	account = account.Normalize()
	if account.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	m.put(accountKey(addr), encoded)
	return nil
}

// Balance returns the native balance held by addr.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Credit increases the balance of addr.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return exchangeerrors.ErrInvalidAmount
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance.Add(account.Balance, amount)
	return m.PutAccount(addr, account)
}

// Transfer moves amount from one account to another.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return exchangeerrors.ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	sender, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", exchangeerrors.ErrInsufficientFunds, sender.Balance, amount)
	}
	recipient, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	sender.Balance.Sub(sender.Balance, amount)
	recipient.Balance.Add(recipient.Balance, amount)
	if err := m.PutAccount(from, sender); err != nil {
		return err
	}
	return m.PutAccount(to, recipient)
}
