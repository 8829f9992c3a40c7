package common

import (
	"fmt"

	exchangeerrors "p2pexchange/core/errors"
)

var ErrCooldownActive = exchangeerrors.ErrCooldownActive

// CheckCooldown returns ErrCooldownActive while now is inside window seconds
// after last. A zero window or a zero last timestamp never blocks.
func CheckCooldown(last, now, window int64) error {
	if window <= 0 || last <= 0 {
		return nil
	}
	if now < last+window {
		return fmt.Errorf("%w: retry in %ds", ErrCooldownActive, last+window-now)
	}
	return nil
}

type cooldownStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Cooldown throttles one action per identity, persisting the last accepted
// timestamp in state.
type Cooldown struct {
	Action string
	Window int64
}

func (c Cooldown) key(user [20]byte) []byte {
	return []byte(fmt.Sprintf("cooldown/%s/%x", c.Action, user))
}

// Last returns the last recorded timestamp for user, or zero.
func (c Cooldown) Last(store cooldownStore, user [20]byte) (int64, error) {
	var last uint64
	ok, err := store.KVGet(c.key(user), &last)
	if err != nil || !ok {
		return 0, err
	}
	return int64(last), nil
}

// Check fails while user is still cooling down.
func (c Cooldown) Check(store cooldownStore, user [20]byte, now int64) error {
	if c.Window <= 0 || store == nil {
		return nil
	}
	last, err := c.Last(store, user)
	if err != nil {
		return err
	}
	return CheckCooldown(last, now, c.Window)
}

// Record stores now as the last accepted action for user.
func (c Cooldown) Record(store cooldownStore, user [20]byte, now int64) error {
	if store == nil || now <= 0 {
		return nil
	}
	return store.KVPut(c.key(user), uint64(now))
}
