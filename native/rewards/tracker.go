package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/crypto"
)

// EventTypeRewardEligible is emitted each time a user qualifies for a reward.
const EventTypeRewardEligible = "rewards.eligible"

var errNilState = errors.New("rewards: state not configured")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type touchpoint interface {
	TouchRewards(ts int64) error
}

func accountKey(user [20]byte) []byte { return []byte(fmt.Sprintf("rewards/account/%x", user)) }

// Tracker records reward eligibility for completed trades and jury votes and
// stamps the admin registry's last reward update.
type Tracker struct {
	state     engineState
	registry  touchpoint
	emitter   events.Emitter
	nowFn     func() int64
	minVolume *big.Int
}

// NewTracker returns a tracker with the default minimum trade volume.
func NewTracker() *Tracker {
	return &Tracker{
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		minVolume: new(big.Int).Set(DefaultMinTradeVolume),
	}
}

func (t *Tracker) SetState(state engineState)      { t.state = state }
func (t *Tracker) SetRegistry(registry touchpoint) { t.registry = registry }

func (t *Tracker) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

func (t *Tracker) SetNowFunc(now func() int64) {
	if now == nil {
		t.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	t.nowFn = now
}

// SetMinTradeVolume configures the smallest trade that earns eligibility.
func (t *Tracker) SetMinTradeVolume(v *big.Int) {
	if v == nil || v.Sign() < 0 {
		t.minVolume = new(big.Int).Set(DefaultMinTradeVolume)
		return
	}
	t.minVolume = new(big.Int).Set(v)
}

func (t *Tracker) now() int64 {
	if t == nil || t.nowFn == nil {
		return time.Now().Unix()
	}
	return t.nowFn()
}

// Get returns the eligibility tally for user.
func (t *Tracker) Get(user [20]byte) (*Account, bool, error) {
	if t == nil || t.state == nil {
		return nil, false, errNilState
	}
	var stored storedAccount
	ok, err := t.state.KVGet(accountKey(user), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &Account{User: user, TradingVolume: big.NewInt(0)}, false, nil
	}
	return &Account{
		User:          stored.User,
		TradeEvents:   stored.TradeEvents,
		VoteEvents:    stored.VoteEvents,
		TradingVolume: stored.TradingVolume,
		LastTradeAt:   int64(stored.LastTradeAt),
		LastVoteAt:    int64(stored.LastVoteAt),
	}, true, nil
}

func (t *Tracker) put(a *Account) error {
	volume := a.TradingVolume
	if volume == nil {
		volume = big.NewInt(0)
	}
	return t.state.KVPut(accountKey(a.User), &storedAccount{
		User:          a.User,
		TradeEvents:   a.TradeEvents,
		VoteEvents:    a.VoteEvents,
		TradingVolume: volume,
		LastTradeAt:   uint64(a.LastTradeAt),
		LastVoteAt:    uint64(a.LastVoteAt),
	})
}

// TradeCompleted marks both parties eligible when volume meets the minimum.
// It reports whether the trade qualified.
func (t *Tracker) TradeCompleted(seller, buyer [20]byte, volume *big.Int) (bool, error) {
	if t == nil || t.state == nil {
		return false, errNilState
	}
	if volume == nil || volume.Cmp(t.minVolume) < 0 {
		return false, nil
	}
	now := t.now()
	for _, user := range [][20]byte{seller, buyer} {
		account, _, err := t.Get(user)
		if err != nil {
			return false, err
		}
		account.TradeEvents++
		account.TradingVolume = new(big.Int).Add(account.TradingVolume, volume)
		account.LastTradeAt = now
		if err := t.put(account); err != nil {
			return false, err
		}
		t.emitEligible(user, KindTrade, volume, now)
	}
	return true, t.Touch()
}

// VoteCast marks juror eligible for taking part in arbitration.
func (t *Tracker) VoteCast(juror [20]byte) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	now := t.now()
	account, _, err := t.Get(juror)
	if err != nil {
		return err
	}
	account.VoteEvents++
	account.LastVoteAt = now
	if err := t.put(account); err != nil {
		return err
	}
	t.emitEligible(juror, KindVote, nil, now)
	return t.Touch()
}

// Touch stamps the registry's last reward update with the current time.
func (t *Tracker) Touch() error {
	if t == nil || t.registry == nil {
		return nil
	}
	return t.registry.TouchRewards(t.now())
}

func (t *Tracker) emitEligible(user [20]byte, kind string, volume *big.Int, ts int64) {
	if t.emitter == nil {
		return
	}
	attrs := map[string]string{
		"user":      crypto.FormatAddress(user),
		"kind":      kind,
		"timestamp": strconv.FormatInt(ts, 10),
	}
	if volume != nil {
		attrs["volume"] = volume.String()
	}
	t.emitter.Emit(&types.Event{Type: EventTypeRewardEligible, Attributes: attrs})
}
