package rewards

import "math/big"

// DefaultMinTradeVolume is 0.01 of the native asset in base units.
var DefaultMinTradeVolume = big.NewInt(10_000_000)

const (
	KindTrade = "trade"
	KindVote  = "vote"
)

// Account tallies the activity that made a user eligible for rewards. Reward
// amounts themselves are computed off-ledger.
type Account struct {
	User          [20]byte
	TradeEvents   uint64
	VoteEvents    uint64
	TradingVolume *big.Int
	LastTradeAt   int64
	LastVoteAt    int64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.TradingVolume = new(big.Int)
	if a.TradingVolume != nil {
		out.TradingVolume.Set(a.TradingVolume)
	}
	return &out
}

type storedAccount struct {
	User          [20]byte
	TradeEvents   uint64
	VoteEvents    uint64
	TradingVolume *big.Int
	LastTradeAt   uint64
	LastVoteAt    uint64
}
