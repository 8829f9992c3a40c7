package rewards

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"p2pexchange/core/events"
	"p2pexchange/core/state"
	"p2pexchange/native/admin"
	"p2pexchange/storage"
)

func newTestTracker(t *testing.T, now *int64) (*Tracker, *admin.Engine, *events.Buffer) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	clock := func() int64 { return *now }
	registry := admin.NewEngine()
	registry.SetState(st)
	registry.SetNowFunc(clock)
	_, err := registry.Initialize([20]byte{0xA0})
	require.NoError(t, err)

	buf := &events.Buffer{}
	tracker := NewTracker()
	tracker.SetState(st)
	tracker.SetRegistry(registry)
	tracker.SetEmitter(buf)
	tracker.SetNowFunc(clock)
	return tracker, registry, buf
}

func TestTradeCompletedAboveThreshold(t *testing.T) {
	now := int64(1_700_000_000)
	tracker, registry, buf := newTestTracker(t, &now)
	seller, buyer := [20]byte{1}, [20]byte{2}

	now += 60
	ok, err := tracker.TradeCompleted(seller, buyer, big.NewInt(1_100_000_000))
	require.NoError(t, err)
	require.True(t, ok)

	account, found, err := tracker.Get(buyer)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), account.TradeEvents)
	require.Equal(t, "1100000000", account.TradingVolume.String())

	reg, _, err := registry.Get()
	require.NoError(t, err)
	require.Equal(t, now, reg.LastRewardUpdate)
	require.Len(t, buf.Events(), 2)
}

func TestTradeBelowThresholdIgnored(t *testing.T) {
	now := int64(1_700_000_000)
	tracker, _, buf := newTestTracker(t, &now)

	ok, err := tracker.TradeCompleted([20]byte{1}, [20]byte{2}, big.NewInt(9_999_999))
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, buf.Events())

	_, found, err := tracker.Get([20]byte{1})
	require.NoError(t, err)
	require.False(t, found)
}

func TestVoteCast(t *testing.T) {
	now := int64(1_700_000_000)
	tracker, _, buf := newTestTracker(t, &now)
	juror := [20]byte{3}

	require.NoError(t, tracker.VoteCast(juror))
	require.NoError(t, tracker.VoteCast(juror))

	account, _, err := tracker.Get(juror)
	require.NoError(t, err)
	require.Equal(t, uint64(2), account.VoteEvents)
	evts := buf.Events()
	require.Len(t, evts, 2)
	require.Equal(t, KindVote, events.Payload(evts[0]).Attributes["kind"])
}
