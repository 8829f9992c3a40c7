package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/native/admin"
	"p2pexchange/native/common"
	"p2pexchange/native/dispute"
	"p2pexchange/native/escrow"
	"p2pexchange/native/offer"
	"p2pexchange/native/reputation"
	"p2pexchange/native/rewards"
	"p2pexchange/storage"
)

const unit = 1_000_000_000

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

var (
	authority = addr(0xA0)
	seller    = addr(0x01)
	buyer     = addr(0x02)
	outsider  = addr(0x03)
	jury      = [dispute.JurorCount][20]byte{addr(0x11), addr(0x12), addr(0x13)}
	adminSig  = admin.Single(authority)
)

type testClock struct{ now atomic.Int64 }

func (c *testClock) Now() time.Time          { return time.Unix(c.now.Load(), 0) }
func (c *testClock) Advance(d time.Duration) { c.now.Add(int64(d / time.Second)) }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	ex    *Exchange
	sink  *events.Buffer
	clock *testClock
}

func newFixture(t *testing.T, params Params, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), sink: &events.Buffer{}, clock: &testClock{}}
	f.clock.now.Store(1_700_000_000)
	base := []Option{
		WithEmitter(f.sink),
		WithClock(f.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	ex, err := New(storage.NewMemDB(), params, append(base, opts...)...)
	require.NoError(t, err)
	f.ex = ex

	allocations := make([]Allocation, 0, 3)
	for _, who := range [][20]byte{seller, buyer, outsider} {
		allocations = append(allocations, Allocation{Address: who, Amount: big.NewInt(5 * unit)})
	}
	require.NoError(t, ex.ApplyGenesis(f.ctx, allocations))
	_, err = ex.InitializeAdmin(f.ctx, authority)
	require.NoError(t, err)
	f.sink.Reset()
	return f
}

func (f *fixture) balance(who [20]byte) int64 {
	f.t.Helper()
	bal, err := f.ex.Balance(who)
	require.NoError(f.t, err)
	return bal.Int64()
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, evt := range f.sink.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

// fiatSent drives a 1 unit offer with a 0.1 unit bond up to FiatSent.
func (f *fixture) fiatSent() *offer.Offer {
	f.t.Helper()
	o, err := f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
		Amount:        big.NewInt(unit),
		FiatAmount:    100,
		FiatCurrency:  "USD",
		PaymentMethod: "Bank Transfer",
	})
	require.NoError(f.t, err)
	_, err = f.ex.ListOffer(f.ctx, seller, o.ID)
	require.NoError(f.t, err)
	_, err = f.ex.AcceptOffer(f.ctx, buyer, o.ID, big.NewInt(unit/10))
	require.NoError(f.t, err)
	o, err = f.ex.MarkFiatSent(f.ctx, buyer, o.ID)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) disputed() (*offer.Offer, *dispute.Dispute) {
	f.t.Helper()
	o := f.fiatSent()
	d, err := f.ex.OpenDispute(f.ctx, buyer, o.ID, "Seller not responding")
	require.NoError(f.t, err)
	_, err = f.ex.AssignJurors(f.ctx, adminSig, d.ID, jury)
	require.NoError(f.t, err)
	return o, d
}

func TestScenarioHappyPath(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o := f.fiatSent()
	require.Equal(t, "USD", o.FiatCurrency)

	_, err := f.ex.ConfirmFiatReceipt(f.ctx, seller, o.ID)
	require.NoError(t, err)
	released, err := f.ex.ReleaseSol(f.ctx, seller, o.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusCompleted, released.Status)

	require.EqualValues(t, 6*unit, f.balance(buyer))
	require.EqualValues(t, 4*unit, f.balance(seller))

	view, err := f.ex.Escrow(o.ID)
	require.NoError(t, err)
	require.True(t, view.Vault.Closed)
	require.Zero(t, view.Balance.Sign())

	for _, party := range [][20]byte{seller, buyer} {
		record, ok, err := f.ex.Reputation(party)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 1, record.SuccessfulTrades)
		require.EqualValues(t, 100, record.Rating)

		account, err := f.ex.Rewards(party)
		require.NoError(t, err)
		require.EqualValues(t, 1, account.TradeEvents)
		require.EqualValues(t, unit+unit/10, account.TradingVolume.Int64())
	}

	registry, ok, err := f.ex.Admin()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.clock.Now().Unix(), registry.LastRewardUpdate)

	types := f.eventTypes()
	require.Contains(t, types, escrow.EventTypeVaultDisbursed)
	require.Contains(t, types, offer.EventTypeOfferReleased)
	require.Contains(t, types, reputation.EventTypeReputationUpdated)
	require.Contains(t, types, rewards.EventTypeRewardEligible)
}

func TestScenarioDisputeBuyerWins(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o, d := f.disputed()

	_, err := f.ex.SubmitEvidence(f.ctx, buyer, d.ID, "https://example.com/receipt.png")
	require.NoError(t, err)

	_, _, err = f.ex.CastVote(f.ctx, jury[0], d.ID, true)
	require.NoError(t, err)
	_, _, err = f.ex.CastVote(f.ctx, jury[1], d.ID, false)
	require.NoError(t, err)
	d, vote, err := f.ex.CastVote(f.ctx, jury[2], d.ID, true)
	require.NoError(t, err)
	require.True(t, vote.ForBuyer)
	require.Equal(t, dispute.StatusVerdictReached, d.Status)

	resolved, err := f.ex.ExecuteVerdict(f.ctx, adminSig, d.ID)
	require.NoError(t, err)
	require.Equal(t, dispute.StatusResolved, resolved.Status)
	require.Equal(t, dispute.OutcomeBuyer, resolved.Outcome)

	require.EqualValues(t, 6*unit, f.balance(buyer))
	require.EqualValues(t, 4*unit, f.balance(seller))

	settled, err := f.ex.Offer(o.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusCompleted, settled.Status)

	winner, _, err := f.ex.Reputation(buyer)
	require.NoError(t, err)
	require.EqualValues(t, 1, winner.DisputesWon)
	require.EqualValues(t, 30, winner.Rating)
	loser, _, err := f.ex.Reputation(seller)
	require.NoError(t, err)
	require.EqualValues(t, 1, loser.DisputesLost)
	require.EqualValues(t, 0, loser.Rating)

	for _, juror := range jury {
		account, err := f.ex.Rewards(juror)
		require.NoError(t, err)
		require.EqualValues(t, 1, account.VoteEvents)
	}

	byOffer, err := f.ex.DisputeForOffer(o.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, byOffer.ID)
}

func TestListReplayRejected(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o, err := f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
		Amount: big.NewInt(unit), FiatAmount: 10, FiatCurrency: "EUR", PaymentMethod: "SEPA",
	})
	require.NoError(t, err)
	_, err = f.ex.ListOffer(f.ctx, seller, o.ID)
	require.NoError(t, err)
	_, err = f.ex.ListOffer(f.ctx, seller, o.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrInvalidOfferStatus)

	_, err = f.ex.ListOffer(f.ctx, buyer, o.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrUnauthorized)
}

func TestInjectedValueBlocksRelease(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o := f.fiatSent()
	_, err := f.ex.ConfirmFiatReceipt(f.ctx, seller, o.ID)
	require.NoError(t, err)

	require.NoError(t, f.ex.Transfer(f.ctx, outsider, escrow.VaultAddress(o.ID), big.NewInt(1)))
	buyerBefore := f.balance(buyer)

	_, err = f.ex.ReleaseSol(f.ctx, seller, o.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrInvalidEscrowBalance)
	require.Equal(t, exchangeerrors.ClassIntegrity, exchangeerrors.ClassOf(err))

	current, err := f.ex.Offer(o.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusReadyForRelease, current.Status)
	require.Equal(t, buyerBefore, f.balance(buyer))
	_, ok, err := f.ex.Reputation(buyer)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInjectedValueBlocksVerdict(t *testing.T) {
	f := newFixture(t, DefaultParams())
	_, d := f.disputed()
	_, _, err := f.ex.CastVote(f.ctx, jury[0], d.ID, false)
	require.NoError(t, err)
	_, _, err = f.ex.CastVote(f.ctx, jury[1], d.ID, false)
	require.NoError(t, err)

	require.NoError(t, f.ex.Transfer(f.ctx, outsider, escrow.VaultAddress(d.OfferID), big.NewInt(7)))
	_, err = f.ex.ExecuteVerdict(f.ctx, adminSig, d.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrInvalidEscrowBalance)

	current, err := f.ex.Dispute(d.ID)
	require.NoError(t, err)
	require.Equal(t, dispute.StatusVerdictReached, current.Status)
}

func TestTieKeepsEscrowLockedUntilStalemate(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o, d := f.disputed()
	_, _, err := f.ex.CastVote(f.ctx, jury[0], d.ID, true)
	require.NoError(t, err)
	_, _, err = f.ex.CastVote(f.ctx, jury[1], d.ID, false)
	require.NoError(t, err)

	_, err = f.ex.ExecuteVerdict(f.ctx, adminSig, d.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrTiedVote)
	view, err := f.ex.Escrow(o.ID)
	require.NoError(t, err)
	require.EqualValues(t, unit+unit/10, view.Balance.Int64())

	_, err = f.ex.ResolveStalemate(f.ctx, adminSig, d.ID)
	require.ErrorIs(t, err, exchangeerrors.ErrInvalidDisputeStatus)

	f.clock.Advance(f.ex.Params().VotingWindow)
	resolved, err := f.ex.ResolveStalemate(f.ctx, adminSig, d.ID)
	require.NoError(t, err)
	require.Equal(t, dispute.OutcomeRefunded, resolved.Outcome)
	require.EqualValues(t, 5*unit, f.balance(seller))
	require.EqualValues(t, 5*unit, f.balance(buyer))
}

func TestFailedOperationLeavesNoPartialState(t *testing.T) {
	params := DefaultParams()
	params.Reserve = big.NewInt(1000)
	f := newFixture(t, params)

	_, err := f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
		Amount: big.NewInt(5 * unit), FiatAmount: 10, FiatCurrency: "USD", PaymentMethod: "Cash",
	})
	require.ErrorIs(t, err, exchangeerrors.ErrInsufficientFunds)
	require.EqualValues(t, 5*unit, f.balance(seller))
	require.Empty(t, f.sink.Events())

	list, err := f.ex.Offers(offer.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)

	o, err := f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
		Amount: big.NewInt(unit), FiatAmount: 10, FiatCurrency: "USD", PaymentMethod: "Cash",
	})
	require.NoError(t, err)
	require.Equal(t, offer.DeriveID(seller, 0), o.ID)
	require.EqualValues(t, 4*unit-1000, f.balance(seller))

	_, err = f.ex.CancelOffer(f.ctx, seller, o.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5*unit, f.balance(seller))
}

func TestPrefundedVaultRejectsOffer(t *testing.T) {
	f := newFixture(t, DefaultParams())
	next := escrow.VaultAddress(offer.DeriveID(seller, 0))
	require.NoError(t, f.ex.Transfer(f.ctx, outsider, next, big.NewInt(1)))
	f.sink.Reset()

	_, err := f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
		Amount: big.NewInt(unit), FiatAmount: 10, FiatCurrency: "USD", PaymentMethod: "Cash",
	})
	require.ErrorIs(t, err, exchangeerrors.ErrEscrowExists)
	require.EqualValues(t, 5*unit, f.balance(seller))
	require.EqualValues(t, 1, f.balance(next))
	require.Empty(t, f.sink.Events())

	list, err := f.ex.Offers(offer.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOfferCooldownThrottlesRepeatCreates(t *testing.T) {
	f := newFixture(t, DefaultParams())
	create := func() (*offer.Offer, error) {
		return f.ex.CreateOffer(f.ctx, seller, offer.CreateParams{
			Amount: big.NewInt(unit / 10), FiatAmount: 10, FiatCurrency: "USD", PaymentMethod: "Cash",
		})
	}
	_, err := create()
	require.NoError(t, err)
	_, err = create()
	require.ErrorIs(t, err, exchangeerrors.ErrCooldownActive)

	f.clock.Advance(5 * time.Minute)
	_, err = create()
	require.NoError(t, err)
}

func TestModulePause(t *testing.T) {
	f := newFixture(t, DefaultParams(), WithPauses(common.NewStaticPauses([]string{"dispute"})))
	o := f.fiatSent()
	d, err := f.ex.OpenDispute(f.ctx, seller, o.ID, "No payment arrived")
	require.NoError(t, err)

	_, err = f.ex.AssignJurors(f.ctx, adminSig, d.ID, jury)
	require.ErrorIs(t, err, exchangeerrors.ErrModulePaused)
	require.Equal(t, "ModulePaused", exchangeerrors.Code(err))
}

func TestGenesisAppliesOnce(t *testing.T) {
	f := newFixture(t, DefaultParams())
	err := f.ex.ApplyGenesis(f.ctx, []Allocation{{Address: outsider, Amount: big.NewInt(1)}})
	require.ErrorIs(t, err, exchangeerrors.ErrAlreadyInitialized)
	require.EqualValues(t, 5*unit, f.balance(outsider))
}

func TestTouchRewardsRequiresAuthority(t *testing.T) {
	f := newFixture(t, DefaultParams())
	_, err := f.ex.TouchRewards(f.ctx, admin.Single(outsider))
	require.ErrorIs(t, err, exchangeerrors.ErrUnauthorized)

	f.clock.Advance(time.Hour)
	registry, err := f.ex.TouchRewards(f.ctx, adminSig)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Unix(), registry.LastRewardUpdate)
}

func TestTransferEmitsEvent(t *testing.T) {
	f := newFixture(t, DefaultParams())
	require.NoError(t, f.ex.Transfer(f.ctx, seller, buyer, big.NewInt(10)))
	require.Equal(t, []string{events.TypeTransfer}, f.eventTypes())

	err := f.ex.Transfer(f.ctx, seller, buyer, big.NewInt(0))
	require.ErrorIs(t, err, exchangeerrors.ErrInvalidAmount)
	err = f.ex.Transfer(f.ctx, seller, buyer, big.NewInt(50*unit))
	require.ErrorIs(t, err, exchangeerrors.ErrInsufficientFunds)
	require.Len(t, f.sink.Events(), 1)
}

func TestConcurrentDisputeOpenCreatesOne(t *testing.T) {
	f := newFixture(t, DefaultParams())
	o := f.fiatSent()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		errs      = make(chan error, 2)
	)
	for _, who := range [][20]byte{seller, buyer} {
		wg.Add(1)
		go func(who [20]byte) {
			defer wg.Done()
			if _, err := f.ex.OpenDispute(f.ctx, who, o.ID, "conflict"); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}(who)
	}
	wg.Wait()
	close(errs)

	require.EqualValues(t, 1, successes.Load())
	for err := range errs {
		require.True(t, errors.Is(err, exchangeerrors.ErrDisputeAlreadyExists))
	}
}

func TestConcurrentVotesFromOneJurorRecordOne(t *testing.T) {
	f := newFixture(t, DefaultParams())
	_, d := f.disputed()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		errs      = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(forBuyer bool) {
			defer wg.Done()
			if _, _, err := f.ex.CastVote(f.ctx, jury[0], d.ID, forBuyer); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	require.EqualValues(t, 1, successes.Load())
	for err := range errs {
		require.ErrorIs(t, err, exchangeerrors.ErrInvalidDisputeStatus)
	}

	_, ok, err := f.ex.Vote(d.ID, jury[0])
	require.NoError(t, err)
	require.True(t, ok)
	current, err := f.ex.Dispute(d.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, current.TotalVotes())
	require.EqualValues(t, 1, int(current.VotesForBuyer)+int(current.VotesForSeller))

	account, err := f.ex.Rewards(jury[0])
	require.NoError(t, err)
	require.EqualValues(t, 1, account.VoteEvents)
}

func TestDefaultParams(t *testing.T) {
	params := DefaultParams()
	require.Equal(t, 5*time.Minute, params.OfferCooldown)
	require.Equal(t, time.Hour, params.DisputeCooldown)
	require.Equal(t, 48*time.Hour, params.EvidenceWindow)
	require.Equal(t, 7*24*time.Hour, params.VotingWindow)
	require.Zero(t, params.Reserve.Sign())
}

func TestParamsValidate(t *testing.T) {
	params := DefaultParams()
	require.NoError(t, params.Validate())

	params.VotingWindow = params.EvidenceWindow
	require.Error(t, params.Validate())

	params = DefaultParams()
	params.Reserve = big.NewInt(-1)
	require.Error(t, params.Validate())

	_, err := New(nil, DefaultParams())
	require.Error(t, err)
}
