package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/state"
	"p2pexchange/native/admin"
	"p2pexchange/native/common"
	"p2pexchange/native/dispute"
	"p2pexchange/native/escrow"
	"p2pexchange/native/offer"
	"p2pexchange/native/reputation"
	"p2pexchange/native/rewards"
	"p2pexchange/observability"
	"p2pexchange/storage"
)

var errNilDatabase = errors.New("exchange: database required")

// Exchange is the entry point for every ledger operation. Writers are
// serialised; each one runs against a private state overlay that is committed
// as a single storage batch only when the whole operation succeeds. Events are
// buffered alongside and delivered after the commit.
type Exchange struct {
	mu      sync.RWMutex
	db      storage.Database
	params  Params
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() time.Time
	logger  *slog.Logger
	metrics *observability.ExchangeMetrics
	tracer  trace.Tracer
}

// Option customises an Exchange.
type Option func(*Exchange)

// WithEmitter sets the sink for committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(x *Exchange) {
		if emitter != nil {
			x.emitter = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(x *Exchange) {
		if now != nil {
			x.nowFn = now
		}
	}
}

// WithPauses installs the module pause switchboard.
func WithPauses(pauses common.PauseView) Option {
	return func(x *Exchange) { x.pauses = pauses }
}

// WithLogger sets the structured logger for operation outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Exchange) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithMetrics enables prometheus accounting of operations.
func WithMetrics(metrics *observability.ExchangeMetrics) Option {
	return func(x *Exchange) { x.metrics = metrics }
}

// New builds an Exchange over db.
func New(db storage.Database, params Params, opts ...Option) (*Exchange, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	x := &Exchange{
		db:      db,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer("p2pexchange/core"),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Params returns the ledger parameters.
func (x *Exchange) Params() Params { return x.params }

func (x *Exchange) now() int64 { return x.nowFn().Unix() }

// session bundles the engines of one operation, all bound to the same
// overlay, clock and event sink.
type session struct {
	manager    *state.Manager
	emitter    events.Emitter
	admin      *admin.Engine
	escrow     *escrow.Engine
	offers     *offer.Engine
	disputes   *dispute.Engine
	reputation *reputation.Engine
	rewards    *rewards.Tracker
}

func (x *Exchange) newSession(manager *state.Manager, emitter events.Emitter) (*session, error) {
	clock := x.now

	registry := admin.NewEngine()
	registry.SetState(manager)
	registry.SetEmitter(emitter)
	registry.SetNowFunc(clock)

	vault := escrow.NewEngine()
	vault.SetState(manager)
	vault.SetEmitter(emitter)
	vault.SetNowFunc(clock)

	offers := offer.NewEngine()
	offers.SetState(manager)
	offers.SetEscrow(vault)
	offers.SetEmitter(emitter)
	offers.SetNowFunc(clock)
	offers.SetReserve(x.params.Reserve)
	offers.SetCreationCooldown(seconds(x.params.OfferCooldown))

	disputes := dispute.NewEngine()
	disputes.SetState(manager)
	disputes.SetOffers(offers)
	disputes.SetAuthorizer(registry)
	disputes.SetEmitter(emitter)
	disputes.SetNowFunc(clock)
	disputes.SetOpenCooldown(seconds(x.params.DisputeCooldown))
	if err := disputes.SetWindows(seconds(x.params.EvidenceWindow), seconds(x.params.VotingWindow)); err != nil {
		return nil, err
	}

	rep := reputation.NewEngine(manager)
	rep.SetAuthorizer(registry)
	rep.SetEmitter(emitter)
	rep.SetNowFunc(clock)

	tracker := rewards.NewTracker()
	tracker.SetState(manager)
	tracker.SetRegistry(registry)
	tracker.SetEmitter(emitter)
	tracker.SetNowFunc(clock)
	tracker.SetMinTradeVolume(x.params.MinRewardVolume)

	return &session{
		manager:    manager,
		emitter:    emitter,
		admin:      registry,
		escrow:     vault,
		offers:     offers,
		disputes:   disputes,
		reputation: rep,
		rewards:    tracker,
	}, nil
}

// apply runs fn as one atomic operation of module.
func (x *Exchange) apply(ctx context.Context, module, operation string, fn func(*session) error) error {
	_, span := x.tracer.Start(ctx, module+"."+operation, trace.WithAttributes(
		attribute.String("exchange.module", module),
		attribute.String("exchange.operation", operation),
	))
	defer span.End()

	start := time.Now()
	err := x.applyLocked(module, fn)
	elapsed := time.Since(start)

	code := "OK"
	if err != nil {
		code = exchangeerrors.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	x.metrics.ObserveOperation(module, operation, code, elapsed)

	attrs := []any{
		slog.String("module", module),
		slog.String("operation", operation),
		slog.String("code", code),
		slog.Duration("duration", elapsed),
	}
	switch {
	case err == nil:
		x.logger.Debug("exchange operation", attrs...)
	case exchangeerrors.ClassOf(err) == exchangeerrors.ClassInternal:
		x.logger.Error("exchange operation failed", append(attrs, slog.Any("error", err))...)
	case exchangeerrors.ClassOf(err) == exchangeerrors.ClassIntegrity:
		x.logger.Warn("exchange operation rejected", append(attrs, slog.Any("error", err))...)
	default:
		x.logger.Debug("exchange operation rejected", append(attrs, slog.Any("error", err))...)
	}
	return err
}

func (x *Exchange) applyLocked(module string, fn func(*session) error) error {
	if err := common.Guard(x.pauses, module); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	manager := state.NewManager(x.db)
	buffer := &events.Buffer{}
	s, err := x.newSession(manager, buffer)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		manager.Discard()
		buffer.Reset()
		return err
	}
	if err := manager.Commit(); err != nil {
		buffer.Reset()
		return fmt.Errorf("exchange: commit: %w", err)
	}
	buffer.Flush(x.emitter)
	return nil
}

// view runs fn against committed state under the read lock.
func (x *Exchange) view(fn func(*session) error) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s, err := x.newSession(state.NewManager(x.db), events.NoopEmitter{})
	if err != nil {
		return err
	}
	return fn(s)
}

// --- admin ---

// InitializeAdmin creates the admin registry with authority as primary.
func (x *Exchange) InitializeAdmin(ctx context.Context, authority [20]byte) (*admin.Registry, error) {
	var out *admin.Registry
	err := x.apply(ctx, common.ModuleAdmin, "initialize", func(s *session) error {
		registry, err := s.admin.Initialize(authority)
		out = registry
		return err
	})
	return out, err
}

// UpdateAuthorities replaces the secondary authorities and signature threshold.
func (x *Exchange) UpdateAuthorities(ctx context.Context, approvals admin.Approvals, secondary [][20]byte, required uint8) (*admin.Registry, error) {
	var out *admin.Registry
	err := x.apply(ctx, common.ModuleAdmin, "update_authorities", func(s *session) error {
		registry, err := s.admin.UpdateAuthorities(approvals, secondary, required)
		out = registry
		return err
	})
	return out, err
}

// --- offers ---

// CreateOffer locks the seller's amount in a new vault and records the offer.
func (x *Exchange) CreateOffer(ctx context.Context, seller [20]byte, params offer.CreateParams) (*offer.Offer, error) {
	return x.offerOp(ctx, "create", func(s *session) (*offer.Offer, error) {
		return s.offers.Create(seller, params)
	})
}

// ListOffer publishes a created offer.
func (x *Exchange) ListOffer(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error) {
	return x.offerOp(ctx, "list", func(s *session) (*offer.Offer, error) {
		return s.offers.List(caller, id)
	})
}

// AcceptOffer binds caller as buyer and locks the security bond.
func (x *Exchange) AcceptOffer(ctx context.Context, caller [20]byte, id [32]byte, bond *big.Int) (*offer.Offer, error) {
	return x.offerOp(ctx, "accept", func(s *session) (*offer.Offer, error) {
		return s.offers.Accept(caller, id, bond)
	})
}

// MarkFiatSent records the buyer's payment claim.
func (x *Exchange) MarkFiatSent(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error) {
	return x.offerOp(ctx, "mark_fiat_sent", func(s *session) (*offer.Offer, error) {
		return s.offers.MarkFiatSent(caller, id)
	})
}

// ConfirmFiatReceipt records the seller's acknowledgement.
func (x *Exchange) ConfirmFiatReceipt(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error) {
	return x.offerOp(ctx, "confirm_fiat_receipt", func(s *session) (*offer.Offer, error) {
		return s.offers.ConfirmFiatReceipt(caller, id)
	})
}

// ReleaseSol pays the escrow to the buyer, credits both parties with a
// successful trade and records reward eligibility.
func (x *Exchange) ReleaseSol(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error) {
	o, err := x.offerOp(ctx, "release_sol", func(s *session) (*offer.Offer, error) {
		o, err := s.offers.Release(caller, id)
		if err != nil {
			return nil, err
		}
		for _, party := range [][20]byte{o.Seller, o.Buyer} {
			if _, err := s.reputation.Record(party, reputation.Outcome{Successful: true}); err != nil {
				return nil, err
			}
		}
		if _, err := s.rewards.TradeCompleted(o.Seller, o.Buyer, o.Locked()); err != nil {
			return nil, err
		}
		return o, nil
	})
	if err == nil {
		x.metrics.RecordSettlement("release", o.Locked())
	}
	return o, err
}

// CancelOffer withdraws an offer nobody accepted and refunds the seller.
func (x *Exchange) CancelOffer(ctx context.Context, caller [20]byte, id [32]byte) (*offer.Offer, error) {
	o, err := x.offerOp(ctx, "cancel", func(s *session) (*offer.Offer, error) {
		return s.offers.Cancel(caller, id)
	})
	if err == nil {
		x.metrics.RecordSettlement("cancel", o.Locked())
	}
	return o, err
}

// OpenDispute freezes an in-flight offer and opens arbitration.
func (x *Exchange) OpenDispute(ctx context.Context, caller [20]byte, offerID [32]byte, reason string) (*dispute.Dispute, error) {
	var out *dispute.Dispute
	err := x.apply(ctx, common.ModuleOffer, "open_dispute", func(s *session) error {
		d, err := s.disputes.Open(caller, offerID, reason)
		out = d
		return err
	})
	return out, err
}

func (x *Exchange) offerOp(ctx context.Context, operation string, fn func(*session) (*offer.Offer, error)) (*offer.Offer, error) {
	var out *offer.Offer
	err := x.apply(ctx, common.ModuleOffer, operation, func(s *session) error {
		o, err := fn(s)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- disputes ---

// AssignJurors seats the three jurors of a dispute.
func (x *Exchange) AssignJurors(ctx context.Context, approvals admin.Approvals, id [32]byte, jurors [dispute.JurorCount][20]byte) (*dispute.Dispute, error) {
	return x.disputeOp(ctx, "assign_jurors", func(s *session) (*dispute.Dispute, error) {
		return s.disputes.AssignJurors(approvals, id, jurors)
	})
}

// SubmitEvidence attaches an evidence link from one of the parties.
func (x *Exchange) SubmitEvidence(ctx context.Context, caller [20]byte, id [32]byte, url string) (*dispute.Dispute, error) {
	return x.disputeOp(ctx, "submit_evidence", func(s *session) (*dispute.Dispute, error) {
		return s.disputes.SubmitEvidence(caller, id, url)
	})
}

// CastVote records a juror's ballot and their reward eligibility.
func (x *Exchange) CastVote(ctx context.Context, juror [20]byte, id [32]byte, forBuyer bool) (*dispute.Dispute, *dispute.Vote, error) {
	var vote *dispute.Vote
	d, err := x.disputeOp(ctx, "cast_vote", func(s *session) (*dispute.Dispute, error) {
		d, v, err := s.disputes.CastVote(juror, id, forBuyer)
		if err != nil {
			return nil, err
		}
		if err := s.rewards.VoteCast(juror); err != nil {
			return nil, err
		}
		vote = v
		return d, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return d, vote, nil
}

// ExecuteVerdict pays the escrow to the majority side and records the
// dispute on both parties' reputation.
func (x *Exchange) ExecuteVerdict(ctx context.Context, approvals admin.Approvals, id [32]byte) (*dispute.Dispute, error) {
	var paid *big.Int
	d, err := x.disputeOp(ctx, "execute_verdict", func(s *session) (*dispute.Dispute, error) {
		d, err := s.disputes.ExecuteVerdict(approvals, id)
		if err != nil {
			return nil, err
		}
		winner, loser := d.Seller, d.Buyer
		if d.Outcome == dispute.OutcomeBuyer {
			winner, loser = d.Buyer, d.Seller
		}
		if _, err := s.reputation.Record(winner, reputation.Outcome{Disputed: true, Won: true}); err != nil {
			return nil, err
		}
		if _, err := s.reputation.Record(loser, reputation.Outcome{Disputed: true}); err != nil {
			return nil, err
		}
		o, err := s.offers.Get(d.OfferID)
		if err != nil {
			return nil, err
		}
		paid = o.Locked()
		return d, nil
	})
	if err == nil {
		x.metrics.RecordSettlement("verdict", paid)
	}
	return d, err
}

// ResolveStalemate refunds both parties of a tied dispute once voting closed.
func (x *Exchange) ResolveStalemate(ctx context.Context, approvals admin.Approvals, id [32]byte) (*dispute.Dispute, error) {
	var paid *big.Int
	d, err := x.disputeOp(ctx, "resolve_stalemate", func(s *session) (*dispute.Dispute, error) {
		d, err := s.disputes.ResolveStalemate(approvals, id)
		if err != nil {
			return nil, err
		}
		o, err := s.offers.Get(d.OfferID)
		if err != nil {
			return nil, err
		}
		paid = o.Locked()
		return d, nil
	})
	if err == nil {
		x.metrics.RecordSettlement("refund", paid)
	}
	return d, err
}

func (x *Exchange) disputeOp(ctx context.Context, operation string, fn func(*session) (*dispute.Dispute, error)) (*dispute.Dispute, error) {
	var out *dispute.Dispute
	err := x.apply(ctx, common.ModuleDispute, operation, func(s *session) error {
		d, err := fn(s)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- reputation ---

// CreateReputation opens caller's reputation record.
func (x *Exchange) CreateReputation(ctx context.Context, caller [20]byte) (*reputation.Record, error) {
	var out *reputation.Record
	err := x.apply(ctx, common.ModuleReputation, "create", func(s *session) error {
		record, err := s.reputation.Create(caller)
		out = record
		return err
	})
	return out, err
}

// UpdateReputation folds an admin-supplied outcome into user's record.
func (x *Exchange) UpdateReputation(ctx context.Context, approvals admin.Approvals, user [20]byte, outcome reputation.Outcome) (*reputation.Record, error) {
	var out *reputation.Record
	err := x.apply(ctx, common.ModuleReputation, "update", func(s *session) error {
		record, err := s.reputation.Update(approvals, user, outcome)
		out = record
		return err
	})
	return out, err
}

// --- rewards ---

// TouchRewards stamps the registry's last reward update. Admin only.
func (x *Exchange) TouchRewards(ctx context.Context, approvals admin.Approvals) (*admin.Registry, error) {
	var out *admin.Registry
	err := x.apply(ctx, common.ModuleRewards, "touch", func(s *session) error {
		if _, err := s.admin.Authorize(approvals); err != nil {
			return err
		}
		if err := s.rewards.Touch(); err != nil {
			return err
		}
		registry, _, err := s.admin.Get()
		out = registry
		return err
	})
	return out, err
}

// --- native balances ---

// Transfer moves native value between two accounts.
func (x *Exchange) Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error {
	return x.apply(ctx, common.ModuleTransfer, "send", func(s *session) error {
		if from == ([20]byte{}) || to == ([20]byte{}) {
			return fmt.Errorf("%w: zero address", exchangeerrors.ErrUnauthorized)
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: transfer amount must be positive", exchangeerrors.ErrInvalidAmount)
		}
		if err := s.manager.Transfer(from, to, amount); err != nil {
			return err
		}
		s.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount)})
		return nil
	})
}

// Allocation is one genesis balance.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

var genesisMarkerKey = []byte("genesis/applied")

// ApplyGenesis credits the initial balances. It succeeds once per database.
func (x *Exchange) ApplyGenesis(ctx context.Context, allocations []Allocation) error {
	return x.apply(ctx, common.ModuleTransfer, "genesis", func(s *session) error {
		applied, err := s.manager.KVGet(genesisMarkerKey, nil)
		if err != nil {
			return err
		}
		if applied {
			return fmt.Errorf("%w: genesis", exchangeerrors.ErrAlreadyInitialized)
		}
		for _, alloc := range allocations {
			if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
				return fmt.Errorf("%w: genesis allocation must be positive", exchangeerrors.ErrInvalidAmount)
			}
			if err := s.manager.Credit(alloc.Address, alloc.Amount); err != nil {
				return err
			}
			s.emitter.Emit(events.GenesisCredit{To: alloc.Address, Amount: new(big.Int).Set(alloc.Amount)})
		}
		return s.manager.KVPut(genesisMarkerKey, uint64(x.now()))
	})
}
