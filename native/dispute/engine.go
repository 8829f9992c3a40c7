package dispute

import (
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/native/admin"
	"p2pexchange/native/common"
	"p2pexchange/native/offer"
)

var (
	errNilState        = errors.New("dispute engine: state not configured")
	errNilOffers       = errors.New("dispute engine: offers not configured")
	errNilAuthorizer   = errors.New("dispute engine: authorizer not configured")
	errDisputeNotFound = fmt.Errorf("%w: dispute", exchangeerrors.ErrNotFound)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type offerBook interface {
	Get(id [32]byte) (*offer.Offer, error)
	MarkDisputed(caller [20]byte, id [32]byte, disputeID [32]byte) (*offer.Offer, error)
	SettleDispute(id [32]byte, winner [20]byte) (*offer.Offer, error)
	RefundDispute(id [32]byte) (*offer.Offer, error)
}

type authorizer interface {
	Authorize(approvals admin.Approvals) (*admin.Registry, error)
}

func disputeKey(id [32]byte) []byte { return []byte(fmt.Sprintf("dispute/record/%x", id)) }

func voteKey(id [32]byte, juror [20]byte) []byte {
	return []byte(fmt.Sprintf("dispute/vote/%x/%x", id, juror))
}

// DeriveID returns the identifier of the dispute raised against offerID.
// There can only ever be one.
func DeriveID(offerID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("dispute"), offerID[:])
}

// Engine arbitrates disputed offers: jury assignment, evidence, voting and the
// final payout decision.
type Engine struct {
	state          engineState
	offers         offerBook
	auth           authorizer
	emitter        events.Emitter
	nowFn          func() int64
	evidenceWindow int64
	votingWindow   int64
	cooldown       common.Cooldown
}

// NewEngine creates a dispute engine with the default evidence and voting
// windows and no opening cooldown.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		evidenceWindow: DefaultEvidenceWindow,
		votingWindow:   DefaultVotingWindow,
		cooldown:       common.Cooldown{Action: "dispute.open"},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOffers configures the offer lifecycle the engine settles against.
func (e *Engine) SetOffers(offers offerBook) { e.offers = offers }

// SetAuthorizer configures the admin registry used for privileged calls.
func (e *Engine) SetAuthorizer(auth authorizer) { e.auth = auth }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetWindows configures the evidence and voting windows in seconds, both
// measured from dispute creation. Voting must outlast evidence.
func (e *Engine) SetWindows(evidence, voting int64) error {
	if evidence <= 0 || voting <= evidence {
		return fmt.Errorf("dispute: voting window %ds must exceed evidence window %ds", voting, evidence)
	}
	e.evidenceWindow = evidence
	e.votingWindow = voting
	return nil
}

// SetOpenCooldown configures the minimum seconds between two disputes opened
// by the same identity. Zero disables the check.
func (e *Engine) SetOpenCooldown(seconds int64) { e.cooldown.Window = seconds }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.offers == nil {
		return errNilOffers
	}
	return nil
}

func (e *Engine) authorize(approvals admin.Approvals) error {
	if e.auth == nil {
		return errNilAuthorizer
	}
	_, err := e.auth.Authorize(approvals)
	return err
}

// Get loads a dispute by identifier.
func (e *Engine) Get(id [32]byte) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedDispute
	ok, err := e.state.KVGet(disputeKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errDisputeNotFound
	}
	return stored.toDispute(), nil
}

// ForOffer loads the dispute raised against offerID.
func (e *Engine) ForOffer(offerID [32]byte) (*Dispute, error) {
	return e.Get(DeriveID(offerID))
}

// Vote loads the ballot juror cast on dispute id.
func (e *Engine) Vote(id [32]byte, juror [20]byte) (*Vote, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored storedVote
	ok, err := e.state.KVGet(voteKey(id, juror), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Vote{DisputeID: stored.DisputeID, Juror: stored.Juror, ForBuyer: stored.ForBuyer, CastAt: int64(stored.CastAt)}, true, nil
}

func (e *Engine) store(d *Dispute) error {
	return e.state.KVPut(disputeKey(d.ID), newStoredDispute(d))
}

func invalidStatus(d *Dispute, detail string) error {
	return fmt.Errorf("%w: dispute is %s, %s", exchangeerrors.ErrInvalidDisputeStatus, d.Status, detail)
}

// Open raises a dispute against an accepted offer on behalf of one of its
// parties and freezes the offer.
func (e *Engine) Open(initiator [20]byte, offerID [32]byte, reason string) (*Dispute, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	reason, err := common.BoundedText("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	id := DeriveID(offerID)
	exists, err := e.state.KVGet(disputeKey(id), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, exchangeerrors.ErrDisputeAlreadyExists
	}
	now := e.now()
	if err := e.cooldown.Check(e.state, initiator, now); err != nil {
		return nil, err
	}
	o, err := e.offers.MarkDisputed(initiator, offerID, id)
	if err != nil {
		return nil, err
	}
	respondent := o.Seller
	if initiator == o.Seller {
		respondent = o.Buyer
	}
	d := &Dispute{
		ID:               id,
		OfferID:          offerID,
		Initiator:        initiator,
		Respondent:       respondent,
		Buyer:            o.Buyer,
		Seller:           o.Seller,
		Reason:           reason,
		Status:           StatusOpened,
		CreatedAt:        now,
		EvidenceDeadline: now + e.evidenceWindow,
		VotingDeadline:   now + e.votingWindow,
	}
	if err := e.store(d); err != nil {
		return nil, err
	}
	if err := e.cooldown.Record(e.state, initiator, now); err != nil {
		return nil, err
	}
	e.emit(newDisputeEvent(EventTypeDisputeOpened, d))
	return d.Clone(), nil
}

// ValidateJurors requires three distinct, non-zero identities that are not
// parties to the dispute.
func ValidateJurors(d *Dispute, jurors [JurorCount][20]byte) error {
	seen := make(map[[20]byte]struct{}, JurorCount)
	for _, juror := range jurors {
		if juror == ([20]byte{}) {
			return fmt.Errorf("%w: zero address", exchangeerrors.ErrInvalidJurorSet)
		}
		if d.IsParty(juror) {
			return fmt.Errorf("%w: party cannot sit on the jury", exchangeerrors.ErrInvalidJurorSet)
		}
		if _, dup := seen[juror]; dup {
			return fmt.Errorf("%w: duplicate juror", exchangeerrors.ErrInvalidJurorSet)
		}
		seen[juror] = struct{}{}
	}
	return nil
}

// AssignJurors seats the jury. Admin only.
func (e *Engine) AssignJurors(approvals admin.Approvals, id [32]byte, jurors [JurorCount][20]byte) (*Dispute, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorize(approvals); err != nil {
		return nil, err
	}
	d, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusOpened {
		return nil, invalidStatus(d, "jury already seated")
	}
	if err := ValidateJurors(d, jurors); err != nil {
		return nil, err
	}
	d.Jurors = jurors
	d.Status = StatusJurorsAssigned
	if err := e.store(d); err != nil {
		return nil, err
	}
	e.emit(newJurorsEvent(d))
	return d.Clone(), nil
}

// SubmitEvidence attaches a link from one of the parties while the evidence
// window is open.
func (e *Engine) SubmitEvidence(caller [20]byte, id [32]byte, url string) (*Dispute, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	d, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if !d.IsParty(caller) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	switch d.Status {
	case StatusOpened, StatusJurorsAssigned, StatusVoting:
	default:
		return nil, invalidStatus(d, "evidence closed")
	}
	now := e.now()
	if now >= d.EvidenceDeadline {
		return nil, invalidStatus(d, "evidence window elapsed")
	}
	url, err = common.BoundedText("evidence url", url, MaxEvidenceURLLength)
	if err != nil {
		return nil, err
	}
	if d.EvidenceCount(caller) >= MaxEvidencePerParty {
		return nil, fmt.Errorf("%w: limit %d per party", exchangeerrors.ErrTooManyEvidenceItems, MaxEvidencePerParty)
	}
	item := Evidence{Submitter: caller, URL: url, SubmittedAt: uint64(now)}
	d.Evidence = append(d.Evidence, item)
	if err := e.store(d); err != nil {
		return nil, err
	}
	e.emit(newEvidenceEvent(d, item))
	return d.Clone(), nil
}

// CastVote records juror's single ballot. Voting ends once a side holds a
// majority or every juror has voted.
func (e *Engine) CastVote(juror [20]byte, id [32]byte, forBuyer bool) (*Dispute, *Vote, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	d, err := e.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != StatusJurorsAssigned && d.Status != StatusVoting {
		return nil, nil, invalidStatus(d, "not accepting votes")
	}
	now := e.now()
	if now >= d.VotingDeadline {
		return nil, nil, invalidStatus(d, "voting window elapsed")
	}
	if !d.IsJuror(juror) {
		return nil, nil, invalidStatus(d, "caller is not an assigned juror")
	}
	voted, err := e.state.KVGet(voteKey(id, juror), nil)
	if err != nil {
		return nil, nil, err
	}
	if voted {
		return nil, nil, invalidStatus(d, "juror already voted")
	}
	if d.TotalVotes() >= JurorCount {
		return nil, nil, fmt.Errorf("%w: vote tally", exchangeerrors.ErrMathOverflow)
	}
	vote := &Vote{DisputeID: id, Juror: juror, ForBuyer: forBuyer, CastAt: now}
	if err := e.state.KVPut(voteKey(id, juror), &storedVote{DisputeID: id, Juror: juror, ForBuyer: forBuyer, CastAt: uint64(now)}); err != nil {
		return nil, nil, err
	}
	if forBuyer {
		d.VotesForBuyer++
	} else {
		d.VotesForSeller++
	}
	d.Status = StatusVoting
	if d.VotesForBuyer >= MajorityVotes || d.VotesForSeller >= MajorityVotes || d.TotalVotes() == JurorCount {
		d.Status = StatusVerdictReached
	}
	if err := e.store(d); err != nil {
		return nil, nil, err
	}
	e.emit(newVoteEvent(d, vote))
	if d.Status == StatusVerdictReached {
		e.emit(newDisputeEvent(EventTypeVerdictReached, d))
	}
	return d.Clone(), vote, nil
}

// ExecuteVerdict pays the full escrow to the side the jury favoured. Voting
// must be closed, either by a verdict or by the voting deadline, and the tally
// must not be tied. Admin only.
func (e *Engine) ExecuteVerdict(approvals admin.Approvals, id [32]byte) (*Dispute, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorize(approvals); err != nil {
		return nil, err
	}
	d, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case StatusJurorsAssigned, StatusVoting, StatusVerdictReached:
	default:
		return nil, invalidStatus(d, "no verdict to execute")
	}
	if d.Tied() {
		return nil, fmt.Errorf("%w: %d-%d", exchangeerrors.ErrTiedVote, d.VotesForBuyer, d.VotesForSeller)
	}
	now := e.now()
	if d.Status != StatusVerdictReached && now < d.VotingDeadline {
		return nil, invalidStatus(d, "voting still open")
	}
	winner, outcome := d.Seller, OutcomeSeller
	if d.VotesForBuyer > d.VotesForSeller {
		winner, outcome = d.Buyer, OutcomeBuyer
	}
	if _, err := e.offers.SettleDispute(d.OfferID, winner); err != nil {
		return nil, err
	}
	return e.resolve(d, outcome, now)
}

// ResolveStalemate unwinds a dispute whose voting window closed without a
// winner: each party gets back what it locked. Admin only.
func (e *Engine) ResolveStalemate(approvals admin.Approvals, id [32]byte) (*Dispute, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorize(approvals); err != nil {
		return nil, err
	}
	d, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusResolved {
		return nil, invalidStatus(d, "already resolved")
	}
	now := e.now()
	if now < d.VotingDeadline {
		return nil, invalidStatus(d, "voting still open")
	}
	if !d.Tied() {
		return nil, invalidStatus(d, "verdict available")
	}
	if _, err := e.offers.RefundDispute(d.OfferID); err != nil {
		return nil, err
	}
	return e.resolve(d, OutcomeRefunded, now)
}

func (e *Engine) resolve(d *Dispute, outcome Outcome, now int64) (*Dispute, error) {
	d.Status = StatusResolved
	d.Outcome = outcome
	d.ResolvedAt = now
	if err := e.store(d); err != nil {
		return nil, err
	}
	e.emit(newDisputeEvent(EventTypeDisputeResolved, d))
	return d.Clone(), nil
}
