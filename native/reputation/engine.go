package reputation

import (
	"errors"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
	"p2pexchange/native/admin"
)

var errNilAuthorizer = errors.New("reputation: authorizer not configured")

type authorizer interface {
	Authorize(approvals admin.Approvals) (*admin.Registry, error)
}

// Engine wires higher-level operations against the ledger abstraction. The
// public update path is admin gated; Record is the side-effect path used by
// the exchange when trades settle.
type Engine struct {
	ledger  *Ledger
	auth    authorizer
	emitter events.Emitter
}

// NewEngine constructs an engine backed by the provided storage backend.
func NewEngine(store storage) *Engine {
	engine := &Engine{emitter: events.NoopEmitter{}}
	if store != nil {
		engine.ledger = NewLedger(store)
	}
	return engine
}

// SetNowFunc overrides the wall clock used by the underlying ledger.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || e.ledger == nil {
		return
	}
	e.ledger.SetNowFunc(now)
}

// SetAuthorizer configures the admin registry used by Update.
func (e *Engine) SetAuthorizer(auth authorizer) { e.auth = auth }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Get returns user's record.
func (e *Engine) Get(user [20]byte) (*Record, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errLedgerUnavailable
	}
	return e.ledger.Get(user)
}

// Create initialises user's record with the starting rating.
func (e *Engine) Create(user [20]byte) (*Record, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerUnavailable
	}
	record, err := e.ledger.Create(user)
	if err != nil {
		return nil, err
	}
	e.emit(newRecordEvent(EventTypeReputationCreated, record))
	return record, nil
}

// Update applies an admin-supplied outcome to user's record.
func (e *Engine) Update(approvals admin.Approvals, user [20]byte, outcome Outcome) (*Record, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerUnavailable
	}
	if e.auth == nil {
		return nil, errNilAuthorizer
	}
	if _, err := e.auth.Authorize(approvals); err != nil {
		return nil, err
	}
	return e.Record(user, outcome)
}

// Record applies outcome without an authorization check. Callers are the
// settlement paths that already established the outcome.
func (e *Engine) Record(user [20]byte, outcome Outcome) (*Record, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerUnavailable
	}
	record, created, err := e.ledger.Apply(user, outcome)
	if err != nil {
		return nil, err
	}
	if created {
		e.emit(newRecordEvent(EventTypeReputationCreated, record))
	}
	e.emit(newRecordEvent(EventTypeReputationUpdated, record))
	return record, nil
}
