package admin

import (
	"errors"
	"fmt"
	"time"

	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/core/types"
)

var errNilState = errors.New("admin engine: state not configured")

var registryKey = []byte("admin/registry")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine owns the admin registry: who may perform privileged operations and
// how many of them must sign.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an admin engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// Get returns the registry and whether it has been initialised.
func (e *Engine) Get() (*Registry, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored storedRegistry
	ok, err := e.state.KVGet(registryKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toRegistry(), true, nil
}

func (e *Engine) put(r *Registry) error {
	return e.state.KVPut(registryKey, newStoredRegistry(r))
}

// Initialize creates the registry with authority as primary. It succeeds
// exactly once.
func (e *Engine) Initialize(authority [20]byte) (*Registry, error) {
	if authority == ([20]byte{}) {
		return nil, fmt.Errorf("%w: zero address", exchangeerrors.ErrInvalidAuthority)
	}
	_, exists, err := e.Get()
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, exchangeerrors.ErrAlreadyInitialized
	}
	now := e.now()
	registry := &Registry{
		Primary:            authority,
		RequiredSignatures: 1,
		LastRewardUpdate:   now,
		InitializedAt:      now,
	}
	if err := e.put(registry); err != nil {
		return nil, err
	}
	e.emit(newRegistryEvent(EventTypeInitialized, registry))
	return registry.Clone(), nil
}

// Authorize verifies that approvals satisfy the registry: the primary must
// have signed and at least RequiredSignatures distinct authorities must be
// present.
func (e *Engine) Authorize(approvals Approvals) (*Registry, error) {
	registry, ok, err := e.Get()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, exchangeerrors.ErrNotInitialized
	}
	if !approvals.Contains(registry.Primary) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	distinct := make(map[[20]byte]struct{}, len(approvals))
	for _, signer := range approvals {
		if registry.IsAuthority(signer) {
			distinct[signer] = struct{}{}
		}
	}
	if len(distinct) < int(registry.RequiredSignatures) {
		return nil, fmt.Errorf("%w: have %d, need %d", exchangeerrors.ErrInsufficientSignatures, len(distinct), registry.RequiredSignatures)
	}
	return registry, nil
}

// UpdateAuthorities replaces the secondary set and signature threshold.
func (e *Engine) UpdateAuthorities(approvals Approvals, secondary [][20]byte, required uint8) (*Registry, error) {
	registry, err := e.Authorize(approvals)
	if err != nil {
		return nil, err
	}
	if err := ValidateAuthorities(registry.Primary, secondary, required); err != nil {
		return nil, err
	}
	registry.Secondary = append([][20]byte(nil), secondary...)
	registry.RequiredSignatures = required
	if err := e.put(registry); err != nil {
		return nil, err
	}
	e.emit(newRegistryEvent(EventTypeAuthoritiesUpdated, registry))
	return registry.Clone(), nil
}

// TouchRewards records ts as the last reward update. It is a no-op before
// initialisation.
func (e *Engine) TouchRewards(ts int64) error {
	registry, ok, err := e.Get()
	if err != nil || !ok {
		return err
	}
	if ts <= registry.LastRewardUpdate {
		return nil
	}
	registry.LastRewardUpdate = ts
	return e.put(registry)
}
