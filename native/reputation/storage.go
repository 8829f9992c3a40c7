package reputation

import (
	"errors"
	"fmt"
	"time"

	exchangeerrors "p2pexchange/core/errors"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	recordPrefix = []byte("reputation/record/")

	errLedgerUnavailable = errors.New("reputation: ledger not initialised")
)

func recordKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", recordPrefix, user))
}

// Ledger persists one reputation record per user.
type Ledger struct {
	store storage
	nowFn func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock used for record timestamps. Primarily
// leveraged in tests to provide deterministic timestamps.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Get returns the record for user and whether it exists.
func (l *Ledger) Get(user [20]byte) (*Record, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errLedgerUnavailable
	}
	var stored storedRecord
	ok, err := l.store.KVGet(recordKey(user), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toRecord(), true, nil
}

func (l *Ledger) put(r *Record) error {
	return l.store.KVPut(recordKey(r.User), newStoredRecord(r))
}

func (l *Ledger) fresh(user [20]byte) *Record {
	now := l.now()
	return &Record{User: user, Rating: InitialRating, CreatedAt: now, LastUpdated: now}
}

// Create stores a fresh record for user. It fails if one already exists.
func (l *Ledger) Create(user [20]byte) (*Record, error) {
	if user == ([20]byte{}) {
		return nil, exchangeerrors.ErrUnauthorized
	}
	_, exists, err := l.Get(user)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: reputation record", exchangeerrors.ErrAlreadyInitialized)
	}
	record := l.fresh(user)
	if err := l.put(record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Apply folds outcome into user's record, creating it on first use. The
// boolean reports whether the record was created.
func (l *Ledger) Apply(user [20]byte, outcome Outcome) (*Record, bool, error) {
	if user == ([20]byte{}) {
		return nil, false, exchangeerrors.ErrUnauthorized
	}
	record, exists, err := l.Get(user)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		record = l.fresh(user)
	}
	record.Apply(outcome)
	record.LastUpdated = l.now()
	if err := l.put(record); err != nil {
		return nil, false, err
	}
	return record.Clone(), !exists, nil
}
