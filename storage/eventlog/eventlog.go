// Package eventlog keeps a queryable history of committed ledger events in
// SQLite.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"p2pexchange/core/events"
	"p2pexchange/core/types"
)

const maxQueryLimit = 500

// Record is one stored event.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	OfferID    string            `json:"offerId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Type    string
	OfferID string
	After   int64
	Limit   int
}

// Store appends events as they are emitted and serves them back in order.
type Store struct {
	db     *sql.DB
	nowFn  func() time.Time
	logger *slog.Logger
}

// Open opens or creates the event log at path. ":memory:" gives a private
// in-memory log.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("eventlog: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway and an in-memory database only exists
	// on the connection that created it.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, nowFn: time.Now, logger: slog.Default()}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            offer_id TEXT,
            payload TEXT NOT NULL,
            recorded_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
		`CREATE INDEX IF NOT EXISTS events_offer ON events(offer_id);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventlog: init: %w", err)
		}
	}
	return nil
}

// SetLogger sets the logger used to report write failures.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Emit implements events.Emitter. Write failures are logged; the ledger
// state is authoritative and the log can be rebuilt from it.
func (s *Store) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	if _, err := s.Append(context.Background(), payload); err != nil {
		s.logger.Error("eventlog append failed", slog.String("type", payload.Type), slog.Any("error", err))
	}
}

// Append stores evt and returns its sequence number.
func (s *Store) Append(ctx context.Context, evt *types.Event) (int64, error) {
	encoded, err := json.Marshal(evt.Attributes)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(type, offer_id, payload, recorded_at) VALUES(?, ?, ?, ?)`,
		evt.Type, nullable(subject(evt)), string(encoded), s.nowFn().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("eventlog: insert: %w", err)
	}
	return res.LastInsertId()
}

// Query returns events matching filter in sequence order.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	var (
		clauses = []string{"sequence > ?"}
		args    = []any{filter.After}
	)
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.OfferID != "" {
		clauses = append(clauses, "offer_id = ?")
		args = append(args, strings.ToLower(filter.OfferID))
	}
	args = append(args, limit)
	query := `SELECT sequence, type, offer_id, payload, recorded_at FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY sequence ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			offerID  sql.NullString
			payload  string
			recorded int64
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &offerID, &payload, &recorded); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode %d: %w", rec.Sequence, err)
		}
		rec.OfferID = offerID.String
		rec.RecordedAt = time.UnixMilli(recorded).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// subject extracts the offer an event concerns, if any.
func subject(evt *types.Event) string {
	if id := evt.Attributes["offerId"]; id != "" {
		return strings.ToLower(id)
	}
	if strings.HasPrefix(evt.Type, "offer.") {
		return strings.ToLower(evt.Attributes["id"])
	}
	return ""
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
