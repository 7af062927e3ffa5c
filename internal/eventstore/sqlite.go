package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const eventColumns = "id, event_id, resource, generation, class, message, duration_ns, at_ns, metadata"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens dbPath. Use ":memory:" for a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetch_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		resource TEXT NOT NULL,
		generation INTEGER NOT NULL,
		class TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL,
		at_ns INTEGER NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_fetch_events_resource ON fetch_events(resource, id);
	CREATE INDEX IF NOT EXISTS idx_fetch_events_at ON fetch_events(at_ns);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return wrap(ErrEventAppendFailed, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO fetch_events (event_id, resource, generation, class, message, duration_ns, at_ns, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.EventID, e.Resource, int64(e.Generation), e.Class, e.Message, int64(e.Duration), e.At.UnixNano(), metadata,
	)
	if err != nil {
		return wrap(ErrEventAppendFailed, err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, resource string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if resource == "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+eventColumns+" FROM fetch_events ORDER BY id DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+eventColumns+" FROM fetch_events WHERE resource = ? ORDER BY id DESC LIMIT ?", resource, limit)
	}
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM fetch_events WHERE at_ns >= ? AND at_ns <= ? ORDER BY id",
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM fetch_events WHERE at_ns < ?", before.UnixNano())
	if err != nil {
		return 0, wrap(ErrEventPruneFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(ErrEventPruneFailed, err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := []Event{}
	for rows.Next() {
		var (
			e          Event
			generation int64
			durationNS int64
			atNS       int64
			metadata   []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Resource, &generation, &e.Class, &e.Message, &durationNS, &atNS, &metadata); err != nil {
			return nil, wrap(ErrEventScanFailed, err)
		}
		e.Generation = uint64(generation)
		e.Duration = time.Duration(durationNS)
		e.At = time.Unix(0, atNS)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, wrap(ErrEventScanFailed, err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventScanFailed, err)
	}
	return events, nil
}

// Close closes the database connection. Later calls return ErrStoreClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
