package repository

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"streetlight-server/internal/modules/airquality/types"
)

//go:embed sql/insert-event.sql
var insertEventSQL string

//go:embed sql/get-recent-events.sql
var getRecentEventsSQL string

//go:embed sql/get-events-count.sql
var getEventsCountSQL string

//go:embed sql/prune-events.sql
var pruneEventsSQL string

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultRetention caps the journal when no retention is configured.
const DefaultRetention = 500

type JournalRepository interface {
	RecordEvent(ev types.IngestEvent) error
	GetRecentEvents(limit int) ([]types.IngestEvent, error)
	GetEventsCount() (int, error)
}

type repositoryImpl struct {
	db        *sql.DB
	retention int
	// pruneEvery amortizes the retention delete over several inserts.
	pruneEvery int
	inserted   int
}

func NewRepository(db *sql.DB, retention int) JournalRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	pruneEvery := retention / 10
	if pruneEvery < 1 {
		pruneEvery = 1
	}
	return &repositoryImpl{db: db, retention: retention, pruneEvery: pruneEvery}
}

// RecordEvent stores ev, assigning an ID and timestamp when missing. It is
// called from a single writer goroutine (see AsyncJournal).
func (r *repositoryImpl) RecordEvent(ev types.IngestEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	tsStr := ev.Time.UTC().Format(tsLayout)

	var value any
	if ev.Value != nil {
		value = *ev.Value
	}

	if _, err := r.db.Exec(insertEventSQL, ev.ID, tsStr, ev.Kind, ev.Detail, value); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	r.inserted++
	if r.inserted%r.pruneEvery == 0 {
		if _, err := r.db.Exec(pruneEventsSQL, r.retention); err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
	}
	return nil
}

func (r *repositoryImpl) GetRecentEvents(limit int) ([]types.IngestEvent, error) {
	rows, err := r.db.Query(getRecentEventsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close events rows", "error", err)
		}
	}()

	out := []types.IngestEvent{}
	for rows.Next() {
		var ev types.IngestEvent
		var ts string
		var value sql.NullInt64
		if err := rows.Scan(&ev.ID, &ts, &ev.Kind, &ev.Detail, &value); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		ev.Time = t
		if value.Valid {
			v := int(value.Int64)
			ev.Value = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetEventsCount() (int, error) {
	var n int
	err := r.db.QueryRow(getEventsCountSQL).Scan(&n)
	return n, err
}
