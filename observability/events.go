// Package observability persists scan history to SQLite: one row per job
// lifecycle transition plus service liveness heartbeats. Writes are
// asynchronous and never block the scan path; a broken history store
// degrades to slog warnings.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/prowl/idgen"
	"github.com/hazyhaar/prowl/provider"
	"github.com/hazyhaar/prowl/scan"
)

// Event is a single scan history record.
type Event struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"` // "job_submitted" or "job_finished"
	JobID          string    `json:"job_id"`
	Username       string    `json:"username"`
	ProvidersCount int       `json:"providers_count"`
	State          string    `json:"state,omitempty"`
	Tally          string    `json:"tally,omitempty"` // JSON status counts, finished events only
	CreatedAt      time.Time `json:"created_at"`
}

// EventFilter controls query results from the scan history.
type EventFilter struct {
	JobID     string
	Username  string
	EventType string
	Since     *time.Time
	Limit     int // default 100
}

// EventLog records scan lifecycle events asynchronously. It satisfies the
// engine's event sink interface, so wiring it in costs the scan path one
// channel send per transition.
type EventLog struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Event
	stop  chan struct{}
	done  chan struct{}

	mu   sync.Mutex
	jobs map[string]jobMeta
}

type jobMeta struct {
	username       string
	providersCount int
}

// EventLogOption configures an EventLog.
type EventLogOption func(*EventLog)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLogOption {
	return func(l *EventLog) { l.newID = gen }
}

// NewEventLog creates an async scan history writer. Recommended
// bufferSize: 256.
func NewEventLog(db *sql.DB, bufferSize int, opts ...EventLogOption) *EventLog {
	l := &EventLog{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		ch:    make(chan *Event, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		jobs:  make(map[string]jobMeta),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// JobSubmitted records a job entering the system.
func (l *EventLog) JobSubmitted(jobID, username string, providers int) {
	l.mu.Lock()
	l.jobs[jobID] = jobMeta{username: username, providersCount: providers}
	l.mu.Unlock()

	l.enqueue(&Event{
		EventID:        l.newID(),
		EventType:      "job_submitted",
		JobID:          jobID,
		Username:       username,
		ProvidersCount: providers,
		CreatedAt:      time.Now(),
	})
}

// JobFinished records a job reaching a terminal state with its status tally.
func (l *EventLog) JobFinished(jobID string, state scan.State, tally map[provider.Status]int) {
	l.mu.Lock()
	meta := l.jobs[jobID]
	delete(l.jobs, jobID)
	l.mu.Unlock()

	var tallyJSON string
	if b, err := json.Marshal(tally); err == nil {
		tallyJSON = string(b)
	}
	l.enqueue(&Event{
		EventID:        l.newID(),
		EventType:      "job_finished",
		JobID:          jobID,
		Username:       meta.username,
		ProvidersCount: meta.providersCount,
		State:          string(state),
		Tally:          tallyJSON,
		CreatedAt:      time.Now(),
	})
}

// enqueue hands the event to the flush goroutine. Falls back to a
// synchronous insert when the buffer is full rather than dropping history.
func (l *EventLog) enqueue(e *Event) {
	select {
	case l.ch <- e:
	default:
		slog.Warn("observability: event buffer full, sync fallback", "job_id", e.JobID)
		if err := l.insert(context.Background(), e); err != nil {
			slog.Error("observability: sync fallback failed", "error", err)
		}
	}
}

// Query retrieves scan events matching the filter, newest first.
func (l *EventLog) Query(ctx context.Context, f *EventFilter) ([]*Event, error) {
	q := `SELECT event_id, event_type, job_id, username, providers_count,
		state, tally, created_at
		FROM scan_events WHERE 1=1`
	var args []any

	if f.JobID != "" {
		q += " AND job_id = ?"
		args = append(args, f.JobID)
	}
	if f.Username != "" {
		q += " AND username = ?"
		args = append(args, f.Username)
	}
	if f.EventType != "" {
		q += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if f.Since != nil {
		q += " AND created_at >= ?"
		args = append(args, f.Since.Unix())
	}

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY created_at DESC, event_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query scan events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var ts int64
		var state, tally sql.NullString
		if err := rows.Scan(&e.EventID, &e.EventType, &e.JobID, &e.Username,
			&e.ProvidersCount, &state, &tally, &ts); err != nil {
			return nil, fmt.Errorf("observability: scan event row: %w", err)
		}
		e.State = state.String
		e.Tally = tally.String
		e.CreatedAt = time.Unix(ts, 0)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Cleanup deletes scan events older than retentionDays. Optionally runs
// VACUUM afterwards to reclaim the space.
func (l *EventLog) Cleanup(ctx context.Context, retentionDays int, vacuum bool) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := l.db.ExecContext(ctx, "DELETE FROM scan_events WHERE created_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup scan events: %w", err)
	}
	n, _ := result.RowsAffected()
	if vacuum {
		if _, err := l.db.ExecContext(ctx, "VACUUM"); err != nil {
			return n, fmt.Errorf("observability: vacuum: %w", err)
		}
	}
	return n, nil
}

// Close drains the buffer and stops the flush goroutine.
func (l *EventLog) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *EventLog) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*Event, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("observability: begin tx", "error", err)
			return
		}
		stmt, err := tx.PrepareContext(ctx, insertEventSQL)
		if err != nil {
			tx.Rollback()
			slog.Error("observability: prepare", "error", err)
			return
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx,
				e.EventID, e.EventType, e.JobID, e.Username, e.ProvidersCount,
				e.State, e.Tally, e.CreatedAt.Unix(),
			); err != nil {
				slog.Error("observability: insert event", "error", err, "event_id", e.EventID)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("observability: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertEventSQL = `INSERT INTO scan_events
	(event_id, event_type, job_id, username, providers_count, state, tally, created_at)
	VALUES (?,?,?,?,?,?,?,?)`

func (l *EventLog) insert(ctx context.Context, e *Event) error {
	_, err := l.db.ExecContext(ctx, insertEventSQL,
		e.EventID, e.EventType, e.JobID, e.Username, e.ProvidersCount,
		e.State, e.Tally, e.CreatedAt.Unix())
	return err
}
