// Package synclog records the audit trail of reconciliation runs: one
// SyncSession row per run plus append-only log entries.
package synclog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Log entry levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Action tags used by the reconciliation engine.
const (
	ActionSessionStart = "session_start"
	ActionProcess      = "process"
	ActionTrack        = "track"
	ActionClassify     = "classify"
	ActionUpdate       = "update"
	ActionError        = "error"
	ActionSummary      = "summary"
)

// Store is the persistence surface the logger needs.
type Store interface {
	Create(ctx context.Context, session *models.SyncSession) error
	AddEntry(ctx context.Context, entry *models.SyncLogEntry) error
	Finalize(ctx context.Context, session *models.SyncSession) error
}

// Indexer mirrors log entries into a search backend. Optional.
type Indexer interface {
	IndexLogEntry(ctx context.Context, session *models.SyncSession, entry *models.SyncLogEntry) error
}

// Logger creates and finalizes sync sessions.
type Logger struct {
	store   Store
	indexer Indexer
	now     func() time.Time
}

// New creates a session logger.
func New(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// WithIndexer mirrors entries into a search index, best-effort.
func (l *Logger) WithIndexer(indexer Indexer) *Logger {
	l.indexer = indexer
	return l
}

// WithClock overrides the logger's clock. Test hook.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Stats are the aggregate counters of one run.
type Stats struct {
	OrdersProcessed  int `json:"orders_processed"`
	ShipmentsUpdated int `json:"shipments_updated"`
	ErrorsCount      int `json:"errors_count"`
}

// Entry is one audit record to append to a session.
type Entry struct {
	Level      string
	Action     string
	Message    string
	OrderID    *uint
	ShipmentID *uint
	Details    interface{}
}

// Session is a handle over one running sync session.
type Session struct {
	logger   *Logger
	record   *models.SyncSession
	complete sync.Once
}

// Start creates a new running session.
func (l *Logger) Start(ctx context.Context, runType string) (*Session, error) {
	record := &models.SyncSession{
		ID:        uuid.New(),
		RunType:   runType,
		Status:    models.SyncStatusRunning,
		StartedAt: l.now().UTC(),
	}
	if err := l.store.Create(ctx, record); err != nil {
		return nil, err
	}

	s := &Session{logger: l, record: record}
	s.Log(ctx, Entry{
		Level:   LevelInfo,
		Action:  ActionSessionStart,
		Message: fmt.Sprintf("sync session started (%s)", runType),
	})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.record.ID
}

// Log appends one entry. A failing audit write never aborts the run; it
// is reported on the process log instead.
func (s *Session) Log(ctx context.Context, e Entry) {
	record := &models.SyncLogEntry{
		SessionID:  s.record.ID,
		Level:      e.Level,
		Action:     e.Action,
		Message:    e.Message,
		OrderID:    e.OrderID,
		ShipmentID: e.ShipmentID,
	}
	if e.Details != nil {
		if data, err := json.Marshal(e.Details); err == nil {
			record.Details = data
		}
	}

	if err := s.logger.store.AddEntry(ctx, record); err != nil {
		log.Warn().Err(err).
			Str("session_id", s.record.ID.String()).
			Str("action", e.Action).
			Msg("Failed to persist sync log entry")
		return
	}

	if s.logger.indexer != nil {
		if err := s.logger.indexer.IndexLogEntry(ctx, s.record, record); err != nil {
			log.Warn().Err(err).
				Str("session_id", s.record.ID.String()).
				Msg("Failed to index sync log entry")
		}
	}
}

// Complete finalizes the session exactly once: derives the terminal
// status from the counters, records the duration and writes one
// human-readable summary entry. Safe to call from a recover path.
func (s *Session) Complete(ctx context.Context, stats Stats) *models.SyncSession {
	s.complete.Do(func() {
		finishedAt := s.logger.now().UTC()
		s.record.FinishedAt = &finishedAt
		s.record.OrdersProcessed = stats.OrdersProcessed
		s.record.ShipmentsUpdated = stats.ShipmentsUpdated
		s.record.ErrorsCount = stats.ErrorsCount
		s.record.Status = deriveStatus(stats)

		duration := finishedAt.Sub(s.record.StartedAt)
		s.Log(ctx, Entry{
			Level:  LevelInfo,
			Action: ActionSummary,
			Message: fmt.Sprintf(
				"sync finished in %s: %d orders processed, %d shipments updated, %d errors",
				duration.Round(time.Millisecond),
				stats.OrdersProcessed, stats.ShipmentsUpdated, stats.ErrorsCount),
			Details: stats,
		})

		if err := s.logger.store.Finalize(ctx, s.record); err != nil {
			log.Error().Err(err).
				Str("session_id", s.record.ID.String()).
				Msg("Failed to finalize sync session")
		}
	})
	return s.record
}

func deriveStatus(stats Stats) string {
	switch {
	case stats.ErrorsCount > 0 && stats.OrdersProcessed == 0:
		return models.SyncStatusFailed
	case stats.ErrorsCount > 0:
		return models.SyncStatusCompletedWithErrors
	default:
		return models.SyncStatusCompleted
	}
}
