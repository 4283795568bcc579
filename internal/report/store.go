// Package report provides PostgreSQL-backed storage for abuse reports. Each
// report captures who reported whom, the pairing context, and a snapshot of
// the last few relayed messages for moderator review. The live ban decision
// stays in Redis; this archive exists purely for the review trail.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// validReasons matches the CHECK constraint on the abuse_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// NormalizeReason maps arbitrary client input onto the allowed reason set.
func NormalizeReason(reason string) string {
	if validReasons[reason] {
		return reason
	}
	return "other"
}

// MessageEntry is one message in the conversation snapshot attached to a report.
type MessageEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Report is a single abuse report to be persisted.
type Report struct {
	ReporterID string
	ReportedID string
	PairID     string
	Reason     string
	Messages   []MessageEntry
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an abuse report. The message snapshot is marshalled to
// JSONB; the reason is validated against the allowed set.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if !validReasons[r.Reason] {
		return fmt.Errorf("report: invalid reason %q", r.Reason)
	}

	var messagesJSON []byte
	if len(r.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(r.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, pair_id, reason, messages)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		r.ReporterID, r.ReportedID, r.PairID, r.Reason, messagesJSON)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountAgainst returns the total number of archived reports filed against a
// device id, for moderator tooling.
func (s *Store) CountAgainst(ctx context.Context, reportedID string) (int, error) {
	const query = `SELECT COUNT(*) FROM abuse_reports WHERE reported_id = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, reportedID).Scan(&count); err != nil {
		return 0, fmt.Errorf("report: count: %w", err)
	}
	return count, nil
}
