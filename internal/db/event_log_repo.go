package db

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"brokerly/internal/types"
)

// EventLogEntry is one received webhook delivery, recorded for audit and
// duplicate detection. Fingerprint is the SHA-256 of the raw body, so a
// byte-identical redelivery collides with the original row.
type EventLogEntry struct {
	Fingerprint string
	EventName   string
	AccountID   string // empty when identity resolution failed
	Outcome     string
	ReceivedAt  time.Time
}

// EventLogRepo appends webhook deliveries to the audit log. Raw payloads are
// zstd-compressed before storage; they are written once and only read back
// during incident investigation.
type EventLogRepo struct {
	db      DBTX
	encoder *zstd.Encoder
}

// NewEventLogRepo builds the repo with a shared zstd encoder. EncodeAll on a
// nil-writer encoder is safe for concurrent use.
func NewEventLogRepo(db DBTX) (*EventLogRepo, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &EventLogRepo{db: db, encoder: enc}, nil
}

const insertEventSQL = `INSERT INTO webhook_events
	 (fingerprint, event_name, account_id, outcome, payload_zst, received_at)
	 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	 ON CONFLICT (fingerprint) DO NOTHING`

// Insert records a delivery and reports whether this is the first time the
// payload has been seen. A redelivered body hits the fingerprint conflict and
// returns firstDelivery=false without error.
func (r *EventLogRepo) Insert(ctx context.Context, entry EventLogEntry, rawPayload []byte) (firstDelivery bool, err error) {
	compressed := r.encoder.EncodeAll(rawPayload, nil)

	tag, err := r.db.Exec(ctx, insertEventSQL,
		entry.Fingerprint,
		entry.EventName,
		entry.AccountID,
		entry.Outcome,
		compressed,
		entry.ReceivedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}

	return tag.RowsAffected() == 1, nil
}

const recentEventsSQL = `SELECT fingerprint, event_name, COALESCE(account_id, ''), outcome, received_at
	 FROM webhook_events WHERE account_id = $1
	 ORDER BY received_at DESC LIMIT $2`

// RecentByAccount lists the latest deliveries for an account, newest first.
// Serves the internal read API for support tooling.
func (r *EventLogRepo) RecentByAccount(ctx context.Context, accountID string, limit int) ([]EventLogEntry, error) {
	rows, err := r.db.Query(ctx, recentEventsSQL, accountID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list webhook events", err)
	}
	defer rows.Close()

	var entries []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		if err := rows.Scan(&e.Fingerprint, &e.EventName, &e.AccountID, &e.Outcome, &e.ReceivedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan webhook event", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate webhook events", err)
	}

	return entries, nil
}
