package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"brokerly/internal/types"
)

func TestEventLogRepo_Insert_FirstDelivery(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewEventLogRepo(db)
	require.NoError(t, err)

	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)

	var storedArgs []any
	db.On("Exec", mock.Anything, insertEventSQL, mock.Anything).
		Run(func(args mock.Arguments) {
			storedArgs = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	first, err := repo.Insert(context.Background(), EventLogEntry{
		Fingerprint: "abc123",
		EventName:   "subscription_created",
		AccountID:   "acct_1",
		Outcome:     "accepted",
		ReceivedAt:  time.Now().UTC(),
	}, payload)
	require.NoError(t, err)
	assert.True(t, first)

	// Stored payload is zstd-compressed, not the raw bytes.
	compressed := storedArgs[4].([]byte)
	assert.NotEqual(t, payload, compressed)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	decoded, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEventLogRepo_Insert_DuplicateDelivery(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewEventLogRepo(db)
	require.NoError(t, err)

	// Fingerprint conflict: DO NOTHING, zero rows.
	db.On("Exec", mock.Anything, insertEventSQL, mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	first, err := repo.Insert(context.Background(), EventLogEntry{
		Fingerprint: "abc123",
		EventName:   "subscription_created",
		Outcome:     "accepted",
		ReceivedAt:  time.Now().UTC(),
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, first)
}

func TestEventLogRepo_Insert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewEventLogRepo(db)
	require.NoError(t, err)

	db.On("Exec", mock.Anything, insertEventSQL, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err = repo.Insert(context.Background(), EventLogEntry{Fingerprint: "x"}, []byte(`{}`))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestEventLogRepo_RecentByAccount(t *testing.T) {
	db := new(mockDBTX)
	repo, err := NewEventLogRepo(db)
	require.NoError(t, err)

	now := time.Now().UTC()
	db.On("Query", mock.Anything, recentEventsSQL, []any{"acct_1", 20}).
		Return(newMockRows([][]any{
			{"fp2", "payment_failed", "acct_1", "accepted", now},
			{"fp1", "subscription_created", "acct_1", "accepted", now.Add(-time.Hour)},
		}), nil)

	entries, err := repo.RecentByAccount(context.Background(), "acct_1", 20)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "payment_failed", entries[0].EventName)
	db.AssertExpectations(t)
}
