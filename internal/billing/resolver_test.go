package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerly/internal/types"
)

// fakeDirectory is a hand-rolled AccountDirectory for resolver and processor
// tests. Unset maps behave as empty directories.
type fakeDirectory struct {
	byID    map[string]*types.Account
	byEmail map[string]*types.Account
	idErr   error
	mailErr error
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (*types.Account, error) {
	if d.idErr != nil {
		return nil, d.idErr
	}
	if acct, ok := d.byID[id]; ok {
		return acct, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*types.Account, error) {
	if d.mailErr != nil {
		return nil, d.mailErr
	}
	if acct, ok := d.byEmail[email]; ok {
		return acct, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
}

func TestResolver_CorrelationIDWins(t *testing.T) {
	// Correlation ID and email point at different accounts; the ID must win.
	dir := &fakeDirectory{
		byID:    map[string]*types.Account{"acct_correlated": {ID: "acct_correlated"}},
		byEmail: map[string]*types.Account{"shared@example.com": {ID: "acct_by_email"}},
	}
	r := NewResolver(dir, nil)

	id, err := r.Resolve(context.Background(), &WebhookEvent{
		CorrelationUserID: "acct_correlated",
		BillingEmail:      "shared@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_correlated", id)
}

func TestResolver_EmailFallback(t *testing.T) {
	dir := &fakeDirectory{
		byEmail: map[string]*types.Account{"agent@brokerage.example": {ID: "acct_1"}},
	}
	r := NewResolver(dir, nil)

	id, err := r.Resolve(context.Background(), &WebhookEvent{
		BillingEmail: "agent@brokerage.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_1", id)
}

func TestResolver_StaleCorrelationIDFallsBackToEmail(t *testing.T) {
	dir := &fakeDirectory{
		byEmail: map[string]*types.Account{"agent@brokerage.example": {ID: "acct_1"}},
	}
	r := NewResolver(dir, nil)

	id, err := r.Resolve(context.Background(), &WebhookEvent{
		CorrelationUserID: "acct_deleted",
		BillingEmail:      "agent@brokerage.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_1", id)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(&fakeDirectory{}, nil)

	_, err := r.Resolve(context.Background(), &WebhookEvent{
		CorrelationUserID: "acct_ghost",
		BillingEmail:      "ghost@example.com",
	})
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestResolver_NothingToResolveWith(t *testing.T) {
	r := NewResolver(&fakeDirectory{}, nil)

	_, err := r.Resolve(context.Background(), &WebhookEvent{})
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestResolver_InfrastructureFailureSurfaces(t *testing.T) {
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "connection refused", errors.New("dial tcp"))
	r := NewResolver(&fakeDirectory{idErr: dbErr}, nil)

	_, err := r.Resolve(context.Background(), &WebhookEvent{CorrelationUserID: "acct_1"})
	require.Error(t, err)
	assert.False(t, isNotFound(err), "infrastructure failures must not look like NotFound")
}
