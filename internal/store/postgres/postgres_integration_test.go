//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/store"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("payments"),
		tcpostgres.WithUsername("payment_user"),
		tcpostgres.WithPassword("payment_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, container.Terminate(ctx))
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	s := New(pool)

	rec := payment.NewRecord("owner-1", "Dummy", 1099, "USD", payment.StatusAuthorized)
	rec.Append(payment.KindResponse, "", "AUTH-1", "authorized")

	t.Run("Create and Get", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, rec))
		assert.ErrorIs(t, s.Create(ctx, rec), store.ErrExists)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, payment.StatusAuthorized, got.Status)
		assert.Equal(t, int64(1099), got.Amount)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "AUTH-1", got.Messages[0].TransactionReference)
	})

	t.Run("Save appends messages atomically", func(t *testing.T) {
		loaded, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		stale, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)

		loaded.AppendRequest(payment.OperationCapture, "AUTH-1")
		loaded.Append(payment.KindResponse, payment.OperationCapture, "CAP-1", "")
		loaded.Status = payment.StatusCaptured
		loaded.Append(payment.KindSuccess, payment.OperationCapture, "CAP-1", "")
		require.NoError(t, s.Save(ctx, loaded))
		assert.Equal(t, int64(1), loaded.Version)

		stale.Status = payment.StatusVoided
		stale.Append(payment.KindSuccess, payment.OperationVoid, "", "")
		assert.ErrorIs(t, s.Save(ctx, stale), store.ErrConflict)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCaptured, got.Status)
		assert.Equal(t, []payment.MessageKind{
			payment.KindResponse, payment.KindRequest, payment.KindResponse, payment.KindSuccess,
		}, got.Kinds())
		assert.Equal(t, payment.StatusAuthorized, got.Messages[1].PreviousStatus)
	})

	t.Run("ListByOwner", func(t *testing.T) {
		other := payment.NewRecord("owner-2", "Dummy", 5, "EUR", payment.StatusAuthorized)
		require.NoError(t, s.Create(ctx, other))

		list, err := s.ListByOwner(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Messages, 4)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Save(ctx, payment.NewRecord("o", "g", 1, "USD", payment.StatusCreated)), store.ErrNotFound)
	})
}
