// Package postgres stores transaction records in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for goose
	"github.com/pressly/goose/v3"

	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectPayment = `SELECT id, owner_id, gateway, amount, currency, status, version, created_at, updated_at FROM payments`

const insertMessage = `INSERT INTO payment_messages
	(id, payment_id, seq, kind, operation, transaction_reference, text, previous_status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

func (s *Store) Create(ctx context.Context, rec *payment.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (id, owner_id, gateway, amount, currency, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.OwnerID, rec.Gateway, rec.Amount, rec.Currency, string(rec.Status), rec.Version, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if err := insertMessages(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := scanPayment(s.pool.QueryRow(ctx, selectPayment+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if err := s.loadMessages(ctx, []*payment.Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*payment.Record, error) {
	rows, err := s.pool.Query(ctx, selectPayment+` WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*payment.Record
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadMessages(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save updates the status under a version check and inserts the messages that
// are not stored yet, in one transaction.
func (s *Store) Save(ctx context.Context, rec *payment.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE payments SET status = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4`,
		string(rec.Status), rec.UpdatedAt, rec.ID, rec.Version)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	if err := insertMessages(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	rec.Version++
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, rec *payment.Record) error {
	if len(rec.Messages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, m := range rec.Messages {
		batch.Queue(insertMessage, m.ID, rec.ID, i, string(m.Kind), string(m.Operation),
			m.TransactionReference, m.Text, string(m.PreviousStatus), m.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*payment.Record, error) {
	var rec payment.Record
	var status string
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Gateway, &rec.Amount, &rec.Currency,
		&status, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = payment.Status(status)
	return &rec, nil
}

func (s *Store) loadMessages(ctx context.Context, recs []*payment.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[string]*payment.Record, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payment_id, id, kind, operation, transaction_reference, text, previous_status, created_at
		 FROM payment_messages WHERE payment_id = ANY($1) ORDER BY payment_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var paymentID, kind, op, prev string
		var m payment.Message
		if err := rows.Scan(&paymentID, &m.ID, &kind, &op, &m.TransactionReference, &m.Text, &prev, &m.CreatedAt); err != nil {
			return err
		}
		m.Kind = payment.MessageKind(kind)
		m.Operation = payment.Operation(op)
		m.PreviousStatus = payment.Status(prev)
		r := byID[paymentID]
		r.Messages = append(r.Messages, m)
	}
	return rows.Err()
}
