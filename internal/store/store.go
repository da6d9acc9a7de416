// Package store defines persistence of transaction records.
package store

import (
	"context"
	"errors"

	"github.com/yourorg/payment-lifecycle/internal/payment"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("payment record not found")
	// ErrConflict is returned by Save when the record changed since it was loaded.
	ErrConflict = errors.New("payment record version conflict")
	// ErrExists is returned by Create for a duplicate ID.
	ErrExists = errors.New("payment record already exists")
)

// Store persists records and their message logs.
type Store interface {
	// Create inserts a new record with its messages.
	Create(ctx context.Context, rec *payment.Record) error
	// Get loads a record by ID. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*payment.Record, error)
	// ListByOwner returns the records of an owner, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*payment.Record, error)
	// Save commits the record's status and any appended messages as one unit.
	// rec.Version must match the stored version; on success it is incremented.
	Save(ctx context.Context, rec *payment.Record) error
}
