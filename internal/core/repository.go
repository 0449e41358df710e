package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("record not found")

// ProductKey is the natural identity of a product within a client.
type ProductKey struct {
	ClientID  uuid.UUID
	ProductID string
}

// TransactionKey is the natural identity of an order line. Two uploads
// of the same order line resolve to the same key, which is what makes
// re-imports idempotent.
type TransactionKey struct {
	ProductRef     uuid.UUID
	OrderID        string
	ShipToLocation string
	DateSubmitted  time.Time
}

// Repository is the persistence boundary. Implementations must make
// UpsertProduct and UpsertTransaction atomic per call; the processor
// supplies ordering and per-client serialization above this interface.
type Repository interface {
	FindProductByNaturalKey(ctx context.Context, key ProductKey) (*Product, error)
	UpsertProduct(ctx context.Context, product *Product) error
	AppendStockHistorySnapshot(ctx context.Context, snapshot StockSnapshot) error

	FindTransactionByNaturalKey(ctx context.Context, key TransactionKey) (*Transaction, error)
	UpsertTransaction(ctx context.Context, txn *Transaction) error

	CreateImportBatch(ctx context.Context, batch *ImportBatch) error
	UpdateImportBatch(ctx context.Context, batch *ImportBatch) error
	FindImportBatch(ctx context.Context, id uuid.UUID) (*ImportBatch, error)
	CompletedChecksums(ctx context.Context, clientID uuid.UUID) ([]string, error)
}
