// Package core implements the import engine: row cleaning, validation,
// batch processing with duplicate guards, and the service facade the
// HTTP layer calls. It has no transport dependencies and talks to
// storage only through the Repository interface.
package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/tabular"
)

// BatchStatus tracks an import batch through its lifecycle. Transitions
// are monotonic: pending → processing → completed or failed, and a
// terminal status never changes.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ImportBatch is the audit record for one upload. SourceHeaders and
// MappedHeaders preserve what the file looked like and how it was
// interpreted, so a support case can be reconstructed without the
// original file.
type ImportBatch struct {
	ID             uuid.UUID          `json:"id"`
	ClientID       uuid.UUID          `json:"clientId"`
	ImportType     tabular.ImportType `json:"importType"`
	Filename       string             `json:"filename"`
	FileChecksum   string             `json:"fileChecksum"`
	Status         BatchStatus        `json:"status"`
	RowCount       int                `json:"rowCount"`
	ProcessedCount int                `json:"processedCount"`
	ErrorCount     int                `json:"errorCount"`
	Findings       []Finding          `json:"findings,omitempty"`
	SourceHeaders  []string           `json:"sourceHeaders,omitempty"`
	MappedHeaders  []string           `json:"mappedHeaders,omitempty"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Severity splits findings into blocking errors and advisory warnings. A
// row with any error is excluded from persistence; warnings ride along.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation or integrity observation, tied to a
// 1-indexed data row when row-specific.
type Finding struct {
	Row      int      `json:"row,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ItemType is the product lifecycle category.
type ItemType string

const (
	ItemEvergreen ItemType = "evergreen"
	ItemSeasonal  ItemType = "seasonal"
	ItemEvent     ItemType = "event"
	ItemCompleted ItemType = "completed"
)

// Product is the persisted inventory record, identified per client by
// its external ProductID. Orphans are placeholders created when an order
// references a SKU the inventory has never seen.
type Product struct {
	ID                uuid.UUID      `json:"id"`
	ClientID          uuid.UUID      `json:"clientId"`
	ProductID         string         `json:"productId"`
	Name              string         `json:"name"`
	ItemType          ItemType       `json:"itemType"`
	PackSize          int            `json:"packSize"`
	CurrentStockPacks int            `json:"currentStockPacks"`
	CurrentStockUnits int            `json:"currentStockUnits"`
	NotificationPoint int            `json:"notificationPoint"`
	IsOrphan          bool           `json:"isOrphan"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// StockSnapshot is one point-in-time stock level appended to the history
// trail whenever an import touches a product.
type StockSnapshot struct {
	ID         uuid.UUID `json:"id"`
	ProductRef uuid.UUID `json:"productRef"`
	Packs      int       `json:"packs"`
	Units      int       `json:"units"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Transaction is one order line. The natural key is (product, order id,
// ship-to location, date submitted); quantity changes against the same
// key update in place rather than inserting a second row.
type Transaction struct {
	ID             uuid.UUID `json:"id"`
	ProductRef     uuid.UUID `json:"productRef"`
	OrderID        string    `json:"orderId"`
	QuantityPacks  int       `json:"quantityPacks"`
	QuantityUnits  int       `json:"quantityUnits"`
	UnitPrice      *float64  `json:"unitPrice,omitempty"`
	TotalPrice     *float64  `json:"totalPrice,omitempty"`
	OrderStatus    string    `json:"orderStatus,omitempty"`
	ShipToLocation string    `json:"shipToLocation,omitempty"`
	ShipToCompany  string    `json:"shipToCompany,omitempty"`
	ContactName    string    `json:"contactName,omitempty"`
	ContactEmail   string    `json:"contactEmail,omitempty"`
	DateSubmitted  time.Time `json:"dateSubmitted"`
	ImportBatchID  uuid.UUID `json:"importBatchId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DuplicateStrategy decides what happens to rows after the first
// occurrence of a shared key within one file.
type DuplicateStrategy string

const (
	// DuplicateSkip drops repeat rows.
	DuplicateSkip DuplicateStrategy = "skip"
	// DuplicateOverwrite lets each repeat replace its predecessor.
	DuplicateOverwrite DuplicateStrategy = "overwrite"
	// DuplicateError records an error finding on each repeat row.
	DuplicateError DuplicateStrategy = "error"
	// DuplicateMerge folds repeat rows into the first occurrence,
	// filling only cells the first left empty.
	DuplicateMerge DuplicateStrategy = "merge"
)

func (s DuplicateStrategy) Valid() bool {
	switch s {
	case DuplicateSkip, DuplicateOverwrite, DuplicateError, DuplicateMerge:
		return true
	}
	return false
}

// DuplicateGroup reports the rows (1-indexed) sharing one key value
// within a file, surfaced so a reviewer sees what the strategy acted on.
type DuplicateGroup struct {
	Key  string `json:"key"`
	Rows []int  `json:"rows"`
}
