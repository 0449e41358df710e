// Package store is the PostgreSQL implementation of core.Repository.
// All upserts key on natural identities (client_id + product_id for
// products, the order-line key for transactions) so re-imports remain
// idempotent at the database level even if two processes race.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow/importer/internal/core"
	"github.com/stockflow/importer/internal/tabular"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the schema if it does not exist. Statements are
// idempotent so this is safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			client_id UUID NOT NULL,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			item_type TEXT NOT NULL DEFAULT 'evergreen',
			pack_size INT NOT NULL DEFAULT 1,
			current_stock_packs INT NOT NULL DEFAULT 0,
			current_stock_units INT NOT NULL DEFAULT 0,
			notification_point INT NOT NULL DEFAULT 0,
			is_orphan BOOLEAN NOT NULL DEFAULT FALSE,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (client_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_history (
			id UUID PRIMARY KEY,
			product_ref UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			packs INT NOT NULL,
			units INT NOT NULL,
			source TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS stock_history_product_idx
			ON stock_history (product_ref, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			product_ref UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			order_id TEXT NOT NULL,
			quantity_packs INT NOT NULL DEFAULT 0,
			quantity_units INT NOT NULL DEFAULT 0,
			unit_price NUMERIC(14,4),
			total_price NUMERIC(14,4),
			order_status TEXT,
			ship_to_location TEXT NOT NULL DEFAULT '',
			ship_to_company TEXT,
			contact_name TEXT,
			contact_email TEXT,
			date_submitted DATE NOT NULL,
			import_batch_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (product_ref, order_id, ship_to_location, date_submitted)
		)`,
		`CREATE TABLE IF NOT EXISTS import_batches (
			id UUID PRIMARY KEY,
			client_id UUID NOT NULL,
			import_type TEXT NOT NULL,
			filename TEXT,
			file_checksum TEXT,
			status TEXT NOT NULL,
			row_count INT NOT NULL DEFAULT 0,
			processed_count INT NOT NULL DEFAULT 0,
			error_count INT NOT NULL DEFAULT 0,
			findings JSONB,
			source_headers JSONB,
			mapped_headers JSONB,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS import_batches_client_idx
			ON import_batches (client_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Products
// ----------------------------------------------------------------------------

const productColumns = `id, client_id, product_id, name, item_type, pack_size,
	current_stock_packs, current_stock_units, notification_point, is_orphan,
	metadata, created_at, updated_at`

func (s *Store) FindProductByNaturalKey(ctx context.Context, key core.ProductKey) (*core.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE client_id = $1 AND product_id = $2`
	return scanProduct(s.pool.QueryRow(ctx, query, key.ClientID, key.ProductID))
}

func (s *Store) UpsertProduct(ctx context.Context, product *core.Product) error {
	metadata, err := marshalJSONB(product.Metadata)
	if err != nil {
		return fmt.Errorf("encode product metadata: %w", err)
	}

	query := `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (client_id, product_id) DO UPDATE SET
			name = EXCLUDED.name,
			item_type = EXCLUDED.item_type,
			pack_size = EXCLUDED.pack_size,
			current_stock_packs = EXCLUDED.current_stock_packs,
			current_stock_units = EXCLUDED.current_stock_units,
			notification_point = EXCLUDED.notification_point,
			is_orphan = EXCLUDED.is_orphan,
			metadata = COALESCE(EXCLUDED.metadata, products.metadata),
			updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query,
		product.ID, product.ClientID, product.ProductID, product.Name,
		string(product.ItemType), product.PackSize,
		product.CurrentStockPacks, product.CurrentStockUnits, product.NotificationPoint,
		product.IsOrphan, metadata, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", product.ProductID, err)
	}
	return nil
}

func (s *Store) AppendStockHistorySnapshot(ctx context.Context, snapshot core.StockSnapshot) error {
	query := `INSERT INTO stock_history (id, product_ref, packs, units, source, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		snapshot.ID, snapshot.ProductRef, snapshot.Packs, snapshot.Units,
		snapshot.Source, snapshot.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append stock history: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*core.Product, error) {
	var (
		p        core.Product
		itemType string
		metadata []byte
	)
	err := row.Scan(
		&p.ID, &p.ClientID, &p.ProductID, &p.Name, &itemType, &p.PackSize,
		&p.CurrentStockPacks, &p.CurrentStockUnits, &p.NotificationPoint,
		&p.IsOrphan, &metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ItemType = core.ItemType(itemType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode product metadata: %w", err)
		}
	}
	return &p, nil
}

// ----------------------------------------------------------------------------
// Transactions
// ----------------------------------------------------------------------------

const transactionColumns = `id, product_ref, order_id, quantity_packs, quantity_units,
	unit_price, total_price, order_status, ship_to_location, ship_to_company,
	contact_name, contact_email, date_submitted, import_batch_id, created_at`

func (s *Store) FindTransactionByNaturalKey(ctx context.Context, key core.TransactionKey) (*core.Transaction, error) {
	// ship_to_location is part of the natural key, so it is stored as ''
	// rather than NULL. NULLs never collide in the unique constraint.
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE product_ref = $1 AND order_id = $2
		AND ship_to_location = $3 AND date_submitted = $4`
	return scanTransaction(s.pool.QueryRow(ctx, query,
		key.ProductRef, key.OrderID, key.ShipToLocation, key.DateSubmitted))
}

func (s *Store) UpsertTransaction(ctx context.Context, txn *core.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (product_ref, order_id, ship_to_location, date_submitted) DO UPDATE SET
			quantity_packs = EXCLUDED.quantity_packs,
			quantity_units = EXCLUDED.quantity_units,
			unit_price = COALESCE(EXCLUDED.unit_price, transactions.unit_price),
			total_price = COALESCE(EXCLUDED.total_price, transactions.total_price),
			order_status = COALESCE(EXCLUDED.order_status, transactions.order_status)`
	_, err := s.pool.Exec(ctx, query,
		txn.ID, txn.ProductRef, txn.OrderID, txn.QuantityPacks, txn.QuantityUnits,
		pgNumericFloat(txn.UnitPrice), pgNumericFloat(txn.TotalPrice),
		pgText(txn.OrderStatus), txn.ShipToLocation, pgText(txn.ShipToCompany),
		pgText(txn.ContactName), pgText(txn.ContactEmail),
		txn.DateSubmitted, txn.ImportBatchID, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", txn.OrderID, err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*core.Transaction, error) {
	var (
		t                     core.Transaction
		unitPrice, totalPrice pgtype.Float8
		status, shipCo        pgtype.Text
		contact, email        pgtype.Text
	)
	err := row.Scan(
		&t.ID, &t.ProductRef, &t.OrderID, &t.QuantityPacks, &t.QuantityUnits,
		&unitPrice, &totalPrice, &status, &t.ShipToLocation, &shipCo,
		&contact, &email, &t.DateSubmitted, &t.ImportBatchID, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.UnitPrice = fromPgFloat(unitPrice)
	t.TotalPrice = fromPgFloat(totalPrice)
	t.OrderStatus = fromPgText(status)
	t.ShipToCompany = fromPgText(shipCo)
	t.ContactName = fromPgText(contact)
	t.ContactEmail = fromPgText(email)
	return &t, nil
}

// ----------------------------------------------------------------------------
// Import batches
// ----------------------------------------------------------------------------

const batchColumns = `id, client_id, import_type, filename, file_checksum, status,
	row_count, processed_count, error_count, findings, source_headers,
	mapped_headers, started_at, completed_at, created_at`

func (s *Store) CreateImportBatch(ctx context.Context, batch *core.ImportBatch) error {
	findings, headers, mapped, err := batchJSONB(batch)
	if err != nil {
		return err
	}
	query := `INSERT INTO import_batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = s.pool.Exec(ctx, query,
		batch.ID, batch.ClientID, string(batch.ImportType),
		pgText(batch.Filename), pgText(batch.FileChecksum), string(batch.Status),
		batch.RowCount, batch.ProcessedCount, batch.ErrorCount,
		findings, headers, mapped,
		pgTimestamptz(batch.StartedAt), pgTimestamptz(batch.CompletedAt), batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	return nil
}

func (s *Store) UpdateImportBatch(ctx context.Context, batch *core.ImportBatch) error {
	findings, headers, mapped, err := batchJSONB(batch)
	if err != nil {
		return err
	}
	query := `UPDATE import_batches SET
			status = $2, row_count = $3, processed_count = $4, error_count = $5,
			findings = $6, source_headers = $7, mapped_headers = $8,
			started_at = $9, completed_at = $10
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		batch.ID, string(batch.Status),
		batch.RowCount, batch.ProcessedCount, batch.ErrorCount,
		findings, headers, mapped,
		pgTimestamptz(batch.StartedAt), pgTimestamptz(batch.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update import batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) FindImportBatch(ctx context.Context, id uuid.UUID) (*core.ImportBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM import_batches WHERE id = $1`

	var (
		b                         core.ImportBatch
		importType, status        string
		filename, checksum        pgtype.Text
		findings, headers, mapped []byte
		startedAt, completedAt    pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.ClientID, &importType, &filename, &checksum, &status,
		&b.RowCount, &b.ProcessedCount, &b.ErrorCount,
		&findings, &headers, &mapped,
		&startedAt, &completedAt, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	b.ImportType = tabular.ImportType(importType)
	b.Status = core.BatchStatus(status)
	b.Filename = fromPgText(filename)
	b.FileChecksum = fromPgText(checksum)
	b.StartedAt = fromPgTimestamptz(startedAt)
	b.CompletedAt = fromPgTimestamptz(completedAt)
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &b.Findings); err != nil {
			return nil, fmt.Errorf("decode batch findings: %w", err)
		}
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &b.SourceHeaders); err != nil {
			return nil, fmt.Errorf("decode source headers: %w", err)
		}
	}
	if len(mapped) > 0 {
		if err := json.Unmarshal(mapped, &b.MappedHeaders); err != nil {
			return nil, fmt.Errorf("decode mapped headers: %w", err)
		}
	}
	return &b, nil
}

func (s *Store) CompletedChecksums(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	query := `SELECT file_checksum FROM import_batches
		WHERE client_id = $1 AND status = $2 AND file_checksum IS NOT NULL`
	rows, err := s.pool.Query(ctx, query, clientID, string(core.BatchCompleted))
	if err != nil {
		return nil, fmt.Errorf("load completed checksums: %w", err)
	}
	defer rows.Close()

	var sums []string
	for rows.Next() {
		var sum string
		if err := rows.Scan(&sum); err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

func batchJSONB(batch *core.ImportBatch) (findings, headers, mapped []byte, err error) {
	if findings, err = marshalJSONB(batch.Findings); err != nil {
		return nil, nil, nil, fmt.Errorf("encode batch findings: %w", err)
	}
	if headers, err = marshalJSONB(batch.SourceHeaders); err != nil {
		return nil, nil, nil, fmt.Errorf("encode source headers: %w", err)
	}
	if mapped, err = marshalJSONB(batch.MappedHeaders); err != nil {
		return nil, nil, nil, fmt.Errorf("encode mapped headers: %w", err)
	}
	return findings, headers, mapped, nil
}

// marshalJSONB encodes v, mapping empty collections to NULL.
func marshalJSONB(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []core.Finding:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
