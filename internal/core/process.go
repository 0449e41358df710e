package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/logging"
	"github.com/stockflow/importer/internal/tabular"
)

// CompletionHook is invoked after a batch completes so downstream usage
// metrics and stock alerts can be recalculated for the client. It runs
// on its own goroutine; failures there never affect the batch outcome.
type CompletionHook func(clientID uuid.UUID)

// Processor turns a parsed, mapped table into persisted products and
// transactions, one row at a time in file order. Row order is load
// bearing: in-file duplicate handling is first-seen based, and stock
// history must append in the order the file states it.
type Processor struct {
	repo        Repository
	onCompleted CompletionHook
}

func NewProcessor(repo Repository, onCompleted CompletionHook) *Processor {
	return &Processor{repo: repo, onCompleted: onCompleted}
}

// ProcessRequest is a fully prepared batch: parsed table, confirmed
// mappings, and duplicate policy.
type ProcessRequest struct {
	ClientID   uuid.UUID
	Filename   string
	Checksum   string
	ImportType tabular.ImportType
	Table      *tabular.Table
	Mappings   []FieldMapping
	Strategy   DuplicateStrategy
	// DuplicateKeyField selects which canonical field defines in-file
	// duplicates. Empty means productId for inventory files and orderId
	// for order files.
	DuplicateKeyField string
}

// ProcessResult summarizes one finished batch.
type ProcessResult struct {
	Batch               *ImportBatch     `json:"batch"`
	NewProducts         int              `json:"newProducts"`
	UpdatedProducts     int              `json:"updatedProducts"`
	NewTransactions     int              `json:"newTransactions"`
	UpdatedTransactions int              `json:"updatedTransactions"`
	SkippedDuplicates   int              `json:"skippedDuplicates"`
	SkippedRows         int              `json:"skippedRows"`
	Duplicates          []DuplicateGroup `json:"duplicates,omitempty"`
	FindingsByField     map[string]int   `json:"findingsByField,omitempty"`
}

// Run processes a batch to completion. Row-level failures are recorded
// and skipped; only whole-file problems fail the batch. The returned
// error is reserved for infrastructure failures around the batch record
// itself.
func (p *Processor) Run(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	log := logging.WithFields(ctx, "client_id", req.ClientID, "filename", req.Filename)

	batch := &ImportBatch{
		ID:            uuid.New(),
		ClientID:      req.ClientID,
		ImportType:    req.ImportType,
		Filename:      req.Filename,
		FileChecksum:  req.Checksum,
		Status:        BatchPending,
		RowCount:      len(req.Table.Rows),
		SourceHeaders: req.Table.Headers,
		MappedHeaders: mappedTargets(req.Mappings),
		CreatedAt:     time.Now(),
	}
	for _, w := range req.Table.Warnings {
		batch.Findings = append(batch.Findings, Finding{Message: w, Severity: SeverityWarning})
	}
	if err := p.repo.CreateImportBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}

	now := time.Now()
	batch.Status = BatchProcessing
	batch.StartedAt = &now
	if err := p.repo.UpdateImportBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("start import batch: %w", err)
	}
	log.Info("batch started", "batch_id", batch.ID, "rows", batch.RowCount, "import_type", req.ImportType)

	result := &ProcessResult{Batch: batch, FindingsByField: make(map[string]int)}

	rows := make([]CanonicalRow, len(req.Table.Rows))
	metadata := make([]map[string]any, len(req.Table.Rows))
	for i, raw := range req.Table.Rows {
		rows[i], metadata[i] = BuildCanonicalRow(raw, req.Mappings)
	}

	skip := p.applyDuplicatePolicy(req, rows, batch, result)

	for i, row := range rows {
		rowNum := i + 1
		if skip[i] {
			result.SkippedRows++
			continue
		}

		findings := ValidateRow(req.ImportType, row, rowNum)
		for _, f := range findings {
			result.FindingsByField[f.Field]++
		}
		batch.Findings = append(batch.Findings, findings...)
		if HasError(findings) {
			batch.ErrorCount++
			continue
		}

		var err error
		switch req.ImportType {
		case tabular.ImportOrders:
			err = p.processOrderRow(ctx, req, batch, row, result)
		case tabular.ImportBoth:
			if err = p.processInventoryRow(ctx, req, batch, row, metadata[i], result); err == nil {
				err = p.processOrderRow(ctx, req, batch, row, result)
			}
		default:
			err = p.processInventoryRow(ctx, req, batch, row, metadata[i], result)
		}
		if err != nil {
			batch.ErrorCount++
			batch.Findings = append(batch.Findings, Finding{
				Row:      rowNum,
				Message:  MapError(err).Message,
				Severity: SeverityError,
			})
			log.Warn("row failed", "batch_id", batch.ID, "row", rowNum, "error", err)
			continue
		}
		batch.ProcessedCount++
	}

	done := time.Now()
	batch.Status = BatchCompleted
	batch.CompletedAt = &done
	if err := p.repo.UpdateImportBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("complete import batch: %w", err)
	}
	log.Info("batch completed",
		"batch_id", batch.ID,
		"processed", batch.ProcessedCount,
		"errors", batch.ErrorCount,
		"new_products", result.NewProducts,
		"new_transactions", result.NewTransactions,
	)

	if p.onCompleted != nil {
		go p.onCompleted(req.ClientID)
	}
	return result, nil
}

// FailParse records a batch that never reached row processing because
// the file itself could not be parsed.
func (p *Processor) FailParse(ctx context.Context, req ProcessRequest, parseErr error) (*ImportBatch, error) {
	now := time.Now()
	batch := &ImportBatch{
		ID:           uuid.New(),
		ClientID:     req.ClientID,
		ImportType:   req.ImportType,
		Filename:     req.Filename,
		FileChecksum: req.Checksum,
		Status:       BatchFailed,
		ErrorCount:   1,
		Findings: []Finding{{
			Message:  parseErr.Error(),
			Severity: SeverityError,
		}},
		CompletedAt: &now,
		CreatedAt:   now,
	}
	if err := p.repo.CreateImportBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("record failed batch: %w", err)
	}
	return batch, nil
}

// applyDuplicatePolicy builds the first-seen map over the key field,
// records every group for reporting, and returns the per-row skip set
// the chosen strategy implies. Overwrite skips nothing; sequential
// processing already lets later rows win.
func (p *Processor) applyDuplicatePolicy(req ProcessRequest, rows []CanonicalRow, batch *ImportBatch, result *ProcessResult) []bool {
	keyField := req.DuplicateKeyField
	if keyField == "" {
		if req.ImportType == tabular.ImportOrders {
			keyField = "orderId"
		} else {
			keyField = "productId"
		}
	}

	firstSeen := make(map[string]int)
	groups := make(map[string][]int)
	for i, row := range rows {
		key := row.Text(keyField)
		if key == "" {
			continue
		}
		if _, ok := firstSeen[key]; !ok {
			firstSeen[key] = i
		}
		groups[key] = append(groups[key], i+1)
	}

	// Deterministic group order: first occurrence order.
	skip := make([]bool, len(rows))
	for i, row := range rows {
		key := row.Text(keyField)
		if key == "" || firstSeen[key] != i || len(groups[key]) < 2 {
			continue
		}
		result.Duplicates = append(result.Duplicates, DuplicateGroup{Key: key, Rows: groups[key]})

		repeats := groups[key][1:]
		switch req.Strategy {
		case DuplicateError:
			for _, rowNum := range repeats {
				skip[rowNum-1] = true
				batch.ErrorCount++
				batch.Findings = append(batch.Findings, Finding{
					Row:      rowNum,
					Field:    keyField,
					Value:    key,
					Message:  fmt.Sprintf("duplicate %s also appears on row %d", keyField, groups[key][0]),
					Severity: SeverityError,
				})
			}
		case DuplicateMerge:
			first := rows[i]
			for _, rowNum := range repeats {
				for field, cell := range rows[rowNum-1] {
					if first[field].IsEmpty() && !cell.IsEmpty() {
						first[field] = cell
					}
				}
				skip[rowNum-1] = true
			}
		case DuplicateOverwrite:
			// Later rows process normally and replace earlier writes.
		default: // DuplicateSkip
			for _, rowNum := range repeats {
				skip[rowNum-1] = true
			}
		}
	}
	return skip
}

func (p *Processor) processInventoryRow(ctx context.Context, req ProcessRequest, batch *ImportBatch, row CanonicalRow, metadata map[string]any, result *ProcessResult) error {
	key := ProductKey{ClientID: req.ClientID, ProductID: row.Text("productId")}
	existing, err := p.repo.FindProductByNaturalKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("find product %s: %w", key.ProductID, err)
	}

	packSize, hasPackSize := row.Int("packSize")
	stockPacks, hasStock := row.Int("currentStockPacks")
	notificationPoint, hasNotification := row.Int("notificationPoint")

	var product *Product
	if existing == nil {
		product = &Product{
			ID:        uuid.New(),
			ClientID:  req.ClientID,
			ProductID: key.ProductID,
			Name:      row.Text("name"),
			ItemType:  NormalizeItemType(row.Text("itemType")),
			PackSize:  1,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		}
		result.NewProducts++
	} else {
		product = existing
		if name := row.Text("name"); name != "" {
			product.Name = name
		}
		if row.Has("itemType") {
			product.ItemType = NormalizeItemType(row.Text("itemType"))
		}
		if len(metadata) > 0 {
			if product.Metadata == nil {
				product.Metadata = make(map[string]any, len(metadata))
			}
			for k, v := range metadata {
				product.Metadata[k] = v
			}
		}
		product.IsOrphan = false
		result.UpdatedProducts++
	}

	if hasPackSize {
		product.PackSize = packSize
	}
	if hasStock {
		product.CurrentStockPacks = stockPacks
		product.CurrentStockUnits = stockPacks * product.PackSize
	}
	if hasNotification {
		product.NotificationPoint = notificationPoint
	}
	product.UpdatedAt = time.Now()

	if err := p.repo.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("upsert product %s: %w", key.ProductID, err)
	}
	snapshot := StockSnapshot{
		ID:         uuid.New(),
		ProductRef: product.ID,
		Packs:      product.CurrentStockPacks,
		Units:      product.CurrentStockUnits,
		Source:     "import",
		RecordedAt: time.Now(),
	}
	if err := p.repo.AppendStockHistorySnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("append stock history for %s: %w", key.ProductID, err)
	}
	return nil
}

func (p *Processor) processOrderRow(ctx context.Context, req ProcessRequest, batch *ImportBatch, row CanonicalRow, result *ProcessResult) error {
	key := ProductKey{ClientID: req.ClientID, ProductID: row.Text("productId")}
	product, err := p.repo.FindProductByNaturalKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("find product %s: %w", key.ProductID, err)
	}
	if product == nil {
		// Unknown SKU: create a placeholder so the transaction is kept.
		// The placeholder is flagged for cleanup once a real inventory
		// import fills in the details.
		product = &Product{
			ID:        uuid.New(),
			ClientID:  req.ClientID,
			ProductID: key.ProductID,
			Name:      key.ProductID,
			ItemType:  ItemEvergreen,
			PackSize:  1,
			IsOrphan:  true,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := p.repo.UpsertProduct(ctx, product); err != nil {
			return fmt.Errorf("create orphan product %s: %w", key.ProductID, err)
		}
		result.NewProducts++
	}

	units, hasUnits := row.Int("quantityUnits")
	packs, hasPacks := row.Int("quantityPacks")
	switch {
	case hasUnits:
		packs = PacksFromUnits(units, product.PackSize)
	case hasPacks:
		units = packs * product.PackSize
	}

	date, ok := row.Date("dateSubmitted")
	if !ok {
		date = time.Now().Truncate(24 * time.Hour)
	}

	txnKey := TransactionKey{
		ProductRef:     product.ID,
		OrderID:        row.Text("orderId"),
		ShipToLocation: row.Text("shipToLocation"),
		DateSubmitted:  date,
	}
	existing, err := p.repo.FindTransactionByNaturalKey(ctx, txnKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("find transaction %s: %w", txnKey.OrderID, err)
	}

	if existing != nil {
		if existing.QuantityUnits == units && existing.QuantityPacks == packs {
			result.SkippedDuplicates++
			return nil
		}
		existing.QuantityUnits = units
		existing.QuantityPacks = packs
		if err := p.repo.UpsertTransaction(ctx, existing); err != nil {
			return fmt.Errorf("update transaction %s: %w", txnKey.OrderID, err)
		}
		result.UpdatedTransactions++
		return nil
	}

	var unitPrice, totalPrice *float64
	if v, ok := row.Number("unitPrice"); ok {
		unitPrice = &v
	}
	if v, ok := row.Number("totalPrice"); ok {
		totalPrice = &v
	}
	txn := &Transaction{
		ID:             uuid.New(),
		ProductRef:     product.ID,
		OrderID:        txnKey.OrderID,
		QuantityPacks:  packs,
		QuantityUnits:  units,
		UnitPrice:      unitPrice,
		TotalPrice:     totalPrice,
		OrderStatus:    row.Text("orderStatus"),
		ShipToLocation: txnKey.ShipToLocation,
		ShipToCompany:  row.Text("shipToCompany"),
		ContactName:    row.Text("contactName"),
		ContactEmail:   row.Text("contactEmail"),
		DateSubmitted:  date,
		ImportBatchID:  batch.ID,
		CreatedAt:      time.Now(),
	}
	if err := p.repo.UpsertTransaction(ctx, txn); err != nil {
		return fmt.Errorf("insert transaction %s: %w", txnKey.OrderID, err)
	}
	result.NewTransactions++
	return nil
}

func mappedTargets(mappings []FieldMapping) []string {
	var targets []string
	for _, m := range mappings {
		if m.Target != "" && !m.IsCustomField {
			targets = append(targets, m.Target)
		}
	}
	return targets
}
