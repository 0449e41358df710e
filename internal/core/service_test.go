package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/tabular"
)

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, Options{})
}

const inventoryCSV = "Product ID,Product Name,Pack Size,Current Stock\nWID-001,Widget A,12,40\nWID-002,Widget B,6,10\n"

// ----------------------------------------------------------------------
// Preview
// ----------------------------------------------------------------------

func TestPreviewMapsInventoryFile(t *testing.T) {
	svc := newTestService(newMockRepo())

	resp, err := svc.Preview(context.Background(), PreviewRequest{
		ClientID: uuid.New(),
		Filename: "stock.csv",
		Data:     []byte(inventoryCSV),
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if resp.ImportType != tabular.ImportInventory {
		t.Errorf("importType = %v, want inventory", resp.ImportType)
	}
	if resp.RowCount != 2 {
		t.Errorf("rowCount = %d, want 2", resp.RowCount)
	}
	mapped := make(map[string]string)
	for _, m := range resp.Mappings {
		mapped[m.SourceHeader] = m.TargetField
	}
	for header, field := range map[string]string{
		"Product ID":    "productId",
		"Product Name":  "name",
		"Pack Size":     "packSize",
		"Current Stock": "currentStockPacks",
	} {
		if mapped[header] != field {
			t.Errorf("%q mapped to %q, want %q", header, mapped[header], field)
		}
	}
}

func TestPreviewSurfacesSampleFindings(t *testing.T) {
	svc := newTestService(newMockRepo())
	data := "Product ID,Product Name,Pack Size\nWID-001,Widget A,0\n"

	resp, err := svc.Preview(context.Background(), PreviewRequest{
		ClientID: uuid.New(),
		Filename: "stock.csv",
		Data:     []byte(data),
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	found := false
	for _, f := range resp.SampleFindings {
		if f.Field == "packSize" && f.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("sampleFindings = %+v, want a packSize error for the zero value", resp.SampleFindings)
	}
}

func TestPreviewLegacyExcelRejected(t *testing.T) {
	svc := newTestService(newMockRepo())
	ole := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)

	_, err := svc.Preview(context.Background(), PreviewRequest{
		ClientID: uuid.New(),
		Filename: "stock.xls",
		Data:     ole,
	})
	if !errors.Is(err, tabular.ErrLegacyExcel) {
		t.Errorf("Preview() error = %v, want ErrLegacyExcel", err)
	}
}

// ----------------------------------------------------------------------
// Commit
// ----------------------------------------------------------------------

func TestCommitAutoMapsAndProcesses(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	clientID := uuid.New()

	result, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: clientID,
		Filename: "stock.csv",
		Data:     []byte(inventoryCSV),
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if result.NewProducts != 2 {
		t.Errorf("newProducts = %d, want 2", result.NewProducts)
	}
	if result.Batch.Status != BatchCompleted {
		t.Errorf("status = %v, want completed", result.Batch.Status)
	}
	if result.Batch.FileChecksum != Checksum([]byte(inventoryCSV)) {
		t.Errorf("checksum = %q, want sha256 of the payload", result.Batch.FileChecksum)
	}
	if p := repo.product(t, clientID, "WID-002"); p.PackSize != 6 {
		t.Errorf("pack size = %d, want 6", p.PackSize)
	}
}

func TestCommitRejectsResubmittedFile(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	clientID := uuid.New()
	req := CommitRequest{ClientID: clientID, Filename: "stock.csv", Data: []byte(inventoryCSV)}

	if _, err := svc.Commit(context.Background(), req); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}

	_, err := svc.Commit(context.Background(), req)
	if !errors.Is(err, ErrDuplicateFile) {
		t.Fatalf("second Commit() error = %v, want ErrDuplicateFile", err)
	}
	if len(repo.batches) != 1 {
		t.Errorf("batches = %d, duplicate submission must not create a batch", len(repo.batches))
	}
}

func TestCommitSameContentDifferentName(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	clientID := uuid.New()

	if _, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: clientID, Filename: "stock.csv", Data: []byte(inventoryCSV),
	}); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}

	// Identity is the content hash, not the filename.
	_, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: clientID, Filename: "stock_copy.csv", Data: []byte(inventoryCSV),
	})
	if !errors.Is(err, ErrDuplicateFile) {
		t.Errorf("Commit() error = %v, want ErrDuplicateFile for identical content", err)
	}
}

func TestCommitAllowsSameFileForOtherClient(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	if _, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: uuid.New(), Filename: "stock.csv", Data: []byte(inventoryCSV),
	}); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if _, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: uuid.New(), Filename: "stock.csv", Data: []byte(inventoryCSV),
	}); err != nil {
		t.Errorf("Commit() for a different client error = %v, want nil", err)
	}
}

func TestCommitFailedBatchDoesNotBlockRetry(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	clientID := uuid.New()
	ole := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)

	result, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: clientID, Filename: "stock.xls", Data: ole,
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if result.Batch.Status != BatchFailed {
		t.Fatalf("status = %v, want failed for unparseable file", result.Batch.Status)
	}

	// Only completed batches count toward the duplicate guard.
	retry, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: clientID, Filename: "stock.xls", Data: ole,
	})
	if err != nil {
		t.Fatalf("retry Commit() error = %v", err)
	}
	if retry.Batch.Status != BatchFailed {
		t.Errorf("retry status = %v, want failed again rather than duplicate rejection", retry.Batch.Status)
	}
}

func TestCommitRejectsInvalidRequest(t *testing.T) {
	svc := newTestService(newMockRepo())

	tests := []struct {
		name string
		req  CommitRequest
	}{
		{"missing client", CommitRequest{Data: []byte(inventoryCSV), Filename: "x.csv"}},
		{"bad strategy", CommitRequest{ClientID: uuid.New(), Data: []byte(inventoryCSV), Filename: "x.csv", Strategy: DuplicateStrategy("upsert")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Commit(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Commit() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestBatchLookup(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	result, err := svc.Commit(context.Background(), CommitRequest{
		ClientID: uuid.New(), Filename: "stock.csv", Data: []byte(inventoryCSV),
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	batch, err := svc.Batch(context.Background(), result.Batch.ID)
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if batch.Filename != "stock.csv" || batch.Status != BatchCompleted {
		t.Errorf("batch = %+v, want the completed stock.csv batch", batch)
	}

	if _, err := svc.Batch(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Batch() unknown id error = %v, want ErrNotFound", err)
	}
}

// overlapRepo slows every product write and records whether two writes
// were ever in flight at once.
type overlapRepo struct {
	*mockRepo
	olMu       sync.Mutex
	inFlight   int
	overlapped bool
}

func (r *overlapRepo) UpsertProduct(ctx context.Context, product *Product) error {
	r.olMu.Lock()
	r.inFlight++
	if r.inFlight > 1 {
		r.overlapped = true
	}
	r.olMu.Unlock()

	time.Sleep(30 * time.Millisecond)

	r.olMu.Lock()
	r.inFlight--
	r.olMu.Unlock()
	return r.mockRepo.UpsertProduct(ctx, product)
}

func commitConcurrently(t *testing.T, svc *Service, reqs ...CommitRequest) {
	t.Helper()
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req CommitRequest) {
			defer wg.Done()
			<-start
			if _, err := svc.Commit(context.Background(), req); err != nil {
				t.Errorf("Commit(%s) error = %v", req.Filename, err)
			}
		}(req)
	}
	close(start)
	wg.Wait()
}

func TestCommitSerializesPerClient(t *testing.T) {
	repo := &overlapRepo{mockRepo: newMockRepo()}
	svc := newTestService(repo)
	clientID := uuid.New()

	// Distinct payloads so the checksum guard stays out of the way.
	other := strings.Replace(inventoryCSV, "40", "41", 1)
	commitConcurrently(t, svc,
		CommitRequest{ClientID: clientID, Filename: "a.csv", Data: []byte(inventoryCSV)},
		CommitRequest{ClientID: clientID, Filename: "b.csv", Data: []byte(other)},
	)

	if repo.overlapped {
		t.Error("two commits for the same client ran concurrently, want serialized")
	}
}

func TestCommitDifferentClientsRunConcurrently(t *testing.T) {
	repo := &overlapRepo{mockRepo: newMockRepo()}
	svc := newTestService(repo)

	commitConcurrently(t, svc,
		CommitRequest{ClientID: uuid.New(), Filename: "a.csv", Data: []byte(inventoryCSV)},
		CommitRequest{ClientID: uuid.New(), Filename: "b.csv", Data: []byte(inventoryCSV)},
	)

	if !repo.overlapped {
		t.Error("commits for different clients never overlapped, want concurrent")
	}
}

// ----------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------

func TestChecksumStable(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	if a != b {
		t.Errorf("checksums differ for identical input: %q vs %q", a, b)
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("checksum %q is not lowercase sha256 hex", a)
	}
	if Checksum([]byte("hello!")) == a {
		t.Error("different inputs produced the same checksum")
	}
}

func TestConfirmedMappingsDropUnmapped(t *testing.T) {
	svc := newTestService(newMockRepo())

	resp, err := svc.Preview(context.Background(), PreviewRequest{
		ClientID: uuid.New(),
		Filename: "stock.csv",
		Data:     []byte("Product ID,Product Name,Zzz Xx Qq\nWID-001,Widget A,noise\n"),
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	confirmed := ConfirmedMappings(resp.Mappings)
	for _, m := range confirmed {
		if m.Target == "" {
			t.Errorf("ConfirmedMappings kept unmapped header %q", m.Source)
		}
	}
}
