package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/config"
	"github.com/stockflow/importer/internal/core"
)

// memRepo is a minimal in-memory core.Repository for handler tests.
type memRepo struct {
	mu           sync.Mutex
	products     map[core.ProductKey]*core.Product
	transactions map[core.TransactionKey]*core.Transaction
	batches      map[uuid.UUID]*core.ImportBatch
}

func newMemRepo() *memRepo {
	return &memRepo{
		products:     make(map[core.ProductKey]*core.Product),
		transactions: make(map[core.TransactionKey]*core.Transaction),
		batches:      make(map[uuid.UUID]*core.ImportBatch),
	}
}

func (m *memRepo) FindProductByNaturalKey(_ context.Context, key core.ProductKey) (*core.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[key]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, core.ErrNotFound
}

func (m *memRepo) UpsertProduct(_ context.Context, p *core.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.products[core.ProductKey{ClientID: p.ClientID, ProductID: p.ProductID}] = &clone
	return nil
}

func (m *memRepo) AppendStockHistorySnapshot(_ context.Context, _ core.StockSnapshot) error {
	return nil
}

func (m *memRepo) FindTransactionByNaturalKey(_ context.Context, key core.TransactionKey) (*core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transactions[key]; ok {
		clone := *t
		return &clone, nil
	}
	return nil, core.ErrNotFound
}

func (m *memRepo) UpsertTransaction(_ context.Context, t *core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := core.TransactionKey{
		ProductRef:     t.ProductRef,
		OrderID:        t.OrderID,
		ShipToLocation: t.ShipToLocation,
		DateSubmitted:  t.DateSubmitted,
	}
	clone := *t
	m.transactions[key] = &clone
	return nil
}

func (m *memRepo) CreateImportBatch(_ context.Context, b *core.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *b
	m.batches[b.ID] = &clone
	return nil
}

func (m *memRepo) UpdateImportBatch(_ context.Context, b *core.ImportBatch) error {
	return m.CreateImportBatch(nil, b)
}

func (m *memRepo) FindImportBatch(_ context.Context, id uuid.UUID) (*core.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.batches[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, core.ErrNotFound
}

func (m *memRepo) CompletedChecksums(_ context.Context, clientID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sums []string
	for _, b := range m.batches {
		if b.ClientID == clientID && b.Status == core.BatchCompleted {
			sums = append(sums, b.FileChecksum)
		}
	}
	return sums, nil
}

func newTestServer() *Server {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Import.MaxFileSize = 10 << 20
	service := core.NewService(newMemRepo(), nil, nil, core.Options{})
	return NewServer(service, cfg)
}

// multipartBody builds the upload form the import endpoints accept.
func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file content: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(t *testing.T, srv *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

const inventoryCSV = "Product ID,Product Name,Pack Size,Current Stock\nWID-001,Widget A,12,40\n"

func TestHealthz(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	srv := newTestServer()
	body, ct := multipartBody(t, map[string]string{"clientId": uuid.NewString()}, "stock.csv", inventoryCSV)

	rec := doRequest(t, srv, http.MethodPost, "/api/preview", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp core.PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ImportType != "inventory" {
		t.Errorf("importType = %q, want inventory", resp.ImportType)
	}
	if resp.RowCount != 1 {
		t.Errorf("rowCount = %d, want 1", resp.RowCount)
	}
	if len(resp.Mappings) == 0 {
		t.Error("expected column mappings in preview response")
	}
}

func TestPreviewMissingFile(t *testing.T) {
	srv := newTestServer()
	body, ct := multipartBody(t, map[string]string{"clientId": uuid.NewString()}, "", "")

	rec := doRequest(t, srv, http.MethodPost, "/api/preview", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPreviewMissingClient(t *testing.T) {
	srv := newTestServer()
	body, ct := multipartBody(t, nil, "stock.csv", inventoryCSV)

	rec := doRequest(t, srv, http.MethodPost, "/api/preview", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer()
	body, ct := multipartBody(t, map[string]string{"clientId": uuid.NewString()}, "stock.csv", inventoryCSV)

	rec := doRequest(t, srv, http.MethodPost, "/api/imports", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var result core.ProcessResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.NewProducts != 1 {
		t.Errorf("newProducts = %d, want 1", result.NewProducts)
	}
	if result.Batch.Status != core.BatchCompleted {
		t.Errorf("batch status = %v, want completed", result.Batch.Status)
	}

	// The recorded batch is retrievable by ID.
	statusRec := doRequest(t, srv, http.MethodGet, "/api/imports/"+result.Batch.ID.String(), nil, "")
	if statusRec.Code != http.StatusOK {
		t.Errorf("batch status code = %d, want 200", statusRec.Code)
	}
}

func TestImportDuplicateFileConflict(t *testing.T) {
	srv := newTestServer()
	clientID := uuid.NewString()

	body, ct := multipartBody(t, map[string]string{"clientId": clientID}, "stock.csv", inventoryCSV)
	if rec := doRequest(t, srv, http.MethodPost, "/api/imports", body, ct); rec.Code != http.StatusCreated {
		t.Fatalf("first import status = %d, want 201", rec.Code)
	}

	body, ct = multipartBody(t, map[string]string{"clientId": clientID}, "stock.csv", inventoryCSV)
	rec := doRequest(t, srv, http.MethodPost, "/api/imports", body, ct)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate import status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != "IMP001" {
		t.Errorf("error code = %q, want IMP001", errResp.Code)
	}
}

func TestImportUnparseableFile(t *testing.T) {
	srv := newTestServer()
	ole := string([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}) + string(make([]byte, 64))
	body, ct := multipartBody(t, map[string]string{"clientId": uuid.NewString()}, "stock.xls", ole)

	rec := doRequest(t, srv, http.MethodPost, "/api/imports", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}

	var result core.ProcessResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Batch.Status != core.BatchFailed {
		t.Errorf("batch status = %v, want failed", result.Batch.Status)
	}
}

func TestImportInvalidTypeHint(t *testing.T) {
	srv := newTestServer()
	body, ct := multipartBody(t, map[string]string{
		"clientId": uuid.NewString(),
		"type":     "warehouses",
	}, "stock.csv", inventoryCSV)

	rec := doRequest(t, srv, http.MethodPost, "/api/imports", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBatchStatusNotFound(t *testing.T) {
	srv := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/api/imports/"+uuid.NewString(), nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/imports/not-a-uuid", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed id", rec.Code)
	}
}
