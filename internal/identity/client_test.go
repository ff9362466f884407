package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"school-identity-onboarding/internal/config"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.ExternalAPI.Identity.BaseURL = srv.URL
	cfg.ExternalAPI.Identity.Token = "token-1"
	cfg.ApplyDefaults()
	cfg.ExternalAPI.Identity.Timeout = 5 * time.Second
	cfg.ExternalAPI.Provisioning.Timeout = 5 * time.Second
	return NewClient(cfg)
}

func TestSubmitBulkImport(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/identity/batches/import" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("establishment_id"); got != "E1" {
			t.Errorf("establishment_id = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if hdr.Filename != "students.csv" || string(data) != "a;b" {
				t.Errorf("file = %s %q", hdr.Filename, data)
			}
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"batchId":"B-42"}`))
	}))

	id, err := client.SubmitBulkImport(context.Background(), model.ImportFile{Name: "students.csv", Data: []byte("a;b")}, "E1")
	if err != nil {
		t.Fatalf("SubmitBulkImport: %v", err)
	}
	if id != "B-42" {
		t.Fatalf("id = %q", id)
	}
}

func TestCommitImportBatch_APIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity/batches/B1/commit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		http.Error(w, "batch not validated", http.StatusConflict)
	}))

	err := client.CommitImportBatch(context.Background(), "B1")
	var apiErr errors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Body != "batch not validated" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestGetBatchStatus_CamelCase(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"VALIDATING","totalItems":10,"newCount":4,"updatedCount":3,"skippedCount":2,"invalidCount":1}`))
	}))

	snap, err := client.GetBatchStatus(context.Background(), "B1")
	if err != nil {
		t.Fatalf("GetBatchStatus: %v", err)
	}
	if snap.BatchID != "B1" || snap.Status != "VALIDATING" || snap.TotalItems != 10 ||
		snap.NewCount != 4 || snap.UpdatedCount != 3 || snap.SkippedCount != 2 || snap.InvalidCount != 1 {
		t.Fatalf("snap = %+v", snap)
	}
}

func TestCountBatchItems(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "ERROR" || q.Get("page") != "1" || q.Get("size") != "1" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":{"items":[{"row_number":4}],"total":17,"page":1,"size":1}}`))
	}))

	n, err := client.CountBatchItems(context.Background(), "B1", model.ItemError)
	if err != nil {
		t.Fatalf("CountBatchItems: %v", err)
	}
	if n != 17 {
		t.Fatalf("count = %d, want 17", n)
	}
}

func TestProvisioningCalls(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/provisioning/batches":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["source_identity_batch_id"] != "B1" {
				t.Errorf("body = %v", body)
			}
			w.Write([]byte(`{"batch_id":"P1"}`))
		case "/provisioning/batches/P1/run":
			w.WriteHeader(http.StatusAccepted)
		case "/provisioning/batches/P1/items":
			if r.URL.Query().Get("skip") != "20" || r.URL.Query().Get("limit") != "10" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			w.Write([]byte(`[]`))
		}
	}))

	ctx := context.Background()
	id, err := client.CreateProvisioningBatch(ctx, "B1")
	if err != nil || id != "P1" {
		t.Fatalf("CreateProvisioningBatch = %q, %v", id, err)
	}
	if err := client.RunProvisioningBatch(ctx, id); err != nil {
		t.Fatalf("RunProvisioningBatch: %v", err)
	}
	if _, err := client.ListProvisioningItems(ctx, id, 20, 10); err != nil {
		t.Fatalf("ListProvisioningItems: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestFetchRemoteTemplate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity/templates/teacher" || r.URL.Query().Get("format") != "xlsx" {
			t.Errorf("unexpected %s", r.URL.String())
		}
		w.Header().Set("Content-Disposition", `attachment; filename="enseignants.xlsx"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{1, 2, 3})
	}))

	tpl, err := client.FetchRemoteTemplate(context.Background(), model.RoleTeacher, "xlsx")
	if err != nil {
		t.Fatalf("FetchRemoteTemplate: %v", err)
	}
	if len(tpl.Data) != 3 || tpl.ContentDisposition == "" {
		t.Fatalf("template = %+v", tpl)
	}
}

func TestExtractBatchID_Missing(t *testing.T) {
	if _, err := extractBatchID([]byte(`{"ok":true}`)); err == nil {
		t.Fatalf("expected error")
	}
	id, err := extractBatchID([]byte(`{"data":{"id":12}}`))
	if err != nil || id != "12" {
		t.Fatalf("extractBatchID = %q, %v", id, err)
	}
}
