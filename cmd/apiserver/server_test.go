package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedkr/docbatch/internal/blobstore"
	"github.com/freedkr/docbatch/internal/blockingpool"
	"github.com/freedkr/docbatch/internal/broadcast"
	"github.com/freedkr/docbatch/internal/config"
	"github.com/freedkr/docbatch/internal/llmclient"
	"github.com/freedkr/docbatch/internal/orchestrator"
	"github.com/freedkr/docbatch/internal/store"
)

func newTestServer(t *testing.T, llmURL string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbCfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}
	st, err := store.Open(dbCfg)
	require.NoError(t, err)

	blob, err := blobstore.New(t.TempDir(), config.BlobConfig{})
	require.NoError(t, err)

	hub := broadcast.New(nil)
	llm := llmclient.New(llmclient.Settings{APIURL: llmURL, ModelName: "text-model", ContextSize: 1000, MaxTokens: 512})
	pool := blockingpool.New(4)
	orch := orchestrator.New(st, pool, hub, llm, 4, nil, nil, "pdftoppm")

	cfg := &config.Config{MaxFileSizeMB: 50, MaxConcurrent: 4, APIServerPort: 0}

	srv := &Server{cfg: cfg, store: st, blob: blob, hub: hub, llm: llm, orchestrator: orch}
	router := gin.New()
	h := &handlers{srv: srv}
	h.registerRoutes(router)
	srv.router = router
	return srv
}

func chatServerReturning(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)))
	}))
}

func multipartUpload(t *testing.T, name string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", name))
	for filename, content := range files {
		part, err := w.CreateFormFile("files", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateBatchStoresDocumentsAndSetsTotalFiles(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")

	body, contentType := multipartUpload(t, "August invoices", map[string]string{
		"invoice.csv": "vendor,total\nAcme,100\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var batch map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.EqualValues(t, 1, batch["total_files"])
	assert.Equal(t, "pending", batch["status"])
}

func TestCreateBatchRejectsOversizedFile(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	srv.cfg.MaxFileSizeMB = 0

	body, contentType := multipartUpload(t, "batch", map[string]string{"a.csv": "x,y\n1,2\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatchMissingReturns404(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/missing", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportBatchDefaultsToJSON(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	ctx := context.Background()

	batch, err := srv.store.CreateBatch(ctx, "B1", "text-model")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+batch.ID+"/export", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, batch.ID, envelope["batch_id"])
}

func TestExportBatchCSVFormat(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	ctx := context.Background()
	batch, err := srv.store.CreateBatch(ctx, "B1", "text-model")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+batch.ID+"/export?format=csv", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
}

func TestProcessBatchReturnsAccepted(t *testing.T) {
	llm := chatServerReturning(t, `{"document_type":"invoice","total":100,"confidence":0.9}`)
	defer llm.Close()

	srv := newTestServer(t, llm.URL)
	body, contentType := multipartUpload(t, "B1", map[string]string{"invoice.csv": "vendor,total\nAcme,100\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var batch map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	batchID := batch["id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/batches/"+batchID+"/process", nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDeleteBatchRemovesUploadedBlobFromDisk(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")

	body, contentType := multipartUpload(t, "B1", map[string]string{"invoice.csv": "vendor,total\nAcme,100\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var batch map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	batchID := batch["id"].(string)

	docs, err := srv.store.ListDocumentsByBatch(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	filePath := docs[0].FilePath

	_, err = os.Stat(filePath)
	require.NoError(t, err, "uploaded file should exist before deletion")

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/batches/"+batchID, nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = os.Stat(filePath)
	assert.True(t, os.IsNotExist(err), "uploaded file should be removed from disk after batch deletion")

	_, err = os.Stat(filepath.Dir(filePath))
	assert.True(t, os.IsNotExist(err), "batch upload directory should be removed after batch deletion")
}

func TestLLMHealthEndpointNeverFailsUpward(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llm/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["reachable"])
}

func TestSwitchModelUpdatesSettings(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")

	reqBody := bytes.NewBufferString(`{"model_name":"llama3.1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/llm/switch-model", reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "llama3.1", srv.llm.Settings().ModelName)
}
