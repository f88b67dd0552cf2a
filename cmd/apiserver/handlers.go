package main

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/freedkr/docbatch/internal/export"
	"github.com/freedkr/docbatch/internal/llmclient"
	"github.com/freedkr/docbatch/internal/model"
)

// handlers groups the HTTP adapters over Server, matching
// services/api-server/handlers.Handlers' shape.
type handlers struct {
	srv *Server
}

func (h *handlers) registerRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/health", h.health)
	api.GET("/ready", h.ready)

	batches := api.Group("/batches")
	batches.POST("", h.createBatch)
	batches.GET("", h.listBatches)
	batches.GET("/:id", h.getBatch)
	batches.DELETE("/:id", h.deleteBatch)
	batches.POST("/:id/process", h.processBatch)
	batches.GET("/:id/documents", h.listDocuments)
	batches.GET("/:id/extractions", h.listExtractions)
	batches.GET("/:id/export", h.exportBatch)

	llm := api.Group("/llm")
	llm.GET("/health", h.llmHealth)
	llm.GET("/models", h.listModels)
	llm.POST("/switch-model", h.switchModel)
	llm.POST("/settings", h.updateSettings)

	router.GET("/ws/batches/:id", h.watchProgress)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func (h *handlers) ready(c *gin.Context) {
	if _, err := h.srv.store.ListBatches(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeError maps a *model.PipelineError to the HTTP status spec.md §7
// assigns its code, falling back to 500 for anything else.
func writeError(c *gin.Context, err error) {
	var pe *model.PipelineError
	if errors.As(err, &pe) {
		switch pe.Code {
		case model.ErrCodeNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": pe.Error()})
		case model.ErrCodeConflict:
			c.JSON(http.StatusConflict, gin.H{"error": pe.Error()})
		case model.ErrCodeInputInvalid:
			c.JSON(http.StatusBadRequest, gin.H{"error": pe.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": pe.Error()})
		}
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// createBatch accepts a multipart form with a "name" field and one or
// more "files" parts, storing each blob via blobstore and recording one
// Document per file (spec.md §6's upload-then-process split).
func (h *handlers) createBatch(c *gin.Context) {
	ctx := c.Request.Context()

	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	maxBytes := h.srv.cfg.MaxFileSizeMB * 1024 * 1024
	for _, fh := range files {
		if fh.Size > maxBytes {
			writeError(c, model.NewInputInvalidError("file "+fh.Filename+" exceeds max_file_size_mb"))
			return
		}
	}

	batch, err := h.srv.store.CreateBatch(ctx, name, h.srv.llm.Settings().ModelName)
	if err != nil {
		writeError(c, err)
		return
	}

	for _, fh := range files {
		if err := h.saveUploadedFile(ctx, batch.ID, fh); err != nil {
			writeError(c, err)
			return
		}
	}

	if err := h.srv.store.SetTotalFiles(ctx, batch.ID, len(files)); err != nil {
		writeError(c, err)
		return
	}

	batch, err = h.srv.store.GetBatch(ctx, batch.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *handlers) saveUploadedFile(ctx context.Context, batchID string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return model.NewIoError("open uploaded file", err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	path, size, err := h.srv.blob.Save(ctx, batchID, fh.Filename, f, contentType)
	if err != nil {
		return err
	}

	_, err = h.srv.store.CreateDocument(ctx, batchID, filenameOf(path), fh.Filename, contentType, size, path)
	return err
}

func (h *handlers) listBatches(c *gin.Context) {
	batches, err := h.srv.store.ListBatches(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (h *handlers) getBatch(c *gin.Context) {
	batch, err := h.srv.store.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// processBatch triggers process_batch asynchronously: the orchestrator
// runs in the background while clients track progress over /ws or by
// polling getBatch, matching spec.md §4.7's non-blocking worker model.
func (h *handlers) processBatch(c *gin.Context) {
	batchID := c.Param("id")
	if _, err := h.srv.store.GetBatch(c.Request.Context(), batchID); err != nil {
		writeError(c, err)
		return
	}

	go func() {
		if err := h.srv.orchestrator.ProcessBatch(context.Background(), batchID); err != nil {
			log.Printf("[apiserver] process_batch %s failed: %v", batchID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "status": "processing"})
}

func (h *handlers) deleteBatch(c *gin.Context) {
	ctx := c.Request.Context()
	batchID := c.Param("id")

	deleted, filePaths, err := h.srv.store.DeleteBatch(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		writeError(c, model.NewNotFoundError("batch", batchID))
		return
	}

	for _, p := range filePaths {
		if err := h.srv.blob.Delete(ctx, p); err != nil {
			continue
		}
	}
	_ = h.srv.blob.RemoveBatchDir(batchID)

	c.JSON(http.StatusOK, gin.H{"deleted": true, "files_removed": len(filePaths)})
}

func (h *handlers) listDocuments(c *gin.Context) {
	docs, err := h.srv.store.ListDocumentsByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// listExtractions supports the order_by=confidence|created_at and
// min_confidence query filters the harvex extraction route added.
func (h *handlers) listExtractions(c *gin.Context) {
	filter := model.ExtractionFilter{OrderBy: model.OrderByCreatedAt}
	if dt := c.Query("document_type"); dt != "" {
		t := model.DocumentType(dt)
		filter.DocumentType = &t
	}
	if mc := c.Query("min_confidence"); mc != "" {
		if v, err := strconv.ParseFloat(mc, 64); err == nil {
			filter.MinConfidence = &v
		}
	}
	if ob := c.Query("order_by"); ob == string(model.OrderByConfidence) {
		filter.OrderBy = model.OrderByConfidence
	}

	extractions, err := h.srv.store.ListExtractionsFiltered(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extractions": extractions})
}

// exportBatch implements the single GET .../export?format=json|csv|excel
// negotiation harvex's routes/export.rs uses, rather than three routes.
func (h *handlers) exportBatch(c *gin.Context) {
	ctx := c.Request.Context()
	batchID := c.Param("id")

	batch, err := h.srv.store.GetBatch(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	extractions, err := h.srv.store.ListExtractionsByBatch(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	docs, err := h.srv.store.ListDocumentsByBatch(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	docByID := make(map[string]*model.Document, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	format := export.Format(c.DefaultQuery("format", "json"))
	if format == "xlsx" {
		format = export.FormatExcel
	}

	data, err := export.Export(batch, extractions, docByID, format)
	if err != nil {
		writeError(c, err)
		return
	}

	switch format {
	case export.FormatCSV:
		c.Data(http.StatusOK, "text/csv", data)
	case export.FormatExcel:
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		c.Data(http.StatusOK, "application/json", data)
	}
}

func (h *handlers) llmHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reachable": h.srv.llm.HealthCheck(c.Request.Context())})
}

func (h *handlers) listModels(c *gin.Context) {
	models, err := h.srv.llm.ListModels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type switchModelRequest struct {
	ModelName string `json:"model_name" binding:"required"`
}

func (h *handlers) switchModel(c *gin.Context) {
	var req switchModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.srv.llm.SwitchModel(req.ModelName)
	c.JSON(http.StatusOK, gin.H{"model_name": req.ModelName})
}

type updateSettingsRequest struct {
	APIURL          string  `json:"api_url" binding:"required"`
	APIKey          string  `json:"api_key"`
	ModelName       string  `json:"model_name" binding:"required"`
	VisionModelName string  `json:"vision_model_name"`
	ContextSize     int     `json:"context_size" binding:"required"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens" binding:"required"`
	VisionDPI       int     `json:"vision_dpi"`
	VisionMaxPages  int     `json:"vision_max_pages"`
}

func (h *handlers) updateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.srv.llm.UpdateSettings(llmSettingsFromRequest(req))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func filenameOf(path string) string {
	return filepath.Base(path)
}

func llmSettingsFromRequest(req updateSettingsRequest) llmclient.Settings {
	return llmclient.Settings{
		APIURL:          req.APIURL,
		APIKey:          req.APIKey,
		ModelName:       req.ModelName,
		VisionModelName: req.VisionModelName,
		ContextSize:     req.ContextSize,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		VisionDPI:       req.VisionDPI,
		VisionMaxPages:  req.VisionMaxPages,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watchProgress streams ProgressEvents for one batch over a websocket, an
// alternate transport to SSE the harvex supplemental features note
// (spec.md §9's "subscribers register before process_batch starts").
func (h *handlers) watchProgress(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.srv.hub.Subscribe(c.Param("id"))
	defer sub.Close()

	for ev := range sub.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
