package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rs/xid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/freedkr/docbatch/internal/config"
	"github.com/freedkr/docbatch/internal/model"
)

// Store is the persistence contract the core pipeline consumes
// (spec.md §6).
type Store interface {
	CreateBatch(ctx context.Context, name, modelName string) (*model.Batch, error)
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]*model.Batch, error)
	UpdateBatchStatus(ctx context.Context, id string, status model.BatchStatus) error
	UpdateBatchProgress(ctx context.Context, id string, processed, failed int) error
	SetTotalFiles(ctx context.Context, id string, n int) error
	DeleteBatch(ctx context.Context, id string) (bool, []string, error)

	CreateDocument(ctx context.Context, batchID, filename, originalName, contentType string, fileSize int64, filePath string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocumentsByBatch(ctx context.Context, batchID string) ([]*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) error
	DeleteDocument(ctx context.Context, id string) (bool, error)

	CreateExtraction(ctx context.Context, documentID, batchID string, docType model.DocumentType, rawText string, structuredData map[string]any, confidence float64, modelUsed string, processingTimeMs int64) (*model.Extraction, error)
	GetExtraction(ctx context.Context, id string) (*model.Extraction, error)
	ListExtractionsByBatch(ctx context.Context, batchID string) ([]*model.Extraction, error)
	ListExtractionsFiltered(ctx context.Context, batchID string, filter model.ExtractionFilter) ([]*model.Extraction, error)
	UpdateExtractionStructured(ctx context.Context, id string, docType model.DocumentType, structuredData map[string]any, confidence float64, modelUsed string, processingTimeMs int64) error
	DeleteExtractionsByBatch(ctx context.Context, batchID string) (int, error)
}

// GormStore implements Store over GORM's default connection pool; Open
// does not limit it to a single connection, so calls are not serialized.
// Every method here acquires, executes and releases a connection within a
// single call. Grounded on internal/database/postgres.go.
type GormStore struct {
	db *gorm.DB
}

// Open dials either Postgres or SQLite per cfg.Driver and runs
// AutoMigrate, mirroring internal/database/postgres.go's connection-setup
// shape.
func Open(cfg config.DatabaseConfig) (*GormStore, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, model.NewStorageError("open database connection", err)
	}
	if err := db.AutoMigrate(&batchRecord{}, &documentRecord{}, &extractionRecord{}); err != nil {
		return nil, model.NewStorageError("auto-migrate schema", err)
	}
	return &GormStore{db: db}, nil
}

func logSQLError(op string, err error) {
	log.Printf("[SQL ERROR] %s failed: %v", op, err)
}

func newID() string { return xid.New().String() }

func (s *GormStore) CreateBatch(ctx context.Context, name, modelName string) (*model.Batch, error) {
	now := time.Now()
	rec := &batchRecord{
		ID:        newID(),
		Name:      name,
		Status:    string(model.BatchPending),
		ModelName: modelName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		logSQLError("CreateBatch", err)
		return nil, model.NewStorageError("create batch", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var rec batchRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, model.NewNotFoundError("batch", id)
	}
	if err != nil {
		logSQLError("GetBatch", err)
		return nil, model.NewStorageError("get batch", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	var recs []batchRecord
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&recs).Error; err != nil {
		logSQLError("ListBatches", err)
		return nil, model.NewStorageError("list batches", err)
	}
	out := make([]*model.Batch, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}

func (s *GormStore) UpdateBatchStatus(ctx context.Context, id string, status model.BatchStatus) error {
	updates := map[string]any{"status": string(status), "updated_at": time.Now()}
	if status == model.BatchCompleted || status == model.BatchPartiallyCompleted || status == model.BatchFailed {
		updates["completed_at"] = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&batchRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		logSQLError("UpdateBatchStatus", res.Error)
		return model.NewStorageError("update batch status", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewNotFoundError("batch", id)
	}
	return nil
}

func (s *GormStore) UpdateBatchProgress(ctx context.Context, id string, processed, failed int) error {
	res := s.db.WithContext(ctx).Model(&batchRecord{}).Where("id = ?", id).
		Updates(map[string]any{"processed_files": processed, "failed_files": failed, "updated_at": time.Now()})
	if res.Error != nil {
		logSQLError("UpdateBatchProgress", res.Error)
		return model.NewStorageError("update batch progress", res.Error)
	}
	return nil
}

func (s *GormStore) SetTotalFiles(ctx context.Context, id string, n int) error {
	res := s.db.WithContext(ctx).Model(&batchRecord{}).Where("id = ?", id).
		Updates(map[string]any{"total_files": n, "updated_at": time.Now()})
	if res.Error != nil {
		logSQLError("SetTotalFiles", res.Error)
		return model.NewStorageError("set total files", res.Error)
	}
	return nil
}

// DeleteBatch removes a Batch and cascades to its Documents and
// Extractions, returning the file paths the caller must delete from disk
// (spec.md §6's "deleting a Batch removes this subdirectory").
func (s *GormStore) DeleteBatch(ctx context.Context, id string) (bool, []string, error) {
	var filePaths []string
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var docs []documentRecord
		if err := tx.Where("batch_id = ?", id).Find(&docs).Error; err != nil {
			return err
		}
		for _, d := range docs {
			filePaths = append(filePaths, d.FilePath)
		}
		if err := tx.Where("batch_id = ?", id).Delete(&extractionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("batch_id = ?", id).Delete(&documentRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&batchRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		logSQLError("DeleteBatch", err)
		return false, nil, model.NewStorageError("delete batch", err)
	}
	return deleted, filePaths, nil
}

func (s *GormStore) CreateDocument(ctx context.Context, batchID, filename, originalName, contentType string, fileSize int64, filePath string) (*model.Document, error) {
	now := time.Now()
	rec := &documentRecord{
		ID:           newID(),
		BatchID:      batchID,
		Filename:     filename,
		OriginalName: originalName,
		ContentType:  contentType,
		FileSize:     fileSize,
		FilePath:     filePath,
		Status:       string(model.DocumentPending),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		logSQLError("CreateDocument", err)
		return nil, model.NewStorageError("create document", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var rec documentRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, model.NewNotFoundError("document", id)
	}
	if err != nil {
		logSQLError("GetDocument", err)
		return nil, model.NewStorageError("get document", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) ListDocumentsByBatch(ctx context.Context, batchID string) ([]*model.Document, error) {
	var recs []documentRecord
	if err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at asc").Find(&recs).Error; err != nil {
		logSQLError("ListDocumentsByBatch", err)
		return nil, model.NewStorageError("list documents by batch", err)
	}
	out := make([]*model.Document, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}

func (s *GormStore) UpdateDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) error {
	res := s.db.WithContext(ctx).Model(&documentRecord{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "error_message": errMsg, "updated_at": time.Now()})
	if res.Error != nil {
		logSQLError("UpdateDocumentStatus", res.Error)
		return model.NewStorageError("update document status", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewNotFoundError("document", id)
	}
	return nil
}

func (s *GormStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&documentRecord{})
	if res.Error != nil {
		logSQLError("DeleteDocument", res.Error)
		return false, model.NewStorageError("delete document", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CreateExtraction(ctx context.Context, documentID, batchID string, docType model.DocumentType, rawText string, structuredData map[string]any, confidence float64, modelUsed string, processingTimeMs int64) (*model.Extraction, error) {
	encoded, err := encodeStructuredData(structuredData)
	if err != nil {
		return nil, model.NewStorageError("encode structured data", err)
	}
	rec := &extractionRecord{
		ID:               newID(),
		DocumentID:       documentID,
		BatchID:          batchID,
		DocumentType:     string(docType),
		RawText:          rawText,
		StructuredData:   encoded,
		Confidence:       confidence,
		ModelUsed:        modelUsed,
		ProcessingTimeMs: processingTimeMs,
		CreatedAt:        time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		logSQLError("CreateExtraction", err)
		return nil, model.NewStorageError("create extraction", err)
	}
	return rec.toDomain()
}

func (s *GormStore) GetExtraction(ctx context.Context, id string) (*model.Extraction, error) {
	var rec extractionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, model.NewNotFoundError("extraction", id)
	}
	if err != nil {
		logSQLError("GetExtraction", err)
		return nil, model.NewStorageError("get extraction", err)
	}
	return rec.toDomain()
}

func (s *GormStore) ListExtractionsByBatch(ctx context.Context, batchID string) ([]*model.Extraction, error) {
	return s.ListExtractionsFiltered(ctx, batchID, model.ExtractionFilter{})
}

func (s *GormStore) ListExtractionsFiltered(ctx context.Context, batchID string, filter model.ExtractionFilter) ([]*model.Extraction, error) {
	q := s.db.WithContext(ctx).Where("batch_id = ?", batchID)
	if filter.DocumentType != nil {
		q = q.Where("document_type = ?", string(*filter.DocumentType))
	}
	if filter.MinConfidence != nil {
		q = q.Where("confidence >= ?", *filter.MinConfidence)
	}
	orderCol := "created_at"
	if filter.OrderBy == model.OrderByConfidence {
		orderCol = "confidence"
	}
	var recs []extractionRecord
	if err := q.Order(orderCol + " desc").Find(&recs).Error; err != nil {
		logSQLError("ListExtractionsFiltered", err)
		return nil, model.NewStorageError("list extractions filtered", err)
	}
	out := make([]*model.Extraction, 0, len(recs))
	for i := range recs {
		e, err := recs[i].toDomain()
		if err != nil {
			return nil, model.NewStorageError("decode extraction", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *GormStore) UpdateExtractionStructured(ctx context.Context, id string, docType model.DocumentType, structuredData map[string]any, confidence float64, modelUsed string, processingTimeMs int64) error {
	encoded, err := encodeStructuredData(structuredData)
	if err != nil {
		return model.NewStorageError("encode structured data", err)
	}
	res := s.db.WithContext(ctx).Model(&extractionRecord{}).Where("id = ?", id).Updates(map[string]any{
		"document_type":      string(docType),
		"structured_data":    encoded,
		"confidence":         confidence,
		"model_used":         modelUsed,
		"processing_time_ms": processingTimeMs,
	})
	if res.Error != nil {
		logSQLError("UpdateExtractionStructured", res.Error)
		return model.NewStorageError("update extraction", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewNotFoundError("extraction", id)
	}
	return nil
}

func (s *GormStore) DeleteExtractionsByBatch(ctx context.Context, batchID string) (int, error) {
	res := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Delete(&extractionRecord{})
	if res.Error != nil {
		logSQLError("DeleteExtractionsByBatch", res.Error)
		return 0, model.NewStorageError("delete extractions by batch", res.Error)
	}
	return int(res.RowsAffected), nil
}

func encodeStructuredData(data map[string]any) (datatypes.JSON, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeStructuredData(raw datatypes.JSON) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
