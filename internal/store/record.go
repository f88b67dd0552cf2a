// Package store is the persistence layer (spec.md's Store contract,
// §6): Batch, Document and Extraction CRUD plus cascading delete,
// backed by GORM. Grounded on internal/database/models.go's gorm struct
// tags and internal/database/postgres.go's connection setup; extended
// with gorm.io/driver/sqlite for the embedded, no-external-dependency
// deployment mode spec.md's configuration section allows alongside
// Postgres.
package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/freedkr/docbatch/internal/model"
)

// batchRecord is the GORM-mapped row for a Batch.
type batchRecord struct {
	ID             string `gorm:"primaryKey;type:varchar(32)"`
	Name           string `gorm:"type:varchar(255);not null"`
	Status         string `gorm:"type:varchar(32);not null;index"`
	TotalFiles     int    `gorm:"not null;default:0"`
	ProcessedFiles int    `gorm:"not null;default:0"`
	FailedFiles    int    `gorm:"not null;default:0"`
	ModelName      string `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (batchRecord) TableName() string { return "batches" }

func (r *batchRecord) toDomain() *model.Batch {
	return &model.Batch{
		ID:             r.ID,
		Name:           r.Name,
		Status:         model.BatchStatus(r.Status),
		TotalFiles:     r.TotalFiles,
		ProcessedFiles: r.ProcessedFiles,
		FailedFiles:    r.FailedFiles,
		ModelName:      r.ModelName,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletedAt:    r.CompletedAt,
	}
}

func batchRecordFromDomain(b *model.Batch) *batchRecord {
	return &batchRecord{
		ID:             b.ID,
		Name:           b.Name,
		Status:         string(b.Status),
		TotalFiles:     b.TotalFiles,
		ProcessedFiles: b.ProcessedFiles,
		FailedFiles:    b.FailedFiles,
		ModelName:      b.ModelName,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		CompletedAt:    b.CompletedAt,
	}
}

// documentRecord is the GORM-mapped row for a Document.
type documentRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(32)"`
	BatchID      string `gorm:"type:varchar(32);not null;index"`
	Filename     string `gorm:"type:varchar(512);not null"`
	OriginalName string `gorm:"type:varchar(512);not null"`
	ContentType  string `gorm:"type:varchar(255)"`
	FileSize     int64  `gorm:"not null;default:0"`
	FilePath     string `gorm:"type:text;not null"`
	Status       string `gorm:"type:varchar(32);not null;index"`
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (documentRecord) TableName() string { return "documents" }

func (r *documentRecord) toDomain() *model.Document {
	return &model.Document{
		ID:           r.ID,
		BatchID:      r.BatchID,
		Filename:     r.Filename,
		OriginalName: r.OriginalName,
		ContentType:  r.ContentType,
		FileSize:     r.FileSize,
		FilePath:     r.FilePath,
		Status:       model.DocumentStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// extractionRecord is the GORM-mapped row for an Extraction.
type extractionRecord struct {
	ID               string `gorm:"primaryKey;type:varchar(32)"`
	DocumentID       string `gorm:"type:varchar(32);not null;index"`
	BatchID          string `gorm:"type:varchar(32);not null;index"`
	DocumentType     string `gorm:"type:varchar(32);not null"`
	RawText          string `gorm:"type:text"`
	StructuredData   datatypes.JSON `gorm:"type:jsonb"`
	Confidence       float64        `gorm:"not null;default:0"`
	ModelUsed        string         `gorm:"type:varchar(255)"`
	ProcessingTimeMs int64          `gorm:"not null;default:0"`
	CreatedAt        time.Time
}

func (extractionRecord) TableName() string { return "extractions" }

func (r *extractionRecord) toDomain() (*model.Extraction, error) {
	e := &model.Extraction{
		ID:               r.ID,
		DocumentID:       r.DocumentID,
		BatchID:          r.BatchID,
		DocumentType:     model.DocumentType(r.DocumentType),
		RawText:          r.RawText,
		Confidence:       r.Confidence,
		ModelUsed:        r.ModelUsed,
		ProcessingTimeMs: r.ProcessingTimeMs,
		CreatedAt:        r.CreatedAt,
	}
	if len(r.StructuredData) > 0 && string(r.StructuredData) != "null" {
		data, err := decodeStructuredData(r.StructuredData)
		if err != nil {
			return nil, err
		}
		e.StructuredData = data
	}
	return e, nil
}
