// Package model defines the domain entities shared across the pipeline:
// Batch, Document, Extraction and the ephemeral ProgressEvent.
package model

import "time"

// BatchStatus is the lifecycle state of a Batch.
type BatchStatus string

const (
	BatchPending            BatchStatus = "pending"
	BatchProcessing         BatchStatus = "processing"
	BatchCompleted          BatchStatus = "completed"
	BatchPartiallyCompleted BatchStatus = "partially_completed"
	BatchFailed             BatchStatus = "failed"
)

// DocumentStatus is the lifecycle state of a Document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentType is the classifier/LLM tag attached to an Extraction.
type DocumentType string

const (
	DocTypeInvoice       DocumentType = "invoice"
	DocTypeBankStatement DocumentType = "bank_statement"
	DocTypePayment       DocumentType = "payment"
	DocTypeReceipt       DocumentType = "receipt"
	DocTypeOther         DocumentType = "other"
)

// Batch is the unit of client workflow: a named collection of documents
// uploaded and processed together.
type Batch struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Status         BatchStatus `json:"status"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	FailedFiles    int         `json:"failed_files"`
	ModelName      string      `json:"model_name,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// Document is one uploaded file belonging to a Batch.
type Document struct {
	ID           string         `json:"id"`
	BatchID      string         `json:"batch_id"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"original_name"`
	ContentType  string         `json:"content_type"`
	FileSize     int64          `json:"file_size"`
	FilePath     string         `json:"file_path"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Extraction is the derived structured result for one Document.
type Extraction struct {
	ID               string         `json:"id"`
	DocumentID       string         `json:"document_id"`
	BatchID          string         `json:"batch_id"`
	DocumentType     DocumentType   `json:"document_type"`
	RawText          string         `json:"raw_text,omitempty"`
	StructuredData   map[string]any `json:"structured_data,omitempty"`
	Confidence       float64        `json:"confidence"`
	ModelUsed        string         `json:"model_used,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ProgressEvent is an ephemeral, broadcast-only progress record. It is
// never persisted.
type ProgressEvent struct {
	BatchID      string `json:"batch_id"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	Processed    int    `json:"processed"`
	Failed       int    `json:"failed"`
	Total        int    `json:"total"`
}

// ExtractionFilter composes the dynamic predicate used by
// list_by_batch_filtered (spec.md §4.1), with the order_by extension
// pulled forward from the original Rust implementation's extraction route.
type ExtractionFilter struct {
	DocumentType  *DocumentType
	MinConfidence *float64
	OrderBy       OrderBy
}

// OrderBy selects the sort column for a filtered extraction list.
type OrderBy string

const (
	OrderByCreatedAt  OrderBy = "created_at"
	OrderByConfidence OrderBy = "confidence"
)
