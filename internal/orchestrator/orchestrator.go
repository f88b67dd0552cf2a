// Package orchestrator implements process_batch, the central state
// machine that fans a Batch's Documents out to bounded concurrent
// workers, drives each through dispatch/extraction/classification/LLM
// extraction, and derives the Batch's final status (spec.md §4.7).
// Grounded on internal/integration/processor_orchestrator.go's
// five-stage pipeline shape (PDF validation → LLM cleaning → fusion →
// LLM semantic analysis → persistence) and
// internal/integration/concurrency_manager.go's per-task-type semaphore,
// generalized from a fixed five-stage batch job into a per-document
// worker pool bounded by golang.org/x/sync/semaphore.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/freedkr/docbatch/internal/blockingpool"
	"github.com/freedkr/docbatch/internal/broadcast"
	"github.com/freedkr/docbatch/internal/classify"
	"github.com/freedkr/docbatch/internal/dispatch"
	"github.com/freedkr/docbatch/internal/extract"
	"github.com/freedkr/docbatch/internal/llmclient"
	"github.com/freedkr/docbatch/internal/logging"
	"github.com/freedkr/docbatch/internal/model"
	"github.com/freedkr/docbatch/internal/store"
)

const (
	scannedPDFPlaceholder = "[Scanned PDF: requires a vision-capable model to extract structured data]"
	imagePlaceholder      = "[Image: requires a vision-capable model to extract structured data]"
)

// Orchestrator drives process_batch.
type Orchestrator struct {
	store         store.Store
	pool          *blockingpool.Pool
	hub           *broadcast.Hub
	llm           *llmclient.Client
	maxConcurrent int
	pdfTextFunc   extract.PDFTextFunc
	imageDimFunc  extract.ImageDimensionFunc
	renderBin     string
	log           *logging.Logger
}

// New creates an Orchestrator. pdfTextFunc and imageDimFunc are the
// external pure-function collaborators spec.md §1/§6 describes (PDF text
// decoding and image dimension probing); renderBin is the external
// rasterization binary (default "pdftoppm" when empty).
func New(st store.Store, pool *blockingpool.Pool, hub *broadcast.Hub, llm *llmclient.Client, maxConcurrent int, pdfTextFunc extract.PDFTextFunc, imageDimFunc extract.ImageDimensionFunc, renderBin string) *Orchestrator {
	return &Orchestrator{
		store:         st,
		pool:          pool,
		hub:           hub,
		llm:           llm,
		maxConcurrent: maxConcurrent,
		pdfTextFunc:   pdfTextFunc,
		imageDimFunc:  imageDimFunc,
		renderBin:     renderBin,
		log:           logging.New("orchestrator"),
	}
}

// counters is the shared processed/failed pair each worker updates
// atomically (spec.md §4.7 step 5).
type counters struct {
	processed int32
	failed    int32
}

// ProcessBatch runs the batch to completion. It never aborts on a
// per-document failure; per-document errors are recovered into Document
// status and accumulated into the Batch's final status.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batchID string) error {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if batch.Status == model.BatchProcessing {
		if err := o.resetStuckBatch(ctx, batchID); err != nil {
			return err
		}
	}

	if err := o.store.UpdateBatchStatus(ctx, batchID, model.BatchProcessing); err != nil {
		return err
	}

	docs, err := o.store.ListDocumentsByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		return o.finalize(ctx, batchID, 0, 0, 0)
	}

	cnt := &counters{}
	sem := semaphore.NewWeighted(int64(o.maxConcurrent))
	var wg sync.WaitGroup

	for _, doc := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: stop spawning new workers, let in-flight
			// ones finish (spec.md §4.8, cancellation not supported
			// mid-batch — we only stop issuing new work).
			break
		}
		wg.Add(1)
		go func(d *model.Document) {
			defer wg.Done()
			defer sem.Release(1)
			o.processDocument(ctx, batch, d, cnt, len(docs))
		}(doc)
	}
	wg.Wait()

	return o.finalize(ctx, batchID, int(cnt.processed), int(cnt.failed), len(docs))
}

// resetStuckBatch implements the crash-recovery path (spec.md §4.7 step
// 1b): a batch still marked processing is assumed to be the result of an
// abnormal termination, so it and any of its documents still marked
// processing are reset to pending.
func (o *Orchestrator) resetStuckBatch(ctx context.Context, batchID string) error {
	docs, err := o.store.ListDocumentsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.Status == model.DocumentProcessing {
			if err := o.store.UpdateDocumentStatus(ctx, d.ID, model.DocumentPending, ""); err != nil {
				return err
			}
		}
	}
	return o.store.UpdateBatchStatus(ctx, batchID, model.BatchPending)
}

func (o *Orchestrator) finalize(ctx context.Context, batchID string, processed, failed, total int) error {
	status := deriveFinalStatus(processed, failed, total)
	if err := o.store.UpdateBatchProgress(ctx, batchID, processed, failed); err != nil {
		return err
	}
	if err := o.store.UpdateBatchStatus(ctx, batchID, status); err != nil {
		return err
	}
	o.hub.Publish(model.ProgressEvent{
		BatchID:      batchID,
		DocumentID:   "",
		DocumentName: "",
		Status:       string(status),
		Processed:    processed,
		Failed:       failed,
		Total:        total,
	})
	return nil
}

// deriveFinalStatus implements spec.md §4.7 step 6.
func deriveFinalStatus(processed, failed, total int) model.BatchStatus {
	if total == 0 {
		return model.BatchCompleted
	}
	if failed == 0 {
		return model.BatchCompleted
	}
	if processed == 0 {
		return model.BatchFailed
	}
	return model.BatchPartiallyCompleted
}

func (o *Orchestrator) processDocument(ctx context.Context, batch *model.Batch, doc *model.Document, cnt *counters, total int) {
	if err := o.runDocument(ctx, batch, doc); err != nil {
		o.onFailure(ctx, batch.ID, doc, err, cnt, total)
		return
	}
	o.onSuccess(ctx, batch.ID, doc, cnt, total)
}

func (o *Orchestrator) onSuccess(ctx context.Context, batchID string, doc *model.Document, cnt *counters, total int) {
	processed := atomic.AddInt32(&cnt.processed, 1)
	failed := atomic.LoadInt32(&cnt.failed)
	o.broadcastProgress(batchID, doc, "completed", "", int(processed), int(failed), total)
}

func (o *Orchestrator) onFailure(ctx context.Context, batchID string, doc *model.Document, cause error, cnt *counters, total int) {
	o.log.Warnf("document %s failed: %v", doc.ID, cause)
	failed := atomic.AddInt32(&cnt.failed, 1)
	processed := atomic.LoadInt32(&cnt.processed)
	o.broadcastProgress(batchID, doc, "failed", cause.Error(), int(processed), int(failed), total)
}

func (o *Orchestrator) broadcastProgress(batchID string, doc *model.Document, status, message string, processed, failed, total int) {
	o.hub.Publish(model.ProgressEvent{
		BatchID:      batchID,
		DocumentID:   doc.ID,
		DocumentName: doc.OriginalName,
		Status:       status,
		Message:      message,
		Processed:    processed,
		Failed:       failed,
		Total:        total,
	})
}

// runDocument is process_document (spec.md §4.7 step 4). A returned
// error means the Document is terminally failed; nil means it completed
// (possibly with a degraded, LLM-less extraction).
func (o *Orchestrator) runDocument(ctx context.Context, batch *model.Batch, doc *model.Document) error {
	if _, err := os.Stat(doc.FilePath); err != nil {
		_ = o.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentFailed, "File not found on disk")
		return fmt.Errorf("file not found on disk: %s", doc.FilePath)
	}

	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentProcessing, ""); err != nil {
		return err
	}

	fileType := dispatch.Dispatch(doc.OriginalName, doc.ContentType)

	switch fileType.Kind {
	case dispatch.Pdf:
		if err := o.runPDF(ctx, batch, doc); err != nil {
			return o.fail(ctx, doc, err)
		}
	case dispatch.Excel:
		text, err := blockingpool.Run(ctx, o.pool, func() (string, error) {
			r, err := extract.ExtractExcelText(doc.FilePath)
			return r.Text, err
		})
		if err != nil {
			return o.fail(ctx, doc, err)
		}
		if err := o.runTextPath(ctx, batch, doc, text); err != nil {
			return o.fail(ctx, doc, err)
		}
	case dispatch.Word:
		text, err := blockingpool.Run(ctx, o.pool, func() (string, error) {
			r, err := extract.ExtractWordText(doc.FilePath)
			return r.Text, err
		})
		if err != nil {
			return o.fail(ctx, doc, err)
		}
		if err := o.runTextPath(ctx, batch, doc, text); err != nil {
			return o.fail(ctx, doc, err)
		}
	case dispatch.Image:
		if err := o.runImage(ctx, doc); err != nil {
			return o.fail(ctx, doc, err)
		}
	default:
		return o.fail(ctx, doc, model.NewExtractorError(fmt.Sprintf("unsupported file type for %s", doc.OriginalName), nil))
	}

	return o.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentCompleted, "")
}

func (o *Orchestrator) fail(ctx context.Context, doc *model.Document, cause error) error {
	_ = o.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentFailed, cause.Error())
	return cause
}

func (o *Orchestrator) runPDF(ctx context.Context, batch *model.Batch, doc *model.Document) error {
	result, err := blockingpool.Run(ctx, o.pool, func() (extract.TextResult, error) {
		return extract.ExtractPDFText(doc.FilePath, o.pdfTextFunc)
	})
	if err != nil {
		return model.NewExtractorError("pdf text extraction failed", err)
	}

	if !result.IsScanned {
		return o.runTextPath(ctx, batch, doc, result.Text)
	}

	return o.runVisionPDFPath(ctx, doc, result)
}

// runTextPath persists the initial Extraction row and feeds it through
// extract_structured. A failure to create that row leaves the Document
// without its required Extraction (spec.md §4.7 step 4's "exactly one
// Extraction row" invariant), so it is terminal; an LLM failure is not —
// the Document still completes with the raw-text, LLM-less extraction.
func (o *Orchestrator) runTextPath(ctx context.Context, batch *model.Batch, doc *model.Document, text string) error {
	docType := classify.Classify(text)
	extraction, err := o.store.CreateExtraction(ctx, doc.ID, batch.ID, docType, text, nil, 0.0, "", 0)
	if err != nil {
		return model.NewStorageError("create initial extraction", err)
	}

	resp, err := o.llm.ExtractStructured(ctx, text, string(docType))
	if err != nil {
		o.log.Warnf("llm extract_structured for document %s: %v", doc.ID, err)
		return nil
	}
	o.applyLLMResult(ctx, extraction.ID, docType, resp)
	return nil
}

func (o *Orchestrator) runVisionPDFPath(ctx context.Context, doc *model.Document, textResult extract.TextResult) error {
	docType := model.DocTypeOther
	extraction, err := o.createPlaceholderExtraction(ctx, doc, docType, scannedPDFPlaceholder)
	if err != nil {
		return err
	}

	settings := o.llm.Settings()
	if settings.VisionModelName == "" {
		return nil
	}

	rendered, err := blockingpool.Run(ctx, o.pool, func() (extract.RenderResult, error) {
		return extract.RenderPDFPages(ctx, doc.FilePath, settings.VisionDPI, settings.VisionMaxPages, o.renderBin)
	})
	if err != nil {
		o.log.Warnf("render pdf pages for document %s: %v", doc.ID, err)
		return nil
	}

	resp, err := o.llm.ExtractStructuredWithVision(ctx, rendered.Pages, string(docType))
	if err != nil {
		o.log.Warnf("llm extract_structured_with_vision for document %s: %v", doc.ID, err)
		return nil
	}
	o.applyLLMResult(ctx, extraction.ID, docType, resp)
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, doc *model.Document) error {
	imgBytes, err := blockingpool.Run(ctx, o.pool, func() ([]byte, error) {
		if o.imageDimFunc != nil {
			if _, err := extract.ExtractImageText(doc.FilePath, o.imageDimFunc); err != nil {
				o.log.Warnf("probe image dimensions for document %s: %v", doc.ID, err)
			}
		}
		return os.ReadFile(doc.FilePath)
	})
	if err != nil {
		return model.NewExtractorError("image read failed", err)
	}

	docType := model.DocTypeOther
	extraction, err := o.createPlaceholderExtraction(ctx, doc, docType, imagePlaceholder)
	if err != nil {
		return err
	}

	resp, err := o.llm.ExtractStructuredWithVision(ctx, [][]byte{imgBytes}, string(docType))
	if err != nil {
		o.log.Warnf("llm extract_structured_with_vision for image document %s: %v", doc.ID, err)
		return nil
	}
	o.applyLLMResult(ctx, extraction.ID, docType, resp)
	return nil
}

func (o *Orchestrator) createPlaceholderExtraction(ctx context.Context, doc *model.Document, docType model.DocumentType, placeholder string) (*model.Extraction, error) {
	batchID := doc.BatchID
	extraction, err := o.store.CreateExtraction(ctx, doc.ID, batchID, docType, placeholder, nil, 0.0, "", 0)
	if err != nil {
		return nil, model.NewStorageError("create placeholder extraction", err)
	}
	return extraction, nil
}

func (o *Orchestrator) applyLLMResult(ctx context.Context, extractionID string, fallbackType model.DocumentType, resp llmclient.LlmResponse) {
	docType := fallbackType
	if resp.DocumentType != "" {
		docType = model.DocumentType(resp.DocumentType)
	}
	if err := o.store.UpdateExtractionStructured(ctx, extractionID, docType, resp.StructuredData, resp.Confidence, resp.ModelUsed, resp.ProcessingTimeMs); err != nil {
		o.log.Errorf("update extraction %s with llm result: %v", extractionID, err)
	}
}
