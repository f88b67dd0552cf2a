package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/freedkr/docbatch/internal/model"
)

func sampleBatch() *model.Batch {
	return &model.Batch{
		ID:             "batch1",
		Name:           "August invoices",
		Status:         model.BatchCompleted,
		TotalFiles:     2,
		ProcessedFiles: 2,
		FailedFiles:    0,
		ModelName:      "text-model",
		CreatedAt:      time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleExtractions() ([]*model.Extraction, map[string]*model.Document) {
	extractions := []*model.Extraction{
		{
			ID:               "ext1",
			DocumentID:       "doc1",
			BatchID:          "batch1",
			DocumentType:     model.DocTypeInvoice,
			RawText:          "Invoice #42",
			StructuredData:   map[string]any{"total": 100.0, "vendor": "Acme", "confidence": 0.9, "document_type": "invoice"},
			Confidence:       0.9,
			ModelUsed:        "text-model",
			ProcessingTimeMs: 120,
			CreatedAt:        time.Date(2026, 7, 1, 12, 5, 0, 0, time.UTC),
		},
		{
			ID:               "ext2",
			DocumentID:       "doc2",
			BatchID:          "batch1",
			DocumentType:     model.DocTypeReceipt,
			RawText:          "Receipt",
			StructuredData:   map[string]any{"total": 5.5},
			Confidence:       0.7,
			ModelUsed:        "text-model",
			ProcessingTimeMs: 80,
			CreatedAt:        time.Date(2026, 7, 1, 12, 6, 0, 0, time.UTC),
		},
	}
	docs := map[string]*model.Document{
		"doc1": {ID: "doc1", BatchID: "batch1", OriginalName: "invoice.csv", ContentType: "text/csv", FileSize: 42},
		"doc2": {ID: "doc2", BatchID: "batch1", OriginalName: "receipt.pdf", ContentType: "application/pdf", FileSize: 99},
	}
	return extractions, docs
}

func TestDynamicKeysExcludesBaseColumnsAndSorts(t *testing.T) {
	extractions, _ := sampleExtractions()
	keys := dynamicKeys(joinRecords(extractions, nil))
	assert.Equal(t, []string{"total", "vendor"}, keys)
}

func TestExportJSONEnvelopeShapesAndFlattensStructuredData(t *testing.T) {
	batch := sampleBatch()
	extractions, docs := sampleExtractions()

	out, err := Export(batch, extractions, docs, FormatJSON)
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(out, &envelope))
	assert.Equal(t, "batch1", envelope["batch_id"])
	assert.Equal(t, "August invoices", envelope["batch_name"])

	records := envelope["extractions"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)
	assert.Equal(t, "Acme", first["vendor"])
	assert.Equal(t, "invoice.csv", first["original_name"])
	assert.Equal(t, "Invoice #42", first["raw_text"])
}

func TestExportCSVQuotesFieldsContainingCommas(t *testing.T) {
	batch := sampleBatch()
	extractions, docs := sampleExtractions()
	extractions[0].StructuredData["vendor"] = "Acme, Inc."

	out, err := Export(batch, extractions, docs, FormatCSV)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(out))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	vendorIdx := -1
	for i, h := range header {
		if h == "vendor" {
			vendorIdx = i
		}
	}
	require.GreaterOrEqual(t, vendorIdx, 0)
	assert.Equal(t, "Acme, Inc.", rows[1][vendorIdx])
}

func TestExportCSVColumnsAreUnionAcrossAllRows(t *testing.T) {
	batch := sampleBatch()
	extractions, docs := sampleExtractions()

	out, err := Export(batch, extractions, docs, FormatCSV)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(out))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, rows[0], "total")
	assert.Contains(t, rows[0], "vendor")
}

func TestExportExcelProducesSummaryExtractionsAndPerTypeSheets(t *testing.T) {
	batch := sampleBatch()
	extractions, docs := sampleExtractions()

	out, err := Export(batch, extractions, docs, FormatExcel)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Summary")
	assert.Contains(t, sheets, "Extractions")
	assert.Contains(t, sheets, "Invoice")
	assert.Contains(t, sheets, "Receipt")
	assert.NotContains(t, sheets, "Sheet1")

	label, err := f.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Batch ID", label)
	value, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "batch1", value)

	styleID, err := f.GetCellStyle("Summary", "A1")
	require.NoError(t, err)
	assert.NotZero(t, styleID)

	header, err := f.GetRows("Extractions")
	require.NoError(t, err)
	require.NotEmpty(t, header)
	assert.Contains(t, header[0], "total")
}

func TestExportUnsupportedFormatReturnsInputInvalid(t *testing.T) {
	batch := sampleBatch()
	extractions, docs := sampleExtractions()

	_, err := Export(batch, extractions, docs, Format("yaml"))
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrCodeInputInvalid))
}

func TestPerTypeSheetNameCapitalizesAndTruncates(t *testing.T) {
	assert.Equal(t, "Bank Statement", perTypeSheetName(model.DocTypeBankStatement))
	long := model.DocumentType("a_very_long_document_type_name_that_exceeds_the_limit")
	assert.LessOrEqual(t, len(perTypeSheetName(long)), 31)
}
