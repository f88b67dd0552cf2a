// Package export implements the three export surfaces (spec.md §4.8):
// a JSON envelope, an RFC-4180 CSV with dynamically discovered columns,
// and a three-section Excel workbook. Grounded on
// internal/parser/excel_parser.go's excelize usage (reading), generalized
// to writing, and internal/builder/hierarchy_builder.go's tree-walk
// projection style for the dynamic-key discovery pass.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/freedkr/docbatch/internal/model"
)

// Format selects an export surface.
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// excelCellLimit is Excel's per-cell character limit (spec.md §4.8).
const excelCellLimit = 32760

// record joins an Extraction with its Document's metadata, the shape
// ExportRecord names in spec.md §4.8.
type record struct {
	extraction *model.Extraction
	document   *model.Document
}

func joinRecords(extractions []*model.Extraction, docs map[string]*model.Document) []record {
	out := make([]record, 0, len(extractions))
	for _, e := range extractions {
		out = append(out, record{extraction: e, document: docs[e.DocumentID]})
	}
	return out
}

// Export dispatches to the requested surface. docs maps document_id to
// Document, the join key spec.md §4.8 names.
func Export(batch *model.Batch, extractions []*model.Extraction, docs map[string]*model.Document, format Format) ([]byte, error) {
	recs := joinRecords(extractions, docs)
	switch format {
	case FormatJSON:
		return toJSON(batch, recs)
	case FormatCSV:
		return toCSV(recs)
	case FormatExcel:
		return toExcel(batch, recs)
	default:
		return nil, model.NewInputInvalidError(fmt.Sprintf("unsupported export format %q", format))
	}
}

// dynamicKeys returns the deterministic, sorted union of top-level
// structured_data keys across recs, excluding "confidence" and
// "document_type" which are already base columns (spec.md §4.8).
func dynamicKeys(recs []record) []string {
	seen := map[string]struct{}{}
	for _, r := range recs {
		for k := range r.extraction.StructuredData {
			if k == "confidence" || k == "document_type" {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- JSON ---

func toJSON(batch *model.Batch, recs []record) ([]byte, error) {
	envelope := map[string]any{
		"batch_id":        batch.ID,
		"batch_name":      batch.Name,
		"status":          batch.Status,
		"total_files":     batch.TotalFiles,
		"processed_files": batch.ProcessedFiles,
		"failed_files":    batch.FailedFiles,
		"model_name":      batch.ModelName,
		"created_at":      batch.CreatedAt.Format(time.RFC3339),
		"extractions":     make([]map[string]any, 0, len(recs)),
	}
	exportRecords := envelope["extractions"].([]map[string]any)
	for _, r := range recs {
		exportRecords = append(exportRecords, jsonRecord(r))
	}
	envelope["extractions"] = exportRecords

	return json.MarshalIndent(envelope, "", "  ")
}

func jsonRecord(r record) map[string]any {
	e := r.extraction
	out := map[string]any{
		"id":                 e.ID,
		"document_id":        e.DocumentID,
		"document_type":      e.DocumentType,
		"confidence":         e.Confidence,
		"model_used":         e.ModelUsed,
		"processing_time_ms": e.ProcessingTimeMs,
		"created_at":         e.CreatedAt.Format(time.RFC3339),
		"raw_text":           e.RawText,
	}
	if r.document != nil {
		out["original_name"] = r.document.OriginalName
		out["content_type"] = r.document.ContentType
		out["file_size"] = r.document.FileSize
	}
	for k, v := range e.StructuredData {
		out[k] = v
	}
	return out
}

// --- CSV ---

// toCSV relies on encoding/csv's writer for RFC-4180 quoting (fields
// containing a comma, quote, or line break are quoted and internal quotes
// doubled), rather than hand-rolling escaping (spec.md §4.8).
func toCSV(recs []record) ([]byte, error) {
	keys := dynamicKeys(recs)
	header := append([]string{"extraction_id", "document_id", "filename", "document_type", "confidence", "model_used", "processing_time_ms"}, keys...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, model.NewIoError("write csv header", err)
	}

	for _, r := range recs {
		e := r.extraction
		filename := ""
		if r.document != nil {
			filename = r.document.OriginalName
		}
		row := []string{
			e.ID,
			e.DocumentID,
			filename,
			string(e.DocumentType),
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			e.ModelUsed,
			strconv.FormatInt(e.ProcessingTimeMs, 10),
		}
		for _, k := range keys {
			row = append(row, flattenCSVCell(e.StructuredData[k]))
		}
		if err := w.Write(row); err != nil {
			return nil, model.NewIoError("write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, model.NewIoError("flush csv writer", err)
	}
	return buf.Bytes(), nil
}

func flattenCSVCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// --- Excel ---

func toExcel(batch *model.Batch, recs []record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, model.NewIoError("create excel bold style", err)
	}

	if err := writeSummarySheet(f, batch, boldStyle); err != nil {
		return nil, err
	}
	keys := dynamicKeys(recs)
	if err := writeExtractionsSheet(f, recs, keys); err != nil {
		return nil, err
	}
	if err := writePerTypeSheets(f, recs, keys); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, model.NewIoError("remove default excel sheet", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, model.NewIoError("serialize excel workbook", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, batch *model.Batch, boldStyle int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return model.NewIoError("create summary sheet", err)
	}

	rows := [][2]string{
		{"Batch ID", batch.ID},
		{"Batch Name", batch.Name},
		{"Status", string(batch.Status)},
		{"Created", batch.CreatedAt.Format(time.RFC3339)},
		{"Total Files", strconv.Itoa(batch.TotalFiles)},
		{"Processed", strconv.Itoa(batch.ProcessedFiles)},
		{"Failed", strconv.Itoa(batch.FailedFiles)},
	}
	if batch.ModelName != "" {
		rows = append(rows, [2]string{"Model", batch.ModelName})
	}

	for i, row := range rows {
		r := i + 1
		labelCell := fmt.Sprintf("A%d", r)
		_ = f.SetCellValue(sheet, labelCell, row[0])
		_ = f.SetCellStyle(sheet, labelCell, labelCell, boldStyle)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", r), row[1])
	}
	return nil
}

func writeExtractionsSheet(f *excelize.File, recs []record, keys []string) error {
	const sheet = "Extractions"
	if _, err := f.NewSheet(sheet); err != nil {
		return model.NewIoError("create extractions sheet", err)
	}

	header := append([]string{"Extraction ID", "Filename", "Document Type", "Confidence", "Model", "Time (ms)"}, keys...)
	writeHeaderRow(f, sheet, header)

	for i, r := range recs {
		row := i + 2
		e := r.extraction
		filename := ""
		if r.document != nil {
			filename = r.document.OriginalName
		}
		_ = f.SetCellValue(sheet, cellRef(1, row), e.ID)
		_ = f.SetCellValue(sheet, cellRef(2, row), filename)
		_ = f.SetCellValue(sheet, cellRef(3, row), string(e.DocumentType))
		_ = f.SetCellValue(sheet, cellRef(4, row), e.Confidence)
		_ = f.SetCellValue(sheet, cellRef(5, row), e.ModelUsed)
		_ = f.SetCellValue(sheet, cellRef(6, row), e.ProcessingTimeMs)
		for j, k := range keys {
			_ = f.SetCellValue(sheet, cellRef(7+j, row), excelCellValue(e.StructuredData[k]))
		}
	}
	return nil
}

func writePerTypeSheets(f *excelize.File, recs []record, keys []string) error {
	byType := map[model.DocumentType][]record{}
	var order []model.DocumentType
	for _, r := range recs {
		t := r.extraction.DocumentType
		if _, ok := byType[t]; !ok {
			order = append(order, t)
		}
		byType[t] = append(byType[t], r)
	}

	for _, t := range order {
		sheetName := perTypeSheetName(t)
		if _, err := f.NewSheet(sheetName); err != nil {
			return model.NewIoError("create per-type sheet", err)
		}
		typeKeys := dynamicKeys(byType[t])
		header := append([]string{"Filename", "Confidence", "Model"}, typeKeys...)
		writeHeaderRow(f, sheetName, header)

		for i, r := range byType[t] {
			row := i + 2
			filename := ""
			if r.document != nil {
				filename = r.document.OriginalName
			}
			_ = f.SetCellValue(sheetName, cellRef(1, row), filename)
			_ = f.SetCellValue(sheetName, cellRef(2, row), r.extraction.Confidence)
			_ = f.SetCellValue(sheetName, cellRef(3, row), r.extraction.ModelUsed)
			for j, k := range typeKeys {
				_ = f.SetCellValue(sheetName, cellRef(4+j, row), excelCellValue(r.extraction.StructuredData[k]))
			}
		}
	}
	return nil
}

func writeHeaderRow(f *excelize.File, sheet string, header []string) {
	for i, h := range header {
		_ = f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}
}

// perTypeSheetName capitalizes each underscore-separated word and
// truncates to Excel's 31-character sheet name limit (spec.md §4.8).
func perTypeSheetName(t model.DocumentType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	name := strings.Join(words, " ")
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// excelCellValue converts a structured_data value into the type excelize
// should write: string, number, bool stay as-is; nil becomes empty
// string; arrays/objects flatten to a compact, length-limited JSON string
// (spec.md §4.8).
func excelCellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string, float64, bool, json.Number:
		return val
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		s := string(raw)
		if len(s) > excelCellLimit {
			s = s[:excelCellLimit] + "..."
		}
		return s
	}
}

func cellRef(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}
