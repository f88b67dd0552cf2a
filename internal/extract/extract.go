// Package extract implements the per-format blocking text extractors
// (spec.md §4.3). Each extractor is a pure, blocking function; callers are
// responsible for dispatching them off the scheduler's primary goroutine
// (see internal/blockingpool) per spec.md §5/§9.
package extract

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// scannedThreshold is the minimum extracted-text length below which a PDF
// is treated as scanned (spec.md §4.3, §8 boundary behavior).
const scannedThreshold = 20

// TextResult is the outcome of pdf_extract_text.
type TextResult struct {
	Text      string
	IsScanned bool
	PageCount *int
}

// PDFTextFunc is the pure blocking PDF-text-decoder contract spec.md §6
// names (pdf_extract_text). The concrete decoder is an external
// collaborator; callers inject it so the pipeline code never depends on a
// specific PDF library.
type PDFTextFunc func(path string) (text string, pageCount int, err error)

// ExtractPDFText reads a PDF at path via decode and classifies it as
// scanned when the extracted text is empty or shorter than 20 characters.
func ExtractPDFText(path string, decode PDFTextFunc) (TextResult, error) {
	if _, err := os.Stat(path); err != nil {
		return TextResult{}, fmt.Errorf("stat %s: %w", path, err)
	}
	text, pageCount, err := decode(path)
	if err != nil {
		return TextResult{}, fmt.Errorf("decode pdf %s: %w", path, err)
	}
	res := TextResult{Text: text, PageCount: &pageCount}
	if len(strings.TrimSpace(text)) < scannedThreshold {
		res.IsScanned = true
	}
	return res, nil
}

// ExcelResult is the outcome of excel_extract_text.
type ExcelResult struct {
	Text       string
	SheetCount int
	TotalRows  int
}

// ExtractExcelText opens path as a workbook and renders each sheet as
// "=== Sheet: <name> ===" followed by pipe-delimited non-empty rows.
// Integral floats under 1e15 render without a decimal point; fully empty
// rows are skipped (spec.md §4.3). A ".csv" path is treated as a
// single-sheet workbook, since the Dispatcher routes text/csv into the
// same Excel kind (spec.md §6) but excelize has no native CSV reader.
func ExtractExcelText(path string) (ExcelResult, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return extractCSVText(path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return ExcelResult{}, fmt.Errorf("open excel %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	totalRows := 0
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return ExcelResult{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		sb.WriteString(fmt.Sprintf("=== Sheet: %s ===\n", sheet))
		for _, row := range rows {
			if isEmptyRow(row) {
				continue
			}
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = renderCell(cell)
			}
			sb.WriteString(strings.Join(cells, "|"))
			sb.WriteString("\n")
			totalRows++
		}
	}

	return ExcelResult{Text: sb.String(), SheetCount: len(sheets), TotalRows: totalRows}, nil
}

func extractCSVText(path string) (ExcelResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExcelResult{}, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return ExcelResult{}, fmt.Errorf("read csv %s: %w", path, err)
	}

	var sb strings.Builder
	sb.WriteString("=== Sheet: Sheet1 ===\n")
	totalRows := 0
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = renderCell(cell)
		}
		sb.WriteString(strings.Join(cells, "|"))
		sb.WriteString("\n")
		totalRows++
	}

	return ExcelResult{Text: sb.String(), SheetCount: 1, TotalRows: totalRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func renderCell(cell string) string {
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		if f == float64(int64(f)) && f < 1e15 {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return cell
}

// WordResult is the outcome of word_extract_text.
type WordResult struct {
	Text string
}

// ExtractWordText opens path as a ZIP archive, reads word/document.xml,
// and extracts text with a single-pass character scan: it opens/closes
// on '<' and '>', collects text between <w:t ...> and </w:t>, and inserts
// a newline on </w:p>, then collapses consecutive blank lines (spec.md
// §4.3). This is a spec-mandated algorithm, not a place for an XML
// library.
func ExtractWordText(path string) (WordResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return WordResult{}, fmt.Errorf("open docx %s: %w", path, err)
	}
	defer zr.Close()

	var xmlBytes []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return WordResult{}, fmt.Errorf("open word/document.xml: %w", err)
			}
			xmlBytes, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return WordResult{}, fmt.Errorf("read word/document.xml: %w", err)
			}
			break
		}
	}
	if xmlBytes == nil {
		return WordResult{}, fmt.Errorf("word/document.xml not found in %s", path)
	}

	text := scanDocumentXML(string(xmlBytes))
	return WordResult{Text: collapseBlankLines(text)}, nil
}

func scanDocumentXML(xml string) string {
	var out strings.Builder
	inTag := false
	inRunText := false
	var tagBuf strings.Builder

	for _, r := range xml {
		switch {
		case r == '<':
			inTag = true
			tagBuf.Reset()
		case r == '>':
			inTag = false
			tag := tagBuf.String()
			switch {
			case tag == "w:t" || strings.HasPrefix(tag, "w:t "):
				inRunText = true
			case tag == "/w:t":
				inRunText = false
			case tag == "/w:p":
				out.WriteString("\n")
			}
		case inTag:
			tagBuf.WriteRune(r)
		case inRunText:
			out.WriteRune(r)
		}
	}
	return out.String()
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	prevBlank := false
	for _, l := range lines {
		blank := strings.TrimSpace(l) == ""
		if blank && prevBlank {
			continue
		}
		kept = append(kept, l)
		prevBlank = blank
	}
	return strings.Join(kept, "\n")
}

// ImageResult is the outcome of image_extract_text. There is no native
// OCR (spec.md §1 Non-goals); images always require LLM vision.
type ImageResult struct {
	Text           string
	Width, Height  int
	NeedsLLMVision bool
}

// ImageDimensionFunc probes an image's pixel dimensions. The concrete
// decoder is an external collaborator (spec.md §6).
type ImageDimensionFunc func(path string) (width, height int, err error)

// ExtractImageText reports dimensions and always needs_llm_vision = true.
func ExtractImageText(path string, probe ImageDimensionFunc) (ImageResult, error) {
	w, h, err := probe(path)
	if err != nil {
		return ImageResult{}, fmt.Errorf("probe image %s: %w", path, err)
	}
	return ImageResult{Width: w, Height: h, NeedsLLMVision: true}, nil
}
