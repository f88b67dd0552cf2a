// Package prompt builds the system/user/vision/merge prompts the LLM
// client sends, parameterized by document type (spec.md §4.5).
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/freedkr/docbatch/internal/model"
)

var systemPrompts = map[model.DocumentType]string{
	model.DocTypeInvoice: `You are a document extraction assistant. Extract structured data from invoices.
Return a JSON object with this schema:
{"document_type":"invoice","vendor":string,"invoice_number":string,"invoice_date":string,"due_date":string,"total":number,"currency":string,"line_items":[{"description":string,"quantity":number,"unit_price":number,"amount":number}]}`,
	model.DocTypeBankStatement: `You are a document extraction assistant. Extract structured data from bank statements.
Return a JSON object with this schema:
{"document_type":"bank_statement","account_number":string,"statement_period":string,"opening_balance":number,"closing_balance":number,"transactions":[{"date":string,"description":string,"amount":number,"balance":number}]}`,
	model.DocTypePayment: `You are a document extraction assistant. Extract structured data from payment records.
Return a JSON object with this schema:
{"document_type":"payment","payer":string,"payee":string,"amount":number,"currency":string,"payment_date":string,"method":string,"reference":string}`,
	model.DocTypeReceipt: `You are a document extraction assistant. Extract structured data from receipts.
Return a JSON object with this schema:
{"document_type":"receipt","merchant":string,"date":string,"total":number,"tax":number,"currency":string,"items":[{"name":string,"price":number,"quantity":number}]}`,
	model.DocTypeOther: `You are a document extraction assistant. Extract any structured data you can identify from this document.
Return a JSON object with this schema:
{"document_type":string,"summary":string,"fields":object}`,
}

// SystemPrompt returns the system prompt for docType, falling back to the
// generic "other" prompt for an unrecognized type.
func SystemPrompt(docType model.DocumentType) string {
	if p, ok := systemPrompts[docType]; ok {
		return p
	}
	return systemPrompts[model.DocTypeOther]
}

// UserPrompt wraps extracted document text with a single-line instruction.
func UserPrompt(text string) string {
	return fmt.Sprintf("Extract the structured data from the following document text:\n\n%s", text)
}

// VisionUserPrompt parameterizes the user prompt for a single rendered
// page within a multi-page vision request.
func VisionUserPrompt(pageNum, totalPages int) string {
	return fmt.Sprintf("This is page %d of %d of a scanned document. Extract the structured data visible on this page.", pageNum, totalPages)
}

// MergePrompt concatenates prettified per-page JSON objects and instructs
// the model to deduplicate, preferring late-page totals. Used only for
// multi-page vision.
func MergePrompt(pageResultsJSON []string) string {
	combined := ""
	for i, r := range pageResultsJSON {
		combined += fmt.Sprintf("--- Page %d result ---\n%s\n\n", i+1, prettifyJSON(r))
	}
	return fmt.Sprintf(`You are given the per-page extraction results of a multi-page scanned document, in page order:

%s
Merge these into a single JSON object representing the whole document. Deduplicate repeated fields. When pages disagree on totals or balances, prefer the value from the later page. Return only the merged JSON object.`, combined)
}

// prettifyJSON indents raw as a JSON object for readability in the merge
// prompt; malformed input (already surfaced to the caller earlier in the
// pipeline) is passed through unchanged rather than dropped.
func prettifyJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
