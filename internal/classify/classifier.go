// Package classify implements the case-insensitive keyword classifier
// (spec.md §4.4) that tags extracted text with a document type.
package classify

import (
	"strings"

	"github.com/freedkr/docbatch/internal/model"
)

// Classify returns the document type for raw text, evaluating rules in
// fixed priority order; the first match wins.
func Classify(text string) model.DocumentType {
	lower := strings.ToLower(text)

	if containsAny(lower, "invoice", "faktura", "bill to", "invoice number", "inv no") {
		return model.DocTypeInvoice
	}
	if containsAny(lower, "bank statement", "account statement", "transaction history") ||
		(strings.Contains(lower, "balance") && (strings.Contains(lower, "debit") || strings.Contains(lower, "credit"))) {
		return model.DocTypeBankStatement
	}
	if containsAny(lower, "payment", "paid", "amount due") {
		return model.DocTypePayment
	}
	if containsAny(lower, "receipt", "cash register") ||
		(strings.Contains(lower, "total") && strings.Contains(lower, "tax")) {
		return model.DocTypeReceipt
	}
	return model.DocTypeOther
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
