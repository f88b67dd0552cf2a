package classify

import (
	"testing"

	"github.com/freedkr/docbatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		name, text string
		want       model.DocumentType
	}{
		{"invoice number wins first", "Invoice Number 42, total due with balance and credit", model.DocTypeInvoice},
		{"bank statement balance+debit", "Monthly Account Statement: balance and debit summary", model.DocTypeBankStatement},
		{"payment keyword", "Payment received, amount due is zero", model.DocTypePayment},
		{"receipt total+tax", "Thank you, here is your receipt. total and tax included", model.DocTypeReceipt},
		{"other fallback", "Just some random memo text with nothing special", model.DocTypeOther},
		{"case insensitive", "INVOICE #42 total 100 USD", model.DocTypeInvoice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.text))
		})
	}
}

func TestClassifyBankStatementRequiresBothTerms(t *testing.T) {
	assert.Equal(t, model.DocTypeOther, Classify("balance of power in the region"))
}

func TestClassifyReceiptRequiresBothTerms(t *testing.T) {
	assert.Equal(t, model.DocTypeOther, Classify("total eclipse of the heart"))
}
