package prompt

import (
	"testing"

	"github.com/freedkr/docbatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSystemPromptKnownTypes(t *testing.T) {
	for _, dt := range []model.DocumentType{
		model.DocTypeInvoice, model.DocTypeBankStatement, model.DocTypePayment,
		model.DocTypeReceipt, model.DocTypeOther,
	} {
		p := SystemPrompt(dt)
		want := string(dt)
		if dt == model.DocTypeOther {
			// The generic prompt leaves document_type for the model to fill in.
			want = `"document_type":string`
		}
		assert.Contains(t, p, want)
	}
}

func TestSystemPromptUnknownFallsBackToOther(t *testing.T) {
	p := SystemPrompt(model.DocumentType("bogus"))
	assert.Equal(t, systemPrompts[model.DocTypeOther], p)
}

func TestUserPromptWrapsText(t *testing.T) {
	p := UserPrompt("Invoice #42")
	assert.Contains(t, p, "Invoice #42")
}

func TestVisionUserPromptIncludesPageNumbers(t *testing.T) {
	p := VisionUserPrompt(2, 5)
	assert.Contains(t, p, "page 2 of 5")
}

func TestMergePromptConcatenatesPages(t *testing.T) {
	p := MergePrompt([]string{`{"a":1}`, `{"a":2}`})
	assert.Contains(t, p, "{\n  \"a\": 1\n}")
	assert.Contains(t, p, "{\n  \"a\": 2\n}")
	assert.Contains(t, p, "later page")
}
