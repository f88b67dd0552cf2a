package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchByContentType(t *testing.T) {
	cases := []struct {
		name, filename, contentType string
		want                        Kind
	}{
		{"pdf mime", "a.pdf", "application/pdf", Pdf},
		{"xlsx mime", "a.bin", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Excel},
		{"docx mime", "a.bin", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Word},
		{"image mime wildcard", "a.bin", "image/png", Image},
		{"csv mime", "a.bin", "text/csv", Excel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Dispatch(tc.filename, tc.contentType)
			assert.Equal(t, tc.want, got.Kind)
		})
	}
}

func TestDispatchFallsBackToExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     Kind
	}{
		{"report.pdf", Pdf},
		{"scan.jpeg", Image},
		{"sheet.xlsx", Excel},
		{"sheet.ods", Excel},
		{"doc.docx", Word},
		{"mystery.xyz", Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			got := Dispatch(tc.filename, "application/octet-stream")
			assert.Equal(t, tc.want, got.Kind)
		})
	}
}

func TestDispatchUnknownCarriesExtension(t *testing.T) {
	got := Dispatch("weird.foo", "")
	assert.Equal(t, Unknown, got.Kind)
	assert.Equal(t, "foo", got.Ext)
}

func TestDispatchContentTypeDominatesExtension(t *testing.T) {
	got := Dispatch("report.pdf", "image/png")
	assert.Equal(t, Image, got.Kind)
}
