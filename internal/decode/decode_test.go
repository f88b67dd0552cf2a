package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageDimensionFuncReadsHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")

	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	probe := NewImageDimensionFunc()
	w, h, err := probe(path)
	require.NoError(t, err)
	assert.Equal(t, 30, w)
	assert.Equal(t, 20, h)
}

func TestNewImageDimensionFuncMissingFile(t *testing.T) {
	probe := NewImageDimensionFunc()
	_, _, err := probe("/nonexistent/image.png")
	assert.Error(t, err)
}

func TestNewPDFTextFuncMissingFile(t *testing.T) {
	decoder := NewPDFTextFunc("pdftotext")
	_, _, err := decoder("/nonexistent/file.pdf")
	assert.Error(t, err)
}
