// Package decode provides the concrete external-collaborator
// implementations spec.md §6 leaves unspecified beyond a function
// signature: a PDF text decoder and an image dimension probe. Neither the
// teacher nor the rest of the example pack carries a PDF library, so the
// PDF decoder shells out to an external binary the same way
// internal/extract/render.go does for rasterization; the image probe uses
// the standard library, since decoding an image header needs nothing the
// ecosystem does better.
package decode

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/freedkr/docbatch/internal/extract"
)

// defaultPDFTextBin is the external binary pdfText invokes when no other
// is given, compatible with poppler's pdftotext CLI convention
// ("pdftotext -layout in -").
const defaultPDFTextBin = "pdftotext"

// NewPDFTextFunc returns an extract.PDFTextFunc that shells out to bin
// (or the default pdftotext) once to extract text, and reports a page
// count of one more than the number of form-feed characters in that
// output.
func NewPDFTextFunc(bin string) extract.PDFTextFunc {
	if bin == "" {
		bin = defaultPDFTextBin
	}
	return func(path string) (string, int, error) {
		return pdfText(context.Background(), bin, path)
	}
}

func pdfText(ctx context.Context, bin, path string) (string, int, error) {
	if _, err := os.Stat(path); err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", path, err)
	}

	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text from %s: %w", path, err)
	}

	text := string(out)
	pageCount := strings.Count(text, "\f") + 1
	return text, pageCount, nil
}

// NewImageDimensionFunc returns an extract.ImageDimensionFunc backed by
// the standard library's image.DecodeConfig, which only reads the
// header, not the full pixel buffer.
func NewImageDimensionFunc() extract.ImageDimensionFunc {
	return func(path string) (int, int, error) {
		f, err := os.Open(path)
		if err != nil {
			return 0, 0, fmt.Errorf("open image %s: %w", path, err)
		}
		defer f.Close()

		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return 0, 0, fmt.Errorf("decode image header %s: %w", path, err)
		}
		return cfg.Width, cfg.Height, nil
	}
}
