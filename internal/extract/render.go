package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// RenderResult is the outcome of pdf_render_pages.
type RenderResult struct {
	Pages [][]byte // JPEG bytes, one per rendered page, in page order
}

// RenderPDFPages rasterizes up to maxPages pages of the PDF at path to
// JPEG at dpi, by invoking an external process — the teacher's own
// integration code shells out to sibling services the same way
// (internal/integration/pdf_llm_processor.go); here it is a rasterizer
// binary compatible with pdftoppm's "-jpeg -r <dpi> -f 1 -l N in out"
// convention (spec.md §6).
func RenderPDFPages(ctx context.Context, path string, dpi, maxPages int, bin string) (RenderResult, error) {
	if bin == "" {
		bin = "pdftoppm"
	}

	dir, err := os.MkdirTemp("", "docbatch-render-*")
	if err != nil {
		return RenderResult{}, fmt.Errorf("create render tempdir: %w", err)
	}
	defer os.RemoveAll(dir)

	outPrefix := filepath.Join(dir, "page")
	args := []string{
		"-jpeg",
		"-r", fmt.Sprintf("%d", dpi),
		"-f", "1",
		"-l", fmt.Sprintf("%d", maxPages),
		path,
		outPrefix,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return RenderResult{}, fmt.Errorf("rasterize %s: %w (%s)", path, err, string(out))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return RenderResult{}, fmt.Errorf("read render dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var pages [][]byte
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return RenderResult{}, fmt.Errorf("read rendered page %s: %w", name, err)
		}
		pages = append(pages, data)
		if len(pages) >= maxPages {
			break
		}
	}

	return RenderResult{Pages: pages}, nil
}
