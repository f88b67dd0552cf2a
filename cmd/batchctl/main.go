// Command batchctl drives the core pipeline from the command line,
// without the HTTP surface cmd/apiserver wraps around it: create a
// batch from local files, process it, and write the export to disk.
// Grounded on services/rule-worker/main.go's hand-rolled flag parsing
// and signal-handling bootstrap.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/freedkr/docbatch/internal/blobstore"
	"github.com/freedkr/docbatch/internal/blockingpool"
	"github.com/freedkr/docbatch/internal/broadcast"
	"github.com/freedkr/docbatch/internal/config"
	"github.com/freedkr/docbatch/internal/decode"
	"github.com/freedkr/docbatch/internal/export"
	"github.com/freedkr/docbatch/internal/llmclient"
	"github.com/freedkr/docbatch/internal/model"
	"github.com/freedkr/docbatch/internal/orchestrator"
	"github.com/freedkr/docbatch/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	name := flag.String("name", "", "batch name")
	format := flag.String("format", "json", "export format: json, csv, excel")
	out := flag.String("out", "", "output file path (default: stdout)")
	flag.Parse()

	files := flag.Args()
	if *name == "" || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: batchctl -name <batch name> [-format json|csv|excel] [-out path] file [file...]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *name, files, export.Format(*format), *out); err != nil {
		log.Fatalf("batchctl: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, name string, files []string, format export.Format, out string) error {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blob, err := blobstore.New(cfg.UploadDir, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	hub := broadcast.New(nil)
	llm := llmclient.New(llmclient.Settings{
		APIURL:          cfg.LLM.APIURL,
		APIKey:          cfg.LLM.APIKey,
		ModelName:       cfg.LLM.ModelName,
		VisionModelName: cfg.LLM.VisionModelName,
		ContextSize:     cfg.LLM.ContextSize,
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
		VisionDPI:       cfg.LLM.VisionDPI,
		VisionMaxPages:  cfg.LLM.VisionMaxPages,
	})
	pool := blockingpool.New(cfg.MaxConcurrent)
	orch := orchestrator.New(st, pool, hub, llm, cfg.MaxConcurrent,
		decode.NewPDFTextFunc(""), decode.NewImageDimensionFunc(), "")

	batch, err := st.CreateBatch(ctx, name, llm.Settings().ModelName)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	log.Printf("created batch %s (%q)", batch.ID, batch.Name)

	for _, path := range files {
		if err := addFile(ctx, st, blob, batch.ID, path); err != nil {
			return fmt.Errorf("add file %s: %w", path, err)
		}
	}
	if err := st.SetTotalFiles(ctx, batch.ID, len(files)); err != nil {
		return fmt.Errorf("set total files: %w", err)
	}

	sub := hub.Subscribe(batch.ID)
	defer sub.Close()
	go func() {
		for ev := range sub.Events() {
			log.Printf("progress: %s %s/%s %d/%d (failed %d)",
				ev.Status, ev.DocumentName, ev.DocumentID, ev.Processed, ev.Total, ev.Failed)
		}
	}()

	start := time.Now()
	if err := orch.ProcessBatch(ctx, batch.ID); err != nil {
		return fmt.Errorf("process batch: %w", err)
	}
	log.Printf("batch %s processed in %v", batch.ID, time.Since(start))

	return writeExport(ctx, st, batch.ID, format, out)
}

func addFile(ctx context.Context, st store.Store, blob *blobstore.Store, batchID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return model.NewIoError("open input file", err)
	}
	defer f.Close()

	savedPath, size, err := blob.Save(ctx, batchID, filepath.Base(path), f, "")
	if err != nil {
		return err
	}
	_, err = st.CreateDocument(ctx, batchID, filepath.Base(savedPath), filepath.Base(path), "", size, savedPath)
	return err
}

func writeExport(ctx context.Context, st store.Store, batchID string, format export.Format, out string) error {
	batch, err := st.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	extractions, err := st.ListExtractionsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	docs, err := st.ListDocumentsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	docByID := make(map[string]*model.Document, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	data, err := export.Export(batch, extractions, docByID, format)
	if err != nil {
		return err
	}

	if out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0o644)
}
