// Command apiserver is the thin HTTP adapter over the core pipeline
// (spec.md §1 places the HTTP surface, multipart parsing, and CORS
// middleware outside the core's scope). Grounded on
// services/api-server/main.go's NewServer/setupRoutes/Start shape and
// services/api-server/handlers/handlers.go's handler style.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/freedkr/docbatch/internal/blobstore"
	"github.com/freedkr/docbatch/internal/blockingpool"
	"github.com/freedkr/docbatch/internal/broadcast"
	"github.com/freedkr/docbatch/internal/config"
	"github.com/freedkr/docbatch/internal/decode"
	"github.com/freedkr/docbatch/internal/llmclient"
	"github.com/freedkr/docbatch/internal/orchestrator"
	"github.com/freedkr/docbatch/internal/store"
)

// Server bundles the wired core collaborators behind the HTTP surface.
type Server struct {
	cfg          *config.Config
	store        store.Store
	blob         *blobstore.Store
	hub          *broadcast.Hub
	llm          *llmclient.Client
	orchestrator *orchestrator.Orchestrator
	router       *gin.Engine
}

// NewServer wires every core collaborator from cfg, matching
// services/api-server/main.go's NewServer: dial storage, build the
// handlers, register routes.
func NewServer(cfg *config.Config) (*Server, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	blob, err := blobstore.New(cfg.UploadDir, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	hub := broadcast.New(redisClient)

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

	s := &Server{cfg: cfg, store: st, blob: blob, hub: hub, llm: llm, orchestrator: orch}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), corsMiddleware(), requestIDMiddleware())
	s.router = router

	h := &handlers{srv: s}
	h.registerRoutes(router)

	return s, nil
}

func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.APIServerPort)
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then drains
// in-flight requests, mirroring services/api-server/main.go's Start.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:    s.Addr(),
		Handler: s.router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[apiserver] listening on %s", s.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[apiserver] listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[apiserver] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
