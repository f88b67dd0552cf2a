package main

import (
	"log"
	"os"

	"github.com/freedkr/docbatch/internal/config"
)

func main() {
	configPath := os.Getenv("DOCBATCH_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("create server: %v", err)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
