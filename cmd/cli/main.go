package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pep299/repo-profiler/internal/config"
	"github.com/pep299/repo-profiler/internal/github"
	"github.com/pep299/repo-profiler/internal/handlers"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: cli <repository URL or owner/name>")
		os.Exit(1)
	}

	ref, err := github.ParseRef(os.Args[1])
	if err != nil {
		log.Fatalf("Invalid repository reference: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create server instance (contains all the clients)
	server, err := handlers.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeout)*time.Second)
	defer cancel()

	report, err := server.ProfileRepository(ctx, ref)
	if err != nil {
		log.Fatalf("Profiling failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatalf("Encoding report: %v", err)
	}
}
