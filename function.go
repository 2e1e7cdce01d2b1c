// Package cloudfunctions exposes the repository profiler as an HTTP Cloud
// Function.
package cloudfunctions

import (
	"log"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/pep299/repo-profiler/internal/config"
	"github.com/pep299/repo-profiler/internal/handlers"
)

var (
	setupOnce sync.Once
	router    http.Handler
	setupErr  error
)

func init() {
	// Register HTTP function for the serverless deployment
	functions.HTTP("AnalyzeRepository", AnalyzeRepository)
}

// AnalyzeRepository is the HTTP entrypoint for the serverless deployment.
// Configuration and clients are built once per instance.
func AnalyzeRepository(w http.ResponseWriter, r *http.Request) {
	setupOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			setupErr = err
			return
		}

		server, err := handlers.NewServer(cfg)
		if err != nil {
			setupErr = err
			return
		}

		router = server.SetupRoutes()
	})

	if setupErr != nil {
		log.Printf("Failed to initialize function: %v", setupErr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	router.ServeHTTP(w, r)
}
