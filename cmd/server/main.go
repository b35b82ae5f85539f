package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maikyonn/optimat-core/internal/api"
	"github.com/maikyonn/optimat-core/internal/config"
	"github.com/maikyonn/optimat-core/internal/core"
	"github.com/maikyonn/optimat-core/internal/integrations/googlemaps"
	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/replay"
	"github.com/maikyonn/optimat-core/internal/store"
	"github.com/maikyonn/optimat-core/internal/tools"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for provider fixture ingestion
	ingestFlag := flag.String("ingest", "", "Load the provider fixture at the given path and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Handle provider ingestion if flag is set
	if *ingestFlag != "" {
		log.Printf("Ingesting providers from %s...", *ingestFlag)
		numIngested, err := dbStore.IngestProvidersFromFile(context.Background(), *ingestFlag)
		if err != nil {
			log.Fatalf("Provider ingestion failed: %v", err)
		}
		log.Printf("Provider ingestion complete. Ingested %d providers. Exiting.", numIngested)
		os.Exit(0)
	}

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Initialize Google Maps client
	mapsClient, err := googlemaps.NewClient(config.AppConfig.MapsAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize maps client: %v", err)
	}

	// Initialize matching engine and the tool dispatcher around it
	engine := match.NewEngine(dbStore, mapsClient, mapsClient,
		config.AppConfig.MatchIncludeUnzoned, config.AppConfig.MatchRequireDate)
	dispatcher := tools.NewDispatcher(
		tools.NewProviderSearchTool(engine),
		tools.NewAddressSearchTool(mapsClient),
		tools.NewProviderInfoTool(dbStore),
		tools.NewWebSearchTool(llmService),
	)

	// Initialize turn orchestrator and replay service
	orchestrator := core.NewOrchestrator(dbStore, llmService, dispatcher, config.AppConfig.MaxToolRounds)
	replayService := replay.NewService(dbStore)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, orchestrator, replayService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish before forcing the exit.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
