// Command features runs the cell telemetry feature pipeline: it optionally
// ingests a CSV export, then computes feature rows for the stored sample span,
// once or on a loop. The migrate subcommand manages the database schema.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/cellular.report/internal/config"
	"github.com/banshee-data/cellular.report/internal/db"
	"github.com/banshee-data/cellular.report/internal/features"
	"github.com/banshee-data/cellular.report/internal/ingest"
	"github.com/banshee-data/cellular.report/internal/version"
)

var (
	dbFile     = flag.String("db", "telemetry.db", "Path to the sqlite database")
	configFile = flag.String("config", "", "Optional pipeline config JSON file")
	csvFile    = flag.String("csv", "", "Ingest this CSV export before computing features")
	loop       = flag.Bool("loop", false, "Run continuously instead of a single pass")
	interval   = flag.Duration("interval", 0, "Sleep between loop passes (overrides config)")
	listen     = flag.String("listen", "", "Optional admin HTTP listen address (e.g. :8080)")
)

func main() {
	flag.Parse()
	log.Printf("cell-features %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	cfg := config.EmptyFeatureConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFeatureConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.ApplyEnv()
	if *interval > 0 {
		s := interval.String()
		cfg.LoopInterval = &s
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *csvFile != "" {
		n, err := ingest.IngestCSV(ctx, store, *csvFile)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", *csvFile, err)
		}
		log.Printf("Ingested %d samples from %s", n, *csvFile)
	}

	pipeline := features.NewPipeline(store, cfg)

	var wg sync.WaitGroup

	// pipeline goroutine; a single pass also stops the admin server when done
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *loop {
			if err := pipeline.RunLoop(ctx); err != nil && err != context.Canceled {
				log.Printf("pipeline loop terminated: %v", err)
			}
			return
		}
		summary, err := pipeline.Run(ctx)
		if err != nil && err != context.Canceled {
			log.Printf("pipeline pass failed: %v", err)
		} else if summary != nil && summary.Failed > 0 {
			log.Printf("pipeline pass finished with %d failed chunks", summary.Failed)
		}
		stop()
	}()

	// admin HTTP server goroutine (debug routes and live SQL)
	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			store.AttachAdminRoutes(mux)

			server := &http.Server{
				Addr:    *listen,
				Handler: mux,
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
