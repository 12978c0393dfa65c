package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Quentincami/aq-pivoter/internal/catalog"
	"github.com/Quentincami/aq-pivoter/internal/config"
	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/pivoter"
	"github.com/Quentincami/aq-pivoter/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[main] aq-pivoter %s (%s)", pivoter.Version, pivoter.GitSHA)

	cfg := config.MustLoad()

	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})

	metrics.Init("aq_pivoter")
	if cfg.Metrics.Enabled {
		go func() {
			log.Printf("[main] metrics server listening on %s", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Printf("[main] metrics server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Printf("[shutdown] received signal: %v", sig)
		cancel()
	}()

	store, err := storage.NewStore(storage.StorageConfig{
		Backend:    cfg.Storage.Backend,
		Bucket:     cfg.Storage.Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		LocalDir:   cfg.Storage.LocalDir,
	})
	if err != nil {
		log.Fatalf("[main] failed to create storage: %v", err)
	}
	defer store.Close()

	led := ledger.NewFileLedger(cfg.LedgerPath())
	if err := led.EnsureParent(); err != nil {
		log.Fatalf("[main] failed to prepare state dir: %v", err)
	}

	cat, err := catalog.NewWriter(catalog.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		log.Fatalf("[main] failed to connect catalog: %v", err)
	}
	defer cat.Close()

	p := pivoter.New(cfg, store, led, cat)

	rep, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("[main] shutdown complete")
			return
		}
		log.Fatalf("[main] pivoter failed: %v", err)
	}

	// Residual failures stay in the ledger for a future run; they do
	// not change the exit code.
	if len(rep.Residual) > 0 {
		log.Printf("[main] finished with %d residual failures, see %s", len(rep.Residual), cfg.LedgerPath())
	} else {
		log.Println("[main] finished cleanly")
	}
}
