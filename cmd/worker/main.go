package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"tdocflow/internal/activities"
	"tdocflow/internal/config"
	"tdocflow/internal/logger"
	"tdocflow/internal/metrics"
	"tdocflow/internal/storage"
	"tdocflow/internal/workflows"
	"tdocflow/migrations"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		log.Fatal("apply migrations", "error", err)
	}

	m := metrics.New()
	if cfg.WorkerMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(cfg.WorkerMetricsAddr, mux); err != nil {
				log.Error("worker metrics server stopped", "error", err)
			}
		}()
	}

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, db, log, m))

	log.Info("tdocflow worker listening", "address", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", "error", err)
	}
}
