package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"tdocflow/internal/api"
	"tdocflow/internal/config"
	"tdocflow/internal/logger"
	"tdocflow/internal/metrics"
	"tdocflow/internal/storage"
	"tdocflow/migrations"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
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

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Warn("temporal unavailable, workflow routes disabled", "address", cfg.TemporalAddress, "error", err)
		tc = nil
	} else {
		defer tc.Close()
	}

	h := api.NewServer(cfg, db, tc, log, metrics.New())
	log.Info("tdocflow api listening", "addr", cfg.APIAddr, "task_queue", cfg.TemporalTaskQueue)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal("api server stopped", "error", err)
	}
}
