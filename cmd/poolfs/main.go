// Command poolfs runs the content pool maintenance daemon: it opens the
// configured pool and index and sweeps the trash on the configured
// schedule. With -once it performs a single sweep and exits, which suits
// cron-style deployments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/pkg/config"
	"github.com/poolfs/poolfs/pkg/gc"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override configured log level (DEBUG, INFO, WARN, ERROR)")
	once := flag.Bool("once", false, "Run a single sweep and exit")
	dryRun := flag.Bool("dry-run", false, "Log what a sweep would purge without purging")
	orphanScan := flag.Bool("orphan-scan", false, "Also sweep unreferenced active blobs into trash")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	setupLogging(&cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := config.CreatePool(ctx, &cfg.Pool)
	if err != nil {
		log.Fatalf("Failed to create pool: %v", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Pool close failed: %v", err)
		}
	}()

	idx, err := config.CreateIndex(ctx, &cfg.Index)
	if err != nil {
		log.Fatalf("Failed to create index: %v", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Warn("Index close failed: %v", err)
		}
	}()

	sweeperCfg := gc.Config{
		Enabled:      cfg.Sweeper.Enabled,
		Interval:     cfg.Sweeper.Interval,
		Retention:    cfg.Sweeper.Retention,
		OrphanScan:   cfg.Sweeper.OrphanScan || *orphanScan,
		DryRun:       *dryRun,
		OpsPerSecond: cfg.Sweeper.PurgeRate,
	}

	sweeper, err := gc.NewSweeper(p, idx, sweeperCfg)
	if err != nil {
		log.Fatalf("Failed to create sweeper: %v", err)
	}

	if *once {
		stats, err := sweeper.RunNow(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		fmt.Println(stats.Summary())
		return
	}

	if !sweeperCfg.Enabled {
		log.Fatal("Sweeper is disabled in the configuration; nothing to do (use -once for a manual sweep)")
	}

	sweeper.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received %s, shutting down...", sig)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sweeper.Stop(stopCtx); err != nil {
		logger.Error("Sweeper shutdown failed: %v", err)
	}
}

// setupLogging configures the process logger from the logging section.
func setupLogging(cfg *config.LoggingConfig) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file %s: %v", cfg.Output, err)
		}
		logger.SetOutput(f)
	}
}
