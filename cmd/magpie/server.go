package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/magpie/internal/backup"
	"github.com/tinytelemetry/magpie/internal/console"
	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/mcp"
	"github.com/tinytelemetry/magpie/internal/sources"
	"github.com/tinytelemetry/magpie/internal/sseserver"
	"github.com/tinytelemetry/magpie/internal/store"
	"github.com/tinytelemetry/magpie/internal/udpserver"
)

// runServer wires the store, ingestion plane, and transport together and
// blocks until a shutdown signal.
func runServer(cfg appConfig) error {
	logStore, err := store.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer logStore.Close()

	// The console view owns the terminal unless the legacy plain sink was
	// requested; when it does, diagnostics and the live tail share one
	// writer. The legacy mode keeps the default sink and has no live tail.
	if !cfg.LegacyConsole {
		cons := console.New()
		diag.SetSink(cons.DiagSink)
		logStore.Subscribe(cons.LogSubscriber)
		defer diag.SetSink(nil)
	}

	if count, err := logStore.Count(); err == nil {
		diag.Logf("Store", "Initialized with %d existing logs", count)
	}

	retention := store.NewRetentionCleaner(logStore, store.RetentionConfig{
		RetentionDays: cfg.LogRetention,
	})
	if retention != nil {
		defer retention.Stop()
	}

	backupManager, err := backup.NewManager(logStore, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeepLast,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	sourceManager := sources.NewManager(logStore)
	for _, tail := range cfg.Tails {
		if _, err := sourceManager.AddFile(tail.Path, tail.Name); err != nil {
			diag.Errorf("Main", "failed to start tailer: %v", err)
		}
	}

	udpServer := udpserver.NewServer(logStore, cfg.UDPPort)
	if err := udpServer.Start(); err != nil {
		sourceManager.StopAll()
		return fmt.Errorf("failed to start UDP receiver: %w", err)
	}

	dispatcher := mcp.NewDispatcher(logStore, sourceManager)

	sseServer := sseserver.NewServer(cfg.HTTPPort, cfg.CertFile, cfg.KeyFile)
	sseServer.SetMessageHandler(dispatcher.Dispatch)
	if err := sseServer.Start(); err != nil {
		udpServer.Stop()
		sourceManager.StopAll()
		return fmt.Errorf("failed to start transport: %w", err)
	}

	fmt.Println(console.Banner(console.BannerInfo{
		Version:  version,
		HTTPAddr: sseServer.Addr(),
		UDPAddr:  udpServer.Addr(),
		DBPath:   cfg.DBPath,
		TLS:      cfg.CertFile != "",
		Sources:  len(sourceManager.List()),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
			go func() {
				deadline := time.NewTimer(10 * time.Second)
				defer deadline.Stop()
				select {
				case <-sigCh:
					fmt.Println("\nForce shutdown.")
				case <-deadline.C:
					fmt.Println("Shutdown timed out, forcing exit.")
				}
				os.Exit(1)
			}()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		diag.Errorf("Main", "errgroup exited with error: %v", err)
	}
	cancel()

	// Producers stop before the store; the transport stops before the
	// dispatcher goes away with it.
	diag.Log("Main", "Stopping services...")
	sourceManager.StopAll()
	udpServer.Stop()
	if err := sseServer.Stop(); err != nil {
		diag.Errorf("Main", "transport shutdown: %v", err)
	}

	if count, err := logStore.Count(); err == nil {
		diag.Logf("Main", "Shutdown complete. Total logs: %d", count)
	}
	return nil
}
