package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/collector"
	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/di"
	"github.com/devscan/linkshield/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	linkFilter ports.LinkFilter,
	coll *collector.Collector,
	cache core.VerdictCache,
) error {
	defer logger.Sync()

	// Start the filter
	if err := linkFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The browser closes the stream when the extension unloads
	if waiter, ok := linkFilter.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-sigCh:
		case <-waiter.Done():
		}
	} else {
		<-sigCh
	}
	logger.Info("Shutting down...")

	// Stop the filter
	if err := linkFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	// Stop the collector's background work
	coll.Stop()

	// Stop the cache if needed
	if stopper, ok := cache.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
