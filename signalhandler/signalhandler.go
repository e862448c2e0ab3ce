package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"imagetagger/logging"
)

// SetupHandler returns a context that is cancelled on the first SIGINT or
// SIGTERM so the scan can stop at a file boundary and flush its results.
// A second signal exits immediately.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() { close(stop) })
		cancel()
	}

	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 2)

	// Register for specific signals
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Handle signals in a separate goroutine
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.LogWarning("Received %v, finishing current image and writing results", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		// C libraries may block in a forward pass; let the user force it
		select {
		case <-sigChan:
			logging.LogError("Received second interrupt, exiting without final checkpoint")
			os.Exit(130)
		case <-stop:
		}
	}()

	return ctx, release
}

// GetOptimalProcs returns the number of native threads to give the inference runtime
func GetOptimalProcs() int {
	// Get the number of CPUs available
	numCPU := runtime.NumCPU()

	// Leave headroom for the walker and the Go runtime
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
