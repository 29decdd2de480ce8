// ./main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/JuliusBairaktaris/photosweep/cmd"
	"github.com/JuliusBairaktaris/photosweep/internal/observability"
)

const panicLogFile = "panic.log"

// osExit is a variable so tests can intercept process exit.
var osExit = os.Exit

func main() {
	defer handlePanic()
	defer observability.Sync()

	// Ctrl+C / SIGTERM cancel the context so the sweep stops between waits
	// and the browser still gets a graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown; the summary has already been printed.
			return
		}
		observability.Sync()
		osExit(1)
	}
}

// handlePanic writes crash details to a log file so a failed run leaves
// something to debug from.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}

	observability.Sync()
	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())

	if err := os.WriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(1)
		return
	}

	fmt.Fprintf(os.Stderr, "\nCRASH DETECTED. Details logged to %s\n", panicLogFile)
	osExit(1)
}
