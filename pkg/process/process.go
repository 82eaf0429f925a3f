// Package process ties OS signals to session cancellation.
package process

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crossforge/crossforge/pkg/logger"
)

// WithSignals derives a context that is cancelled on SIGINT or SIGTERM.
// A cancelled session marks its remaining tasks cancelled; their possibly
// partial output directories are excluded from assembly by the result gate.
// A second signal exits immediately.
func WithSignals(parent context.Context, log logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Warn("received signal, cancelling session",
				logger.WithField("signal", sig))
			cancel()
			<-sigCh
			log.Error("second signal, exiting")
			os.Exit(130)
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
