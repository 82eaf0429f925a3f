package session

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/crossforge/crossforge/pkg/logger"
)

// safeGroup wraps errgroup.Group with panic recovery so a panicking
// platform task cannot take down the rest of the session. Task outcomes
// travel through result slots, not group errors, which keeps the
// exactly-one-result-per-platform invariant independent of scheduling.
type safeGroup struct {
	group errgroup.Group
	log   logger.Logger
}

func newSafeGroup(log logger.Logger) *safeGroup {
	return &safeGroup{log: log}
}

// SetLimit bounds the number of concurrently running tasks.
func (g *safeGroup) SetLimit(n int) {
	g.group.SetLimit(n)
}

// Go schedules fn, converting any panic into a logged error.
func (g *safeGroup) Go(fn func()) {
	g.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("platform task panicked",
					logger.WithField("panic", r),
					logger.WithField("stack", string(debug.Stack())))
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		fn()
		return nil
	})
}

// Wait blocks until every scheduled task has finished.
func (g *safeGroup) Wait() {
	if err := g.group.Wait(); err != nil {
		g.log.Error("session worker failed: " + err.Error())
	}
}
