// Package notifier raises a desktop notification when a build session ends.
package notifier

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/types"
)

// Notifier sends session-completion notifications. Disabled by default;
// the CLI enables it with --notify.
type Notifier struct {
	enabled bool
	log     logger.Logger
}

// New creates a notifier.
func New(enabled bool, log logger.Logger) *Notifier {
	return &Notifier{enabled: enabled, log: log}
}

// SessionDone notifies about the session outcome. Notification failures
// are logged and otherwise ignored; they must never affect the exit status.
func (n *Notifier) SessionDone(session *types.BuildSession) {
	if !n.enabled || session == nil {
		return
	}

	total := len(session.Results)
	failed := session.FailureCount()

	var err error
	if failed == 0 {
		err = beeep.Notify("crossforge",
			fmt.Sprintf("%d platform builds succeeded", total), "")
	} else {
		err = beeep.Alert("crossforge",
			fmt.Sprintf("%d of %d platform builds failed", failed, total), "")
	}
	if err != nil {
		n.log.Debug("notification failed: " + err.Error())
	}
}
