package notification

import (
	"fmt"
	"io"
	"os"

	"github.com/gen2brain/beeep"

	"prsheet/internal/syncer"
)

// Notifier raises a desktop alert when a run fails.
type Notifier struct {
	enabled bool
	alert   func(title, message string, icon any) error
	console io.Writer
}

// New returns a notifier; a disabled one never alerts.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled, alert: beeep.Alert, console: os.Stdout}
}

// RunFailed alerts for res if it failed. Successful runs are silent.
func (n *Notifier) RunFailed(res syncer.Result) error {
	if !n.enabled || res.Failure == nil {
		return nil
	}
	title := "prsheet sync failed"
	if res.Outcome() == "canceled" {
		title = "prsheet sync canceled"
	}
	return n.Send(title, fmt.Sprintf("Stopped in %s: %v", res.Failure.Phase, res.Failure.Cause))
}

// Send sends a desktop notification and plays a beep sound
func (n *Notifier) Send(title, message string) error {
	// beeep.Alert sends a notification and plays a beep sound
	err := n.alert(title, message, "")
	if err != nil {
		// Fallback to console if notification fails
		fmt.Fprintf(n.console, "\n🔔 %s: %s\n", title, message)
		return err
	}
	return nil
}
