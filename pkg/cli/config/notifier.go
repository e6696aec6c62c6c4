package config

import (
	"time"

	"github.com/trickpatty/hearthsync/pkg/service/notify"
	"github.com/urfave/cli/v3"
)

// Notifier holds CLI flags for the change-notification fan-out
type Notifier struct {
	writeTimeout time.Duration
}

// Flags returns CLI flags for notifier configuration
func (n *Notifier) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "notify-write-timeout",
			Usage:       "Deadline for delivering one change message to a subscriber",
			Category:    "Notifier",
			Value:       notify.DefaultWriteTimeout,
			Sources:     cli.EnvVars("HEARTHSYNC_NOTIFY_WRITE_TIMEOUT"),
			Destination: &n.writeTimeout,
		},
	}
}

// WriteTimeout returns the configured subscriber write deadline
func (n *Notifier) WriteTimeout() time.Duration {
	return n.writeTimeout
}
