package config

import (
	"time"

	"github.com/trickpatty/hearthsync/pkg/service/scheduler"
	"github.com/urfave/cli/v3"
)

// Scheduler holds CLI flags for the sync scheduler
type Scheduler struct {
	tick         time.Duration
	fetchTimeout time.Duration
}

// Flags returns CLI flags for scheduler configuration
func (s *Scheduler) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "scheduler-tick",
			Usage:       "Interval between due-connection scans",
			Category:    "Scheduler",
			Value:       time.Minute,
			Sources:     cli.EnvVars("HEARTHSYNC_SCHEDULER_TICK"),
			Destination: &s.tick,
		},
		&cli.DurationFlag{
			Name:        "fetch-timeout",
			Usage:       "Deadline for a single provider fetch",
			Category:    "Scheduler",
			Value:       2 * time.Minute,
			Sources:     cli.EnvVars("HEARTHSYNC_FETCH_TIMEOUT"),
			Destination: &s.fetchTimeout,
		},
	}
}

// Options converts the flags into scheduler options
func (s *Scheduler) Options() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithTick(s.tick),
		scheduler.WithFetchTimeout(s.fetchTimeout),
	}
}
