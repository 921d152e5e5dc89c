// Package cron provides a job scheduler for periodic background tasks
// such as session cleanup and daily usage rollups.
package cron

import "context"

// Job is one recurring task the scheduler owns.
type Job interface {
	// Name identifies the job in logs and must be unique within a
	// scheduler.
	Name() string

	// Schedule returns the job's 5-field cron expression, for example
	// "*/5 * * * *".
	Schedule() string

	// Run does one execution. Long jobs should watch ctx, which is
	// cancelled when the scheduler stops.
	Run(ctx context.Context) error
}
