// Package scheduler provides the periodic task runner used for
// audit-log retention sweeps.
package scheduler

import "errors"

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
