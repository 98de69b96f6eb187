package domain

import "time"

// RunReport is the explicit result of one ingestion run, returned to the
// caller instead of being kept in process-wide state.
type RunReport struct {
	StartedAt time.Time
	Attempted int
	Failed    int
	Inserted  int
	Err       error
}

// ExitCode maps the report onto the process exit contract: 0 when every
// source succeeded, 1 when at least one failed.
func (r RunReport) ExitCode() int {
	if r.Failed > 0 || r.Err != nil {
		return 1
	}
	return 0
}
