package tariff

import "time"

type JobState string

const (
	JobPending      JobState = "pending"
	JobRunning      JobState = "running"
	JobDone         JobState = "done"
	JobFailed       JobState = "failed"
	JobRetryPending JobState = "retry_pending"
	JobPaused       JobState = "paused"
)

// Runnable reports whether the scheduler may hand the job to the runner.
func (s JobState) Runnable() bool {
	return s == JobPending || s == JobRetryPending || s == JobPaused
}

// Terminal reports whether the job has reached a final state.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed
}

type ImportMode string

const (
	ModeStandard       ImportMode = "standard"
	ModeFull           ImportMode = "full"
	ModeDelta          ImportMode = "delta"
	ModeRefreshContent ImportMode = "refresh_content"
)

func ValidImportMode(m ImportMode) bool {
	switch m {
	case ModeStandard, ModeFull, ModeDelta, ModeRefreshContent:
		return true
	}
	return false
}

// JobStats are cumulative across attempts: each attempt adds its delta to
// the previously persisted values, never resets them.
type JobStats struct {
	Created     int64
	Updated     int64
	Skipped     int64
	Errors      int64
	Quarantined int64
}

func (s JobStats) Add(d JobStats) JobStats {
	return JobStats{
		Created:     s.Created + d.Created,
		Updated:     s.Updated + d.Updated,
		Skipped:     s.Skipped + d.Skipped,
		Errors:      s.Errors + d.Errors,
		Quarantined: s.Quarantined + d.Quarantined,
	}
}

type ImportJob struct {
	ID         string
	ProviderID string
	State      JobState
	Mode       ImportMode

	Progress       float64
	ProgressTotal  int64
	ProgressStatus string

	// CheckpointRow counts fully processed data rows of the file named in
	// CheckpointData; it only moves forward within one attempt.
	CheckpointRow  int64
	CheckpointData string

	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	Stats     JobStats
	LastError string

	CancelRequested bool

	StartedAt  *time.Time
	FinishedAt *time.Time
	ProgressAt *time.Time
	CreatedAt  time.Time
}

// Duration returns the wall time between start and finish, or zero while
// either end is missing.
func (j ImportJob) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// RetryBudgetLeft reports whether a failing attempt may book another
// retry. Booking increments the counter, so the budget is exhausted
// after exactly MaxRetries failed attempts.
func (j ImportJob) RetryBudgetLeft() bool {
	return j.RetryCount+1 < j.MaxRetries
}
