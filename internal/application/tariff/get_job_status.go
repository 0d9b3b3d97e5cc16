package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type GetJobStatusInput struct {
	JobID string
}

type JobStatsOutput struct {
	Created     int64 `json:"created"`
	Updated     int64 `json:"updated"`
	Skipped     int64 `json:"skipped"`
	Errors      int64 `json:"errors"`
	Quarantined int64 `json:"quarantined"`
}

type GetJobStatusOutput struct {
	JobID          string         `json:"job_id"`
	ProviderID     string         `json:"provider_id"`
	State          string         `json:"state"`
	Mode           string         `json:"mode"`
	Progress       float64        `json:"progress"`
	ProgressTotal  int64          `json:"progress_total"`
	ProgressStatus string         `json:"progress_status,omitempty"`
	Stats          JobStatsOutput `json:"stats"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

type GetJobStatus interface {
	Execute(ctx context.Context, in GetJobStatusInput) (GetJobStatusOutput, error)
}

type jobGetter interface {
	GetByID(ctx context.Context, jobID string) (domain.ImportJob, error)
}

type getJobStatus struct {
	jobs jobGetter
}

func NewGetJobStatus(jobs jobGetter) GetJobStatus {
	return &getJobStatus{jobs: jobs}
}

func (uc *getJobStatus) Execute(ctx context.Context, in GetJobStatusInput) (GetJobStatusOutput, error) {
	if !idPattern.MatchString(in.JobID) {
		return GetJobStatusOutput{}, ErrInvalidJobID
	}

	job, err := uc.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GetJobStatusOutput{}, ErrJobNotFound
		}
		return GetJobStatusOutput{}, fmt.Errorf("%w: %v", ErrGetJobStatus, err)
	}

	return GetJobStatusOutput{
		JobID:          job.ID,
		ProviderID:     job.ProviderID,
		State:          string(job.State),
		Mode:           string(job.Mode),
		Progress:       job.Progress,
		ProgressTotal:  job.ProgressTotal,
		ProgressStatus: job.ProgressStatus,
		Stats: JobStatsOutput{
			Created:     job.Stats.Created,
			Updated:     job.Stats.Updated,
			Skipped:     job.Stats.Skipped,
			Errors:      job.Stats.Errors,
			Quarantined: job.Stats.Quarantined,
		},
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		NextRetryAt: job.NextRetryAt,
		LastError:   job.LastError,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
		DurationMS:  job.Duration().Milliseconds(),
	}, nil
}
