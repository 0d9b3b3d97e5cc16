package tariff

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type ForceRetryJobInput struct {
	JobID string
}

type ForceRetryJobOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ForceRetryJob interface {
	Execute(ctx context.Context, in ForceRetryJobInput) (ForceRetryJobOutput, error)
}

type jobRetrier interface {
	GetByID(ctx context.Context, jobID string) (domain.ImportJob, error)
	ForceRetry(ctx context.Context, jobID string) error
}

type forceRetryJob struct {
	jobs jobRetrier
}

func NewForceRetryJob(jobs jobRetrier) ForceRetryJob {
	return &forceRetryJob{jobs: jobs}
}

func (uc *forceRetryJob) Execute(ctx context.Context, in ForceRetryJobInput) (ForceRetryJobOutput, error) {
	if !idPattern.MatchString(in.JobID) {
		return ForceRetryJobOutput{}, ErrInvalidJobID
	}

	job, err := uc.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ForceRetryJobOutput{}, ErrJobNotFound
		}
		return ForceRetryJobOutput{}, fmt.Errorf("%w: %v", ErrRetryJob, err)
	}
	if job.State != domain.JobFailed {
		return ForceRetryJobOutput{}, ErrJobNotRetryable
	}

	if err := uc.jobs.ForceRetry(ctx, in.JobID); err != nil {
		// The state guard in the update catches a job that moved on
		// between the read and the write.
		if errors.Is(err, domain.ErrNotFound) {
			return ForceRetryJobOutput{}, ErrJobNotRetryable
		}
		return ForceRetryJobOutput{}, fmt.Errorf("%w: %v", ErrRetryJob, err)
	}

	return ForceRetryJobOutput{
		JobID:  in.JobID,
		Status: string(domain.JobRetryPending),
	}, nil
}
