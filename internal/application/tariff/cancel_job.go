package tariff

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type CancelJobInput struct {
	JobID string
}

type CancelJobOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type CancelJob interface {
	Execute(ctx context.Context, in CancelJobInput) (CancelJobOutput, error)
}

type jobCanceler interface {
	GetByID(ctx context.Context, jobID string) (domain.ImportJob, error)
	RequestCancel(ctx context.Context, jobID string) error
}

type cancelJob struct {
	jobs jobCanceler
}

func NewCancelJob(jobs jobCanceler) CancelJob {
	return &cancelJob{jobs: jobs}
}

func (uc *cancelJob) Execute(ctx context.Context, in CancelJobInput) (CancelJobOutput, error) {
	if !idPattern.MatchString(in.JobID) {
		return CancelJobOutput{}, ErrInvalidJobID
	}

	job, err := uc.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return CancelJobOutput{}, ErrJobNotFound
		}
		return CancelJobOutput{}, fmt.Errorf("%w: %v", ErrCancelJob, err)
	}
	if job.State.Terminal() {
		return CancelJobOutput{}, ErrJobNotCancelable
	}

	if err := uc.jobs.RequestCancel(ctx, in.JobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return CancelJobOutput{}, ErrJobNotCancelable
		}
		return CancelJobOutput{}, fmt.Errorf("%w: %v", ErrCancelJob, err)
	}

	return CancelJobOutput{
		JobID:  in.JobID,
		Status: "cancel_requested",
	}, nil
}
