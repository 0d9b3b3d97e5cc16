package tariff

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

type CreateImportJobInput struct {
	ProviderID string
	Mode       string
}

type CreateImportJobOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type CreateImportJob interface {
	Execute(ctx context.Context, in CreateImportJobInput) (CreateImportJobOutput, error)
}

type providerGetter interface {
	GetByID(ctx context.Context, id string) (domain.Provider, error)
}

type jobCreator interface {
	HasActiveJob(ctx context.Context, providerID string) (bool, error)
	Create(ctx context.Context, providerID string, mode domain.ImportMode, maxRetries int) (string, error)
}

type createImportJob struct {
	providers  providerGetter
	jobs       jobCreator
	maxRetries int
}

func NewCreateImportJob(providers providerGetter, jobs jobCreator, maxRetries int) CreateImportJob {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &createImportJob{providers: providers, jobs: jobs, maxRetries: maxRetries}
}

func (uc *createImportJob) Execute(ctx context.Context, in CreateImportJobInput) (CreateImportJobOutput, error) {
	if !idPattern.MatchString(in.ProviderID) {
		return CreateImportJobOutput{}, ErrInvalidProviderID
	}
	mode := domain.ImportMode(in.Mode)
	if in.Mode == "" {
		mode = domain.ModeStandard
	}
	if !domain.ValidImportMode(mode) {
		return CreateImportJobOutput{}, ErrInvalidImportMode
	}

	p, err := uc.providers.GetByID(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return CreateImportJobOutput{}, ErrProviderNotFound
		}
		return CreateImportJobOutput{}, fmt.Errorf("%w: %v", ErrCreateJob, err)
	}
	if !p.Active {
		return CreateImportJobOutput{}, ErrProviderInactive
	}

	active, err := uc.jobs.HasActiveJob(ctx, p.ID)
	if err != nil {
		return CreateImportJobOutput{}, fmt.Errorf("%w: %v", ErrCreateJob, err)
	}
	if active {
		return CreateImportJobOutput{}, ErrActiveJobExists
	}

	jobID, err := uc.jobs.Create(ctx, p.ID, mode, uc.maxRetries)
	if err != nil {
		return CreateImportJobOutput{}, fmt.Errorf("%w: %v", ErrCreateJob, err)
	}

	return CreateImportJobOutput{
		JobID:  jobID,
		Status: string(domain.JobPending),
	}, nil
}
