package tariff_test

import (
	"context"
	"errors"
	"testing"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

// fakeJobStore serves every job use case; a test sets only the knobs
// its path reads.
type fakeJobStore struct {
	job       domain.ImportJob
	getErr    error
	active    bool
	activeErr error
	createdID string
	createErr error
	retryErr  error
	cancelErr error

	createdMode    domain.ImportMode
	createdRetries int
	retryCalled    bool
	cancelCalled   bool
}

func (f *fakeJobStore) GetByID(ctx context.Context, jobID string) (domain.ImportJob, error) {
	if f.getErr != nil {
		return domain.ImportJob{}, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobStore) HasActiveJob(ctx context.Context, providerID string) (bool, error) {
	return f.active, f.activeErr
}

func (f *fakeJobStore) Create(ctx context.Context, providerID string, mode domain.ImportMode, maxRetries int) (string, error) {
	f.createdMode = mode
	f.createdRetries = maxRetries
	return f.createdID, f.createErr
}

func (f *fakeJobStore) ForceRetry(ctx context.Context, jobID string) error {
	f.retryCalled = true
	return f.retryErr
}

func (f *fakeJobStore) RequestCancel(ctx context.Context, jobID string) error {
	f.cancelCalled = true
	return f.cancelErr
}

type fakeProviderGetter struct {
	provider domain.Provider
	err      error
}

func (f *fakeProviderGetter) GetByID(ctx context.Context, id string) (domain.Provider, error) {
	if f.err != nil {
		return domain.Provider{}, f.err
	}
	return f.provider, nil
}

func TestCreateImportJobEnqueuesPending(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{ID: testProviderID, Active: true}}
	jobs := &fakeJobStore{createdID: "job-1"}
	uc := app.NewCreateImportJob(providers, jobs, 4)

	out, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.JobID != "job-1" || out.Status != "pending" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if jobs.createdMode != domain.ModeStandard {
		t.Fatalf("expected standard mode by default, got %s", jobs.createdMode)
	}
	if jobs.createdRetries != 4 {
		t.Fatalf("expected retry budget 4, got %d", jobs.createdRetries)
	}
}

func TestCreateImportJobPassesRequestedMode(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{ID: testProviderID, Active: true}}
	jobs := &fakeJobStore{createdID: "job-1"}
	uc := app.NewCreateImportJob(providers, jobs, 3)

	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID, Mode: "full"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobs.createdMode != domain.ModeFull {
		t.Fatalf("expected full mode, got %s", jobs.createdMode)
	}
}

func TestCreateImportJobValidatesInput(t *testing.T) {
	t.Parallel()

	uc := app.NewCreateImportJob(&fakeProviderGetter{}, &fakeJobStore{}, 3)

	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: "not-a-uuid"}); !errors.Is(err, app.ErrInvalidProviderID) {
		t.Fatalf("expected ErrInvalidProviderID, got %v", err)
	}
	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID, Mode: "bulk"}); !errors.Is(err, app.ErrInvalidImportMode) {
		t.Fatalf("expected ErrInvalidImportMode, got %v", err)
	}
}

func TestCreateImportJobUnknownProvider(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{err: domain.ErrNotFound}
	uc := app.NewCreateImportJob(providers, &fakeJobStore{}, 3)

	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID}); !errors.Is(err, app.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestCreateImportJobRejectsInactiveProvider(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{ID: testProviderID, Active: false}}
	uc := app.NewCreateImportJob(providers, &fakeJobStore{}, 3)

	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID}); !errors.Is(err, app.ErrProviderInactive) {
		t.Fatalf("expected ErrProviderInactive, got %v", err)
	}
}

func TestCreateImportJobRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{ID: testProviderID, Active: true}}
	jobs := &fakeJobStore{active: true}
	uc := app.NewCreateImportJob(providers, jobs, 3)

	if _, err := uc.Execute(context.Background(), app.CreateImportJobInput{ProviderID: testProviderID}); !errors.Is(err, app.ErrActiveJobExists) {
		t.Fatalf("expected ErrActiveJobExists, got %v", err)
	}
}
