package tariff_test

import (
	"context"
	"errors"
	"testing"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

func TestCancelJobFlagsRunningJob(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobStore{job: domain.ImportJob{ID: testJobID, State: domain.JobRunning}}
	uc := app.NewCancelJob(jobs)

	out, err := uc.Execute(context.Background(), app.CancelJobInput{JobID: testJobID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != "cancel_requested" {
		t.Fatalf("unexpected status: %s", out.Status)
	}
	if !jobs.cancelCalled {
		t.Fatal("expected a cancel flag update")
	}
}

func TestCancelJobRejectsFinishedJob(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobStore{job: domain.ImportJob{ID: testJobID, State: domain.JobDone}}
	uc := app.NewCancelJob(jobs)

	if _, err := uc.Execute(context.Background(), app.CancelJobInput{JobID: testJobID}); !errors.Is(err, app.ErrJobNotCancelable) {
		t.Fatalf("expected ErrJobNotCancelable, got %v", err)
	}
	if jobs.cancelCalled {
		t.Fatal("did not expect a cancel flag update")
	}
}

func TestCancelJobUnknownJob(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobStore{getErr: domain.ErrNotFound}
	uc := app.NewCancelJob(jobs)

	if _, err := uc.Execute(context.Background(), app.CancelJobInput{JobID: testJobID}); !errors.Is(err, app.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
