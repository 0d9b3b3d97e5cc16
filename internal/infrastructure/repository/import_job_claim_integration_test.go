package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
	"github.com/tariffio/tariff-import/internal/infrastructure/repository"
)

// The state guard on Start is what keeps two scheduler ticks from
// running the same job; hammer it from several goroutines and make sure
// only one claim wins.
func TestImportJobRepositoryConcurrentClaimIntegration(t *testing.T) {
	gormDB := openTestDB(t)
	ctx := context.Background()
	providerID := createTestProvider(t, gormDB, "claim-provider")
	repo := repository.NewImportJobRepository(gormDB)

	jobID, err := repo.Create(ctx, providerID, tariff.ModeStandard, 3)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	claims := make(chan bool, workers)
	claimErrs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Start(ctx, jobID)
			if err != nil {
				claimErrs <- err
				return
			}
			claims <- ok
		}()
	}
	wg.Wait()
	close(claims)
	close(claimErrs)

	for err := range claimErrs {
		t.Fatalf("start failed: %v", err)
	}
	won := 0
	for ok := range claims {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", won)
	}

	job, err := repo.GetByID(ctx, jobID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.State != tariff.JobRunning {
		t.Fatalf("expected running state, got %s", job.State)
	}
	if job.StartedAt == nil {
		t.Fatal("expected started timestamp")
	}
}
