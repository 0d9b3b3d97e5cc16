package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
	"github.com/tariffio/tariff-import/internal/infrastructure/db/models"
)

type ImportJobRepository struct {
	db *gorm.DB
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

func (r *ImportJobRepository) Create(ctx context.Context, providerID string, mode tariff.ImportMode, maxRetries int) (string, error) {
	job := models.ImportJob{
		ProviderID: providerID,
		State:      string(tariff.JobPending),
		Mode:       string(mode),
		MaxRetries: maxRetries,
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("create import job: %w", err)
	}
	return job.ID, nil
}

func (r *ImportJobRepository) GetByID(ctx context.Context, jobID string) (tariff.ImportJob, error) {
	var row models.ImportJob
	err := r.db.WithContext(ctx).First(&row, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tariff.ImportJob{}, fmt.Errorf("%w: job %s", tariff.ErrNotFound, jobID)
		}
		return tariff.ImportJob{}, fmt.Errorf("get job by id: %w", err)
	}
	return jobFromModel(row), nil
}

// HasActiveJob reports whether the provider already has a job that is
// not in a terminal state.
func (r *ImportJobRepository) HasActiveJob(ctx context.Context, providerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("provider_id = ? AND state IN ?", providerID, activeStates()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count active jobs: %w", err)
	}
	return count > 0, nil
}

// Start claims a runnable job for this attempt. The guard on state makes
// the claim safe against a concurrent tick; false means someone else got
// there first or the job moved on.
func (r *ImportJobRepository) Start(ctx context.Context, jobID string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, started_at = COALESCE(started_at, NOW()), progress_at = NOW(), next_retry_at = NULL, updated_at = NOW()
WHERE id = ? AND state IN ?`,
		string(tariff.JobRunning), jobID, runnableStates(),
	)
	if res.Error != nil {
		return false, fmt.Errorf("start job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress writes one checkpoint: monotonic row position, additive
// stats delta, and the progress fields the sweeps watch. It returns the
// current cancel flag so the runner learns about cancel requests at
// chunk boundaries without an extra query.
func (r *ImportJobRepository) UpdateProgress(ctx context.Context, jobID string, checkpointRow int64, checkpointData string, progress float64, progressTotal int64, status string, delta tariff.JobStats) (bool, error) {
	var cancelRequested bool
	err := r.db.WithContext(ctx).Raw(`
UPDATE tariff_import_jobs
SET checkpoint_row = ?,
    checkpoint_data = ?,
    progress = ?,
    progress_total = ?,
    progress_status = ?,
    created_count = created_count + ?,
    updated_count = updated_count + ?,
    skipped_count = skipped_count + ?,
    error_count = error_count + ?,
    quarantined_count = quarantined_count + ?,
    progress_at = NOW(),
    updated_at = NOW()
WHERE id = ? AND state = ?
RETURNING cancel_requested`,
		checkpointRow, checkpointData, progress, progressTotal, status,
		delta.Created, delta.Updated, delta.Skipped, delta.Errors, delta.Quarantined,
		jobID, string(tariff.JobRunning),
	).Scan(&cancelRequested).Error
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}
	return cancelRequested, nil
}

func (r *ImportJobRepository) Complete(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, progress = 100, finished_at = NOW(), last_error = NULL, updated_at = NOW()
WHERE id = ? AND state = ?`,
		string(tariff.JobDone), jobID, string(tariff.JobRunning),
	)
	if res.Error != nil {
		return fmt.Errorf("complete job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not running", tariff.ErrNotFound, jobID)
	}
	return nil
}

// Requeue books a failed attempt that still has retry budget: the retry
// counter goes up and the job waits for next_retry_at.
func (r *ImportJobRepository) Requeue(ctx context.Context, jobID, reason string, nextRetryAt time.Time) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, retry_count = retry_count + 1, next_retry_at = ?, last_error = ?, updated_at = NOW()
WHERE id = ? AND state = ?`,
		string(tariff.JobRetryPending), nextRetryAt, reason, jobID, string(tariff.JobRunning),
	)
	if res.Error != nil {
		return fmt.Errorf("requeue job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not running", tariff.ErrNotFound, jobID)
	}
	return nil
}

// Fail is the terminal variant of Requeue for an exhausted budget.
func (r *ImportJobRepository) Fail(ctx context.Context, jobID, reason string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, retry_count = retry_count + 1, next_retry_at = NULL, last_error = ?, finished_at = NOW(), updated_at = NOW()
WHERE id = ? AND state = ?`,
		string(tariff.JobFailed), reason, jobID, string(tariff.JobRunning),
	)
	if res.Error != nil {
		return fmt.Errorf("fail job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not running", tariff.ErrNotFound, jobID)
	}
	return nil
}

// Pause parks a running job without touching the retry budget; the next
// tick picks it back up.
func (r *ImportJobRepository) Pause(ctx context.Context, jobID, status string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, progress_status = ?, updated_at = NOW()
WHERE id = ? AND state = ?`,
		string(tariff.JobPaused), status, jobID, string(tariff.JobRunning),
	)
	if res.Error != nil {
		return fmt.Errorf("pause job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not running", tariff.ErrNotFound, jobID)
	}
	return nil
}

// RequestCancel flips the cooperative cancel flag; the runner honors it
// at the next chunk boundary.
func (r *ImportJobRepository) RequestCancel(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET cancel_requested = TRUE, updated_at = NOW()
WHERE id = ? AND state NOT IN ?`,
		jobID, terminalStates(),
	)
	if res.Error != nil {
		return fmt.Errorf("request cancel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not cancelable", tariff.ErrNotFound, jobID)
	}
	return nil
}

// ForceRetry resets the retry budget of a failed job and requeues it for
// the next tick.
func (r *ImportJobRepository) ForceRetry(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_jobs
SET state = ?, retry_count = 0, next_retry_at = NOW(), finished_at = NULL, cancel_requested = FALSE, updated_at = NOW()
WHERE id = ? AND state = ?`,
		string(tariff.JobRetryPending), jobID, string(tariff.JobFailed),
	)
	if res.Error != nil {
		return fmt.Errorf("force retry job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not failed", tariff.ErrNotFound, jobID)
	}
	return nil
}

// DueJobs returns the next batch to run: oldest pending first, then
// retries whose backoff elapsed, then paused jobs, each capped
// separately.
func (r *ImportJobRepository) DueJobs(ctx context.Context, pendingLimit, retryLimit, pausedLimit int) ([]tariff.ImportJob, error) {
	var pending []models.ImportJob
	err := r.db.WithContext(ctx).
		Where("state = ? AND cancel_requested = FALSE", string(tariff.JobPending)).
		Order("created_at ASC").
		Limit(pendingLimit).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	var retries []models.ImportJob
	err = r.db.WithContext(ctx).
		Where("state = ? AND next_retry_at IS NOT NULL AND next_retry_at <= NOW()", string(tariff.JobRetryPending)).
		Order("next_retry_at ASC").
		Limit(retryLimit).
		Find(&retries).Error
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}

	var paused []models.ImportJob
	err = r.db.WithContext(ctx).
		Where("state = ?", string(tariff.JobPaused)).
		Order("updated_at ASC").
		Limit(pausedLimit).
		Find(&paused).Error
	if err != nil {
		return nil, fmt.Errorf("list paused jobs: %w", err)
	}

	var out []tariff.ImportJob
	for _, batch := range [][]models.ImportJob{pending, retries, paused} {
		for _, row := range batch {
			out = append(out, jobFromModel(row))
		}
	}
	return out, nil
}

// ForceCompleteNearDone finishes running jobs that sat at the end of
// their work without reaching the terminal write.
func (r *ImportJobRepository) ForceCompleteNearDone(ctx context.Context, minProgress float64, grace time.Duration) ([]string, error) {
	return r.sweep(ctx, `
UPDATE tariff_import_jobs
SET state = ?, progress = 100, finished_at = NOW(), updated_at = NOW()
WHERE state = ? AND progress >= ? AND progress_at < NOW() - (? * INTERVAL '1 second')
RETURNING id`,
		string(tariff.JobDone), string(tariff.JobRunning), minProgress, grace.Seconds(),
	)
}

// DemoteStale books a failed attempt for running jobs whose progress
// writes stopped: budget left sends them to retry_pending, otherwise
// they fail for good.
func (r *ImportJobRepository) DemoteStale(ctx context.Context, olderThan, backoff time.Duration, reason string) ([]string, error) {
	return r.sweep(ctx, `
UPDATE tariff_import_jobs
SET retry_count = retry_count + 1,
    state = CASE WHEN retry_count + 1 < max_retries THEN ? ELSE ? END,
    next_retry_at = CASE WHEN retry_count + 1 < max_retries THEN NOW() + (? * INTERVAL '1 second') ELSE NULL END,
    finished_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE NOW() END,
    last_error = ?,
    updated_at = NOW()
WHERE state = ? AND progress_at < NOW() - (? * INTERVAL '1 second')
RETURNING id`,
		string(tariff.JobRetryPending), string(tariff.JobFailed), backoff.Seconds(),
		reason, string(tariff.JobRunning), olderThan.Seconds(),
	)
}

// ForceFailDead is the hard ceiling: no progress for this long fails the
// job regardless of budget.
func (r *ImportJobRepository) ForceFailDead(ctx context.Context, olderThan time.Duration, reason string) ([]string, error) {
	return r.sweep(ctx, `
UPDATE tariff_import_jobs
SET state = ?, next_retry_at = NULL, last_error = ?, finished_at = NOW(), updated_at = NOW()
WHERE state = ? AND progress_at < NOW() - (? * INTERVAL '1 second')
RETURNING id`,
		string(tariff.JobFailed), reason, string(tariff.JobRunning), olderThan.Seconds(),
	)
}

func (r *ImportJobRepository) sweep(ctx context.Context, query string, args ...any) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("job sweep: %w", err)
	}
	return ids, nil
}

func runnableStates() []string {
	return []string{
		string(tariff.JobPending),
		string(tariff.JobRetryPending),
		string(tariff.JobPaused),
	}
}

func activeStates() []string {
	return []string{
		string(tariff.JobPending),
		string(tariff.JobRunning),
		string(tariff.JobRetryPending),
		string(tariff.JobPaused),
	}
}

func terminalStates() []string {
	return []string{
		string(tariff.JobDone),
		string(tariff.JobFailed),
	}
}

func jobFromModel(row models.ImportJob) tariff.ImportJob {
	job := tariff.ImportJob{
		ID:             row.ID,
		ProviderID:     row.ProviderID,
		State:          tariff.JobState(row.State),
		Mode:           tariff.ImportMode(row.Mode),
		Progress:       row.Progress,
		ProgressTotal:  row.ProgressTotal,
		ProgressStatus: row.ProgressStatus,
		CheckpointRow:  row.CheckpointRow,
		CheckpointData: row.CheckpointData,
		RetryCount:     row.RetryCount,
		MaxRetries:     row.MaxRetries,
		NextRetryAt:    row.NextRetryAt,
		Stats: tariff.JobStats{
			Created:     row.CreatedCount,
			Updated:     row.UpdatedCount,
			Skipped:     row.SkippedCount,
			Errors:      row.ErrorCount,
			Quarantined: row.QuarantinedCount,
		},
		CancelRequested: row.CancelRequested,
		StartedAt:       row.StartedAt,
		FinishedAt:      row.FinishedAt,
		ProgressAt:      row.ProgressAt,
		CreatedAt:       row.CreatedAt,
	}
	if row.LastError != nil {
		job.LastError = *row.LastError
	}
	return job
}
