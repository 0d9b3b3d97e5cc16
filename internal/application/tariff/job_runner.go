package tariff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

var (
	errRunCanceled = errors.New("cancel requested")
	errRunPaused   = errors.New("time budget exhausted")
)

type runnerJobStore interface {
	Start(ctx context.Context, jobID string) (bool, error)
	GetByID(ctx context.Context, jobID string) (domain.ImportJob, error)
	UpdateProgress(ctx context.Context, jobID string, checkpointRow int64, checkpointData string, progress float64, progressTotal int64, status string, delta domain.JobStats) (bool, error)
	Complete(ctx context.Context, jobID string) error
	Requeue(ctx context.Context, jobID, reason string, nextRetryAt time.Time) error
	Fail(ctx context.Context, jobID, reason string) error
	Pause(ctx context.Context, jobID, status string) error
}

type runnerProviderStore interface {
	GetByID(ctx context.Context, id string) (domain.Provider, error)
	SetConnectionStatus(ctx context.Context, id, status, lastError string) error
	TouchLastRun(ctx context.Context, id string) error
}

type runnerLogStore interface {
	CreateStarted(ctx context.Context, providerID, jobID string, protocol domain.Protocol, fileName, remotePath string, sourceData []byte, remoteModifiedAt *time.Time) (string, error)
	MarkDone(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error
	MarkError(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error
	SaveQuarantine(ctx context.Context, providerID, jobID, fileName string, rows []domain.QuarantinedRow) error
}

type chunkUpserter interface {
	UpsertChunk(ctx context.Context, jobID, providerID string, clearDuplicates bool, records []domain.Record) (domain.ChunkResult, error)
}

type JobRunnerConfig struct {
	ChunkRows      int
	RetryBackoff   time.Duration
	MaxRunDuration time.Duration
}

// JobRunner executes one claimed job attempt end to end: provider lock,
// remote listing, per-file import with checkpoint writes, and the
// terminal transition. The runner alone decides between retry and
// terminal failure; backends report errors and never abandon the job.
type JobRunner struct {
	jobs      runnerJobStore
	providers runnerProviderStore
	logs      runnerLogStore
	records   chunkUpserter
	locks     domain.ProviderLocker
	backends  domain.BackendFactory
	cfg       JobRunnerConfig
}

func NewJobRunner(jobs runnerJobStore, providers runnerProviderStore, logs runnerLogStore, records chunkUpserter, locks domain.ProviderLocker, backends domain.BackendFactory, cfg JobRunnerConfig) *JobRunner {
	if cfg.ChunkRows <= 0 {
		cfg.ChunkRows = importChunkRows
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Minute
	}
	if cfg.MaxRunDuration <= 0 {
		cfg.MaxRunDuration = 20 * time.Minute
	}

	return &JobRunner{
		jobs:      jobs,
		providers: providers,
		logs:      logs,
		records:   records,
		locks:     locks,
		backends:  backends,
		cfg:       cfg,
	}
}

// runCheckpoint is the blob persisted in checkpoint_data: the file being
// processed (its row position lives in checkpoint_row) and the files the
// job already finished, so a retry never replays them.
type runCheckpoint struct {
	File string   `json:"file,omitempty"`
	Done []string `json:"done,omitempty"`
}

func (c *runCheckpoint) blob() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// providerRun carries the state of one run attempt across the helpers.
type providerRun struct {
	job        domain.ImportJob
	provider   domain.Provider
	backend    domain.Backend
	checkpoint *runCheckpoint
	totalFiles int
	startedAt  time.Time
}

func (r *JobRunner) Run(ctx context.Context, job domain.ImportJob) error {
	lease, ok, err := r.locks.TryAcquire(ctx, job.ProviderID)
	if err != nil {
		return fmt.Errorf("acquire provider lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: provider %s", domain.ErrProviderBusy, job.ProviderID)
	}
	defer lease.Release(ctx)

	claimed, err := r.jobs.Start(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		log.Printf("job %s is no longer runnable, skipping", job.ID)
		return nil
	}

	// Reload after the claim so checkpoint and counters are the
	// committed values, not what the scheduler listed moments ago.
	job, err = r.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload claimed job: %w", err)
	}

	checkpoint := &runCheckpoint{}
	if job.CheckpointData != "" {
		if err := json.Unmarshal([]byte(job.CheckpointData), checkpoint); err != nil {
			// An unreadable checkpoint has no usable resume position, so
			// retrying into it cannot work.
			return r.failNow(ctx, job.ID, fmt.Errorf("decode checkpoint: %w", err))
		}
	}

	p, err := r.providers.GetByID(ctx, job.ProviderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.failNow(ctx, job.ID, fmt.Errorf("load provider: %w", err))
		}
		return r.onProcessingError(ctx, job, fmt.Errorf("load provider: %w", err))
	}

	r.reportProvider(ctx, p.ID, "running", "")
	if err := r.providers.TouchLastRun(ctx, p.ID); err != nil {
		log.Printf("touch last run for provider %s: %v", p.ID, err)
	}

	run := &providerRun{job: job, provider: p, checkpoint: checkpoint, startedAt: time.Now()}
	err = r.runProvider(ctx, run)
	switch {
	case err == nil:
		r.reportProvider(ctx, p.ID, "ok", "")
		return nil
	case errors.Is(err, errRunCanceled):
		r.reportProvider(ctx, p.ID, "ok", "")
		if failErr := r.jobs.Fail(ctx, job.ID, "canceled on request"); failErr != nil {
			return fmt.Errorf("cancel job: %w", failErr)
		}
		log.Printf("job %s canceled on request", job.ID)
		return nil
	case errors.Is(err, errRunPaused):
		r.reportProvider(ctx, p.ID, "ok", "")
		status := fmt.Sprintf("paused after %s", time.Since(run.startedAt).Round(time.Second))
		if pauseErr := r.jobs.Pause(ctx, job.ID, status); pauseErr != nil {
			return fmt.Errorf("pause job: %w", pauseErr)
		}
		log.Printf("job %s paused over its time budget", job.ID)
		return nil
	default:
		r.reportProvider(ctx, p.ID, "failed", truncateReason(err.Error()))
		return r.onProcessingError(ctx, job, err)
	}
}

func (r *JobRunner) runProvider(ctx context.Context, run *providerRun) error {
	p := run.provider
	backend, err := r.backends.ForProvider(p)
	if err != nil {
		return err
	}
	if err := backend.Connect(ctx); err != nil {
		return err
	}
	defer backend.Close()
	run.backend = backend

	files, err := backend.ListFiles(ctx, p.RemoteDirIn, p.EffectiveFilePattern(), p.ExcludePattern, 0)
	if err != nil {
		return fmt.Errorf("list remote files: %w", err)
	}

	work := filesToProcess(files, p.MaxFilesPerRun, run.checkpoint)
	run.totalFiles = len(run.checkpoint.Done) + len(work)

	if len(work) == 0 {
		if run.totalFiles == 0 {
			if err := r.logNoFiles(ctx, run); err != nil {
				return err
			}
		}
		return r.jobs.Complete(ctx, run.job.ID)
	}

	for i, fd := range work {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && time.Since(run.startedAt) > r.cfg.MaxRunDuration {
			return errRunPaused
		}
		resumeRow := int64(0)
		if fd.Name == run.checkpoint.File {
			resumeRow = run.job.CheckpointRow
		}
		if err := r.processFile(ctx, run, fd, resumeRow); err != nil {
			return err
		}
	}
	return r.jobs.Complete(ctx, run.job.ID)
}

func (r *JobRunner) processFile(ctx context.Context, run *providerRun, fd domain.FileDescriptor, resumeRow int64) error {
	p := run.provider
	jobID := run.job.ID
	filesDone := len(run.checkpoint.Done)

	// Heartbeat before the transfer, and learn about a cancel request
	// before the heavy work starts.
	run.checkpoint.File = ""
	if resumeRow > 0 {
		run.checkpoint.File = fd.Name
	}
	status := fmt.Sprintf("file %d/%d: downloading %s", filesDone+1, run.totalFiles, fd.Name)
	canceled, err := r.jobs.UpdateProgress(ctx, jobID, resumeRow, run.checkpoint.blob(), overallProgress(filesDone, run.totalFiles, 0, 0), 0, status, domain.JobStats{})
	if err != nil {
		return err
	}
	if canceled {
		return errRunCanceled
	}

	tmp, err := os.CreateTemp("", "tariff-import-*"+filepath.Ext(fd.Name))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := run.backend.Download(ctx, fd.Path, tmpPath); err != nil {
		return fmt.Errorf("download %s: %w", fd.Name, err)
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("read downloaded %s: %w", fd.Name, err)
	}

	var remoteMtime *time.Time
	if !fd.ModifiedAt.IsZero() {
		t := fd.ModifiedAt
		remoteMtime = &t
	}
	logID, err := r.logs.CreateStarted(ctx, p.ID, jobID, p.Protocol, fd.Name, fd.Path, data, remoteMtime)
	if err != nil {
		return fmt.Errorf("create import log: %w", err)
	}

	parsed, err := ParseFile(fd.Name, data, p)
	if err != nil {
		return r.consumeFileError(ctx, run, fd, logID, err)
	}
	rows := parsed.Rows()

	if resumeRow > rows {
		log.Printf("job %s: %s shrank below the checkpoint (row %d of %d), restarting the file", jobID, fd.Name, resumeRow, rows)
		resumeRow = 0
	}

	// Rows before the checkpoint were imported by an earlier attempt;
	// scanning them again only rebuilds the intra-file duplicate set.
	from := int64(0)
	for from < resumeRow {
		step := r.cfg.ChunkRows
		if rem := resumeRow - from; rem < int64(step) {
			step = int(rem)
		}
		from = parsed.Scan(from, step).NextRow
	}

	run.checkpoint.File = fd.Name
	var fileStats domain.JobStats
	for from < rows {
		res := parsed.Scan(from, r.cfg.ChunkRows)
		result, err := r.records.UpsertChunk(ctx, jobID, p.ID, p.ClearDuplicateBarcodes, res.Records)
		if err != nil {
			r.markLogError(ctx, logID, rows, fileStats, err.Error())
			return fmt.Errorf("upsert chunk of %s: %w", fd.Name, err)
		}
		if err := r.logs.SaveQuarantine(ctx, p.ID, jobID, fd.Name, res.Quarantined); err != nil {
			r.markLogError(ctx, logID, rows, fileStats, err.Error())
			return err
		}

		quarantined := int64(len(res.Quarantined))
		delta := domain.JobStats{
			Created:     result.Created,
			Updated:     result.Updated,
			Skipped:     result.Skipped + res.Deduped,
			Errors:      result.Errors + quarantined,
			Quarantined: quarantined,
		}
		fileStats = fileStats.Add(delta)
		from = res.NextRow

		status := fmt.Sprintf("file %d/%d: %s row %d/%d", filesDone+1, run.totalFiles, fd.Name, from, rows)
		canceled, err := r.jobs.UpdateProgress(ctx, jobID, from, run.checkpoint.blob(), overallProgress(filesDone, run.totalFiles, from, rows), rows, status, delta)
		if err != nil {
			r.markLogError(ctx, logID, rows, fileStats, err.Error())
			return err
		}
		if canceled {
			r.markLogError(ctx, logID, rows, fileStats, fmt.Sprintf("canceled at row %d", from))
			return errRunCanceled
		}
		if from < rows && time.Since(run.startedAt) > r.cfg.MaxRunDuration {
			msg := fmt.Sprintf("paused at row %d of %d", from, rows)
			if err := r.logs.MarkDone(ctx, logID, rows, fileStats.Created+fileStats.Updated, fileStats.Errors, msg); err != nil {
				return fmt.Errorf("finish import log: %w", err)
			}
			return errRunPaused
		}
	}

	// The done write lands before the log flip: a crash in between costs
	// a pending log record, not a second import of the file.
	run.checkpoint.File = ""
	run.checkpoint.Done = append(run.checkpoint.Done, fd.Name)
	if _, err := r.jobs.UpdateProgress(ctx, jobID, 0, run.checkpoint.blob(), overallProgress(filesDone+1, run.totalFiles, 0, 0), rows, fmt.Sprintf("finished %s", fd.Name), domain.JobStats{}); err != nil {
		return err
	}
	if err := r.logs.MarkDone(ctx, logID, rows, fileStats.Created+fileStats.Updated, fileStats.Errors, "imported"); err != nil {
		return fmt.Errorf("finish import log: %w", err)
	}
	r.archiveProcessed(ctx, run, fd)
	return nil
}

// consumeFileError books a file the pipeline cannot read: the log keeps
// the cause, the file moves to the error directory when one is
// configured, and the job counts one error. A retry would hit the same
// bytes again, so the run moves on to the next file instead.
func (r *JobRunner) consumeFileError(ctx context.Context, run *providerRun, fd domain.FileDescriptor, logID string, cause error) error {
	r.markLogError(ctx, logID, 0, domain.JobStats{}, cause.Error())
	r.moveToErrorDir(ctx, run, fd)

	run.checkpoint.File = ""
	run.checkpoint.Done = append(run.checkpoint.Done, fd.Name)
	filesDone := len(run.checkpoint.Done)
	status := fmt.Sprintf("failed %s", fd.Name)
	if _, err := r.jobs.UpdateProgress(ctx, run.job.ID, 0, run.checkpoint.blob(), overallProgress(filesDone, run.totalFiles, 0, 0), 0, status, domain.JobStats{Errors: 1}); err != nil {
		return err
	}
	log.Printf("job %s: %s failed to parse: %v", run.job.ID, fd.Name, cause)
	return nil
}

func (r *JobRunner) logNoFiles(ctx context.Context, run *providerRun) error {
	logID, err := r.logs.CreateStarted(ctx, run.provider.ID, run.job.ID, run.provider.Protocol, "No files", "", nil, nil)
	if err != nil {
		return fmt.Errorf("create import log: %w", err)
	}
	if err := r.logs.MarkDone(ctx, logID, 0, 0, 0, "no files found on remote"); err != nil {
		return fmt.Errorf("finish import log: %w", err)
	}
	return nil
}

// archiveProcessed applies the provider's post-import policy to a file
// that imported cleanly. Failures here never fail the run; the worst
// outcome is seeing the file again next run.
func (r *JobRunner) archiveProcessed(ctx context.Context, run *providerRun, fd domain.FileDescriptor) {
	p := run.provider
	if p.Protocol == domain.ProtocolIMAP {
		if p.IMAPMoveProcessed {
			dst := p.RemoteDirProcessed
			if dst == "" {
				dst = "Processed"
			}
			r.moveRemote(ctx, run, fd, dst)
			return
		}
		if p.IMAPMarkSeen {
			if _, err := run.backend.MarkSeen(ctx, fd.Path); err != nil {
				log.Printf("mark %s seen: %v", fd.Path, err)
			}
		}
		return
	}
	if p.RemoteDirProcessed != "" {
		r.moveRemote(ctx, run, fd, p.RemoteDirProcessed)
	}
}

func (r *JobRunner) moveToErrorDir(ctx context.Context, run *providerRun, fd domain.FileDescriptor) {
	p := run.provider
	if p.Protocol == domain.ProtocolIMAP {
		if p.IMAPMoveError {
			dst := p.RemoteDirError
			if dst == "" {
				dst = "Error"
			}
			r.moveRemote(ctx, run, fd, dst)
		}
		return
	}
	if p.RemoteDirError != "" {
		r.moveRemote(ctx, run, fd, p.RemoteDirError)
	}
}

func (r *JobRunner) moveRemote(ctx context.Context, run *providerRun, fd domain.FileDescriptor, dstDir string) {
	if err := run.backend.EnsureDir(ctx, dstDir); err != nil {
		log.Printf("ensure %s exists: %v", dstDir, err)
	}
	newPath, err := run.backend.Move(ctx, fd.Path, dstDir)
	if err != nil {
		log.Printf("move %s to %s: %v", fd.Path, dstDir, err)
		return
	}
	log.Printf("moved %s to %s", fd.Path, newPath)
}

func (r *JobRunner) markLogError(ctx context.Context, logID string, total int64, stats domain.JobStats, msg string) {
	if err := r.logs.MarkError(ctx, logID, total, stats.Created+stats.Updated, stats.Errors, truncateReason(msg)); err != nil {
		log.Printf("mark import log %s error: %v", logID, err)
	}
}

// reportProvider is best-effort: status reporting never decides a run.
func (r *JobRunner) reportProvider(ctx context.Context, providerID, status, lastError string) {
	if err := r.providers.SetConnectionStatus(ctx, providerID, status, lastError); err != nil {
		log.Printf("set provider %s status %s: %v", providerID, status, err)
	}
}

func (r *JobRunner) onProcessingError(ctx context.Context, job domain.ImportJob, err error) error {
	reason := truncateReason(err.Error())
	if job.RetryBudgetLeft() {
		if requeueErr := r.jobs.Requeue(ctx, job.ID, reason, time.Now().Add(r.cfg.RetryBackoff)); requeueErr != nil {
			return fmt.Errorf("%v; requeue failed: %w", err, requeueErr)
		}
		return err
	}

	if failErr := r.jobs.Fail(ctx, job.ID, reason); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	return err
}

// failNow is for defects no retry can repair.
func (r *JobRunner) failNow(ctx context.Context, jobID string, err error) error {
	if failErr := r.jobs.Fail(ctx, jobID, truncateReason(err.Error())); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	return err
}

// filesToProcess orders the listing newest first, applies the per-run
// cap, and drops folders and files finished by earlier attempts. The
// interrupted file, when still listed, comes first so its row position
// is not lost.
func filesToProcess(files []domain.FileDescriptor, maxPerRun int, cp *runCheckpoint) []domain.FileDescriptor {
	candidates := make([]domain.FileDescriptor, 0, len(files))
	for _, f := range files {
		if f.IsFolder {
			continue
		}
		candidates = append(candidates, f)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ModifiedAt.After(candidates[j].ModifiedAt)
	})
	if maxPerRun > 0 && len(candidates) > maxPerRun {
		candidates = candidates[:maxPerRun]
	}

	done := make(map[string]bool, len(cp.Done))
	for _, name := range cp.Done {
		done[name] = true
	}
	out := make([]domain.FileDescriptor, 0, len(candidates))
	for _, f := range candidates {
		if done[f.Name] {
			continue
		}
		out = append(out, f)
	}

	if cp.File != "" {
		idx := -1
		for i, f := range out {
			if f.Name == cp.File {
				idx = i
				break
			}
		}
		if idx < 0 {
			cp.File = ""
		} else if idx > 0 {
			resumed := out[idx]
			copy(out[1:idx+1], out[:idx])
			out[0] = resumed
		}
	}
	return out
}

// overallProgress spreads the run percentage evenly across files, with
// the current file contributing its row fraction.
func overallProgress(filesDone, totalFiles int, row, rows int64) float64 {
	if totalFiles <= 0 {
		return 100
	}
	frac := 0.0
	if rows > 0 {
		frac = float64(row) / float64(rows)
	}
	pct := (float64(filesDone) + frac) / float64(totalFiles) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
