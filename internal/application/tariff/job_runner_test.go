package tariff_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type progressCall struct {
	row      int64
	data     string
	progress float64
	total    int64
	status   string
	delta    domain.JobStats
}

type fakeRunnerJobs struct {
	job      domain.ImportJob
	startOK  bool
	startErr error

	startCalls    int
	getCalls      int
	progressCalls []progressCall
	// cancelAtCall makes the n-th progress write report a pending
	// cancel request.
	cancelAtCall   int
	completeCalled bool
	requeueCalled  bool
	requeueReason  string
	failCalled     bool
	failReason     string
	pauseCalled    bool
	pauseStatus    string
}

func (f *fakeRunnerJobs) Start(ctx context.Context, jobID string) (bool, error) {
	f.startCalls++
	return f.startOK, f.startErr
}

func (f *fakeRunnerJobs) GetByID(ctx context.Context, jobID string) (domain.ImportJob, error) {
	f.getCalls++
	return f.job, nil
}

func (f *fakeRunnerJobs) UpdateProgress(ctx context.Context, jobID string, checkpointRow int64, checkpointData string, progress float64, progressTotal int64, status string, delta domain.JobStats) (bool, error) {
	f.progressCalls = append(f.progressCalls, progressCall{
		row:      checkpointRow,
		data:     checkpointData,
		progress: progress,
		total:    progressTotal,
		status:   status,
		delta:    delta,
	})
	return len(f.progressCalls) == f.cancelAtCall, nil
}

func (f *fakeRunnerJobs) Complete(ctx context.Context, jobID string) error {
	f.completeCalled = true
	return nil
}

func (f *fakeRunnerJobs) Requeue(ctx context.Context, jobID, reason string, nextRetryAt time.Time) error {
	f.requeueCalled = true
	f.requeueReason = reason
	return nil
}

func (f *fakeRunnerJobs) Fail(ctx context.Context, jobID, reason string) error {
	f.failCalled = true
	f.failReason = reason
	return nil
}

func (f *fakeRunnerJobs) Pause(ctx context.Context, jobID, status string) error {
	f.pauseCalled = true
	f.pauseStatus = status
	return nil
}

type fakeRunnerProviders struct {
	provider domain.Provider
	getErr   error

	getCalls int
	statuses []string
	touched  int
}

func (f *fakeRunnerProviders) GetByID(ctx context.Context, id string) (domain.Provider, error) {
	f.getCalls++
	if f.getErr != nil {
		return domain.Provider{}, f.getErr
	}
	return f.provider, nil
}

func (f *fakeRunnerProviders) SetConnectionStatus(ctx context.Context, id, status, lastError string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRunnerProviders) TouchLastRun(ctx context.Context, id string) error {
	f.touched++
	return nil
}

type fakeLogRecord struct {
	id      string
	file    string
	state   string
	total   int64
	success int64
	errs    int64
	message string
	data    []byte
}

type fakeRunnerLogs struct {
	records    []*fakeLogRecord
	quarantine []domain.QuarantinedRow
}

func (f *fakeRunnerLogs) CreateStarted(ctx context.Context, providerID, jobID string, protocol domain.Protocol, fileName, remotePath string, sourceData []byte, remoteModifiedAt *time.Time) (string, error) {
	rec := &fakeLogRecord{
		id:    fmt.Sprintf("log-%d", len(f.records)+1),
		file:  fileName,
		state: "started",
		data:  sourceData,
	}
	f.records = append(f.records, rec)
	return rec.id, nil
}

func (f *fakeRunnerLogs) MarkDone(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error {
	return f.finish(id, "done", totalRows, successRows, errorRows, message)
}

func (f *fakeRunnerLogs) MarkError(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error {
	return f.finish(id, "error", totalRows, successRows, errorRows, message)
}

func (f *fakeRunnerLogs) finish(id, state string, total, success, errs int64, message string) error {
	for _, rec := range f.records {
		if rec.id == id {
			rec.state = state
			rec.total = total
			rec.success = success
			rec.errs = errs
			rec.message = message
			return nil
		}
	}
	return fmt.Errorf("unknown log %s", id)
}

func (f *fakeRunnerLogs) SaveQuarantine(ctx context.Context, providerID, jobID, fileName string, rows []domain.QuarantinedRow) error {
	f.quarantine = append(f.quarantine, rows...)
	return nil
}

type fakeUpserter struct {
	err     error
	calls   int
	records []domain.Record
}

func (f *fakeUpserter) UpsertChunk(ctx context.Context, jobID, providerID string, clearDuplicates bool, records []domain.Record) (domain.ChunkResult, error) {
	f.calls++
	if f.err != nil {
		return domain.ChunkResult{}, f.err
	}
	f.records = append(f.records, records...)
	return domain.ChunkResult{Created: int64(len(records))}, nil
}

type fakeLease struct {
	released bool
}

func (l *fakeLease) Release(ctx context.Context) {
	l.released = true
}

type fakeLocks struct {
	busy  bool
	err   error
	lease fakeLease
}

func (f *fakeLocks) TryAcquire(ctx context.Context, providerID string) (domain.ProviderLease, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.busy {
		return nil, false, nil
	}
	return &f.lease, true, nil
}

type fakeBackend struct {
	files      []domain.FileDescriptor
	contents   map[string]string
	connectErr error
	listErr    error

	moved   map[string]string
	seen    []string
	ensured []string
	closed  bool
}

func (b *fakeBackend) Connect(ctx context.Context) error { return b.connectErr }

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]domain.FileDescriptor, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.files, nil
}

func (b *fakeBackend) Download(ctx context.Context, remotePath, localPath string) error {
	content, ok := b.contents[remotePath]
	if !ok {
		return fmt.Errorf("no such file %s", remotePath)
	}
	return os.WriteFile(localPath, []byte(content), 0o600)
}

func (b *fakeBackend) EnsureDir(ctx context.Context, dir string) error {
	b.ensured = append(b.ensured, dir)
	return nil
}

func (b *fakeBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	if b.moved == nil {
		b.moved = make(map[string]string)
	}
	b.moved[remotePath] = dstDir
	return path.Join(dstDir, path.Base(remotePath)), nil
}

func (b *fakeBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	b.seen = append(b.seen, remotePath)
	return true, nil
}

type fakeFactory struct {
	backend *fakeBackend
	err     error
}

func (f *fakeFactory) ForProvider(p domain.Provider) (domain.Backend, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.backend, nil
}

const (
	testProviderID = "0d4ff438-22b5-44f1-b1ef-57d95b07b59c"
	testJobID      = "91c0f806-5b27-4f1a-b94e-5ab7e76ca84b"
)

func runnerProvider() domain.Provider {
	return domain.Provider{
		ID:             testProviderID,
		Name:           "acme",
		Active:         true,
		Protocol:       domain.ProtocolLocal,
		LocalPath:      "/data",
		RemoteDirIn:    "in",
		CSVHasHeader:   true,
		BarcodeColumns: "barcode",
		PriceColumn:    "price",
	}
}

func runnerJob() domain.ImportJob {
	return domain.ImportJob{
		ID:         testJobID,
		ProviderID: testProviderID,
		State:      domain.JobRunning,
		Mode:       domain.ModeStandard,
		MaxRetries: 3,
	}
}

func newTestRunner(jobs *fakeRunnerJobs, providers *fakeRunnerProviders, logs *fakeRunnerLogs, upserter *fakeUpserter, locks *fakeLocks, backend *fakeBackend, cfg app.JobRunnerConfig) *app.JobRunner {
	if cfg.ChunkRows == 0 {
		cfg.ChunkRows = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Minute
	}
	return app.NewJobRunner(jobs, providers, logs, upserter, locks, &fakeFactory{backend: backend}, cfg)
}

func TestJobRunnerImportsNewestFirst(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	p := runnerProvider()
	p.RemoteDirProcessed = "done"
	providers := &fakeRunnerProviders{provider: p}
	logs := &fakeRunnerLogs{}
	upserter := &fakeUpserter{}
	locks := &fakeLocks{}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "in/a.csv", Name: "a.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Path: "in/b.csv", Name: "b.csv", ModifiedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{
			"in/a.csv": "barcode;price\n3001;1.00\n3002;2.00\n",
			"in/b.csv": "barcode;price\n4001;3.00\n4002;4.00\n",
		},
	}

	runner := newTestRunner(jobs, providers, logs, upserter, locks, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !jobs.completeCalled {
		t.Fatal("expected job completion")
	}
	if len(logs.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(logs.records))
	}
	if logs.records[0].file != "b.csv" || logs.records[1].file != "a.csv" {
		t.Fatalf("expected newest file first, got %s then %s", logs.records[0].file, logs.records[1].file)
	}
	for _, rec := range logs.records {
		if rec.state != "done" || rec.message != "imported" {
			t.Fatalf("unexpected log record: %+v", rec)
		}
		if rec.total != 2 || rec.success != 2 {
			t.Fatalf("unexpected log counts: %+v", rec)
		}
	}

	if len(upserter.records) != 4 {
		t.Fatalf("expected 4 upserted records, got %d", len(upserter.records))
	}
	if backend.moved["in/a.csv"] != "done" || backend.moved["in/b.csv"] != "done" {
		t.Fatalf("expected processed files moved, got %v", backend.moved)
	}
	if !backend.closed {
		t.Fatal("expected backend closed")
	}
	if !locks.lease.released {
		t.Fatal("expected provider lock released")
	}
	if providers.touched != 1 {
		t.Fatalf("expected one last-run touch, got %d", providers.touched)
	}
	if len(providers.statuses) != 2 || providers.statuses[0] != "running" || providers.statuses[1] != "ok" {
		t.Fatalf("unexpected status sequence: %v", providers.statuses)
	}

	last := jobs.progressCalls[len(jobs.progressCalls)-1]
	if last.progress != 100 {
		t.Fatalf("expected final progress 100, got %v", last.progress)
	}
	if jobs.progressCalls[0].status != "file 1/2: downloading b.csv" {
		t.Fatalf("unexpected first status: %s", jobs.progressCalls[0].status)
	}
}

func TestJobRunnerSkipsBusyProvider(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	locks := &fakeLocks{busy: true}

	runner := newTestRunner(jobs, &fakeRunnerProviders{provider: runnerProvider()}, &fakeRunnerLogs{}, &fakeUpserter{}, locks, &fakeBackend{}, app.JobRunnerConfig{})

	err := runner.Run(context.Background(), jobs.job)
	if !errors.Is(err, domain.ErrProviderBusy) {
		t.Fatalf("expected ErrProviderBusy, got %v", err)
	}
	if jobs.startCalls != 0 {
		t.Fatal("job must not be claimed while the provider is locked")
	}
}

func TestJobRunnerSkipsUnclaimableJob(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: false}
	locks := &fakeLocks{}

	runner := newTestRunner(jobs, &fakeRunnerProviders{provider: runnerProvider()}, &fakeRunnerLogs{}, &fakeUpserter{}, locks, &fakeBackend{}, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobs.getCalls != 0 {
		t.Fatal("expected no job reload after a lost claim")
	}
	if jobs.completeCalled {
		t.Fatal("did not expect completion")
	}
	if !locks.lease.released {
		t.Fatal("expected provider lock released")
	}
}

func TestJobRunnerRequeuesTransientFailure(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	providers := &fakeRunnerProviders{provider: runnerProvider()}
	backend := &fakeBackend{listErr: fmt.Errorf("%w: connection reset", domain.ErrConnection)}

	runner := newTestRunner(jobs, providers, &fakeRunnerLogs{}, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	err := runner.Run(context.Background(), jobs.job)
	if err == nil {
		t.Fatal("expected error")
	}
	if !jobs.requeueCalled {
		t.Fatal("expected requeue")
	}
	if jobs.failCalled {
		t.Fatal("did not expect fail")
	}
	if !strings.Contains(jobs.requeueReason, "list remote files") {
		t.Fatalf("unexpected requeue reason: %s", jobs.requeueReason)
	}
	if providers.statuses[len(providers.statuses)-1] != "failed" {
		t.Fatalf("unexpected status sequence: %v", providers.statuses)
	}
}

func TestJobRunnerFailsWhenRetryBudgetSpent(t *testing.T) {
	t.Parallel()

	job := runnerJob()
	job.RetryCount = 2
	job.MaxRetries = 3

	jobs := &fakeRunnerJobs{job: job, startOK: true}
	backend := &fakeBackend{listErr: fmt.Errorf("%w: connection reset", domain.ErrConnection)}

	runner := newTestRunner(jobs, &fakeRunnerProviders{provider: runnerProvider()}, &fakeRunnerLogs{}, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	err := runner.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if !jobs.failCalled {
		t.Fatal("expected terminal failure")
	}
	if jobs.requeueCalled {
		t.Fatal("did not expect requeue")
	}
}

func TestJobRunnerFailsOnCorruptCheckpoint(t *testing.T) {
	t.Parallel()

	job := runnerJob()
	job.CheckpointData = "{not json"

	jobs := &fakeRunnerJobs{job: job, startOK: true}
	providers := &fakeRunnerProviders{provider: runnerProvider()}

	runner := newTestRunner(jobs, providers, &fakeRunnerLogs{}, &fakeUpserter{}, &fakeLocks{}, &fakeBackend{}, app.JobRunnerConfig{})

	err := runner.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if !jobs.failCalled {
		t.Fatal("expected immediate failure")
	}
	if jobs.requeueCalled {
		t.Fatal("a corrupt checkpoint must not be retried")
	}
	if !strings.Contains(jobs.failReason, "decode checkpoint") {
		t.Fatalf("unexpected fail reason: %s", jobs.failReason)
	}
	if providers.getCalls != 0 {
		t.Fatal("expected no provider load")
	}
}

func TestJobRunnerCancelsAtChunkBoundary(t *testing.T) {
	t.Parallel()

	// Call 1 is the pre-download heartbeat, call 2 the first flush.
	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true, cancelAtCall: 2}
	providers := &fakeRunnerProviders{provider: runnerProvider()}
	logs := &fakeRunnerLogs{}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "in/a.csv", Name: "a.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{"in/a.csv": "barcode;price\n3001;1.00\n3002;2.00\n"},
	}

	runner := newTestRunner(jobs, providers, logs, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !jobs.failCalled || jobs.failReason != "canceled on request" {
		t.Fatalf("expected cancel failure, got called=%v reason=%q", jobs.failCalled, jobs.failReason)
	}
	if jobs.completeCalled {
		t.Fatal("did not expect completion")
	}
	if logs.records[0].state != "error" || logs.records[0].message != "canceled at row 2" {
		t.Fatalf("unexpected log record: %+v", logs.records[0])
	}
	if providers.statuses[len(providers.statuses)-1] != "ok" {
		t.Fatalf("cancel is not a connection failure: %v", providers.statuses)
	}
}

func TestJobRunnerResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	job := runnerJob()
	job.CheckpointRow = 2
	job.CheckpointData = `{"file":"b.csv","done":["c.csv"]}`

	jobs := &fakeRunnerJobs{job: job, startOK: true}
	providers := &fakeRunnerProviders{provider: runnerProvider()}
	logs := &fakeRunnerLogs{}
	upserter := &fakeUpserter{}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "in/a.csv", Name: "a.csv", ModifiedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
			{Path: "in/b.csv", Name: "b.csv", ModifiedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			{Path: "in/c.csv", Name: "c.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{
			"in/a.csv": "barcode;price\n5001;1.00\n5002;1.00\n",
			"in/b.csv": "barcode;price\n3001;1.00\n3002;1.00\n3003;1.00\n3004;1.00\n",
		},
	}

	runner := newTestRunner(jobs, providers, logs, upserter, &fakeLocks{}, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !jobs.completeCalled {
		t.Fatal("expected completion")
	}
	// The interrupted file comes first even though a.csv is newer, and
	// its checkpointed rows are not re-imported.
	if logs.records[0].file != "b.csv" || logs.records[1].file != "a.csv" {
		t.Fatalf("unexpected file order: %s then %s", logs.records[0].file, logs.records[1].file)
	}
	barcodes := make([]string, 0, len(upserter.records))
	for _, rec := range upserter.records {
		barcodes = append(barcodes, rec.Barcode)
	}
	want := []string{"3003", "3004", "5001", "5002"}
	if len(barcodes) != len(want) {
		t.Fatalf("expected %v, got %v", want, barcodes)
	}
	for i := range want {
		if barcodes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, barcodes)
		}
	}
	if jobs.progressCalls[0].status != "file 1/3: downloading b.csv" {
		t.Fatalf("unexpected first status: %s", jobs.progressCalls[0].status)
	}

	last := jobs.progressCalls[len(jobs.progressCalls)-1]
	if last.data != `{"done":["c.csv","b.csv","a.csv"]}` {
		t.Fatalf("unexpected final checkpoint: %s", last.data)
	}
}

func TestJobRunnerPausesOverTimeBudget(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	providers := &fakeRunnerProviders{provider: runnerProvider()}
	logs := &fakeRunnerLogs{}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "in/a.csv", Name: "a.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{"in/a.csv": "barcode;price\n3001;1.00\n3002;1.00\n3003;1.00\n3004;1.00\n"},
	}

	runner := newTestRunner(jobs, providers, logs, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{MaxRunDuration: time.Nanosecond})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !jobs.pauseCalled {
		t.Fatal("expected pause")
	}
	if !strings.HasPrefix(jobs.pauseStatus, "paused after") {
		t.Fatalf("unexpected pause status: %s", jobs.pauseStatus)
	}
	if jobs.completeCalled {
		t.Fatal("did not expect completion")
	}
	// The attempt's log is closed; the next attempt opens a fresh one.
	if logs.records[0].state != "done" || logs.records[0].message != "paused at row 2 of 4" {
		t.Fatalf("unexpected log record: %+v", logs.records[0])
	}
	if providers.statuses[len(providers.statuses)-1] != "ok" {
		t.Fatalf("pause is not a connection failure: %v", providers.statuses)
	}
}

func TestJobRunnerConsumesUnreadableFiles(t *testing.T) {
	t.Parallel()

	p := runnerProvider()
	p.CSVDelimiter = "||||||"
	p.RemoteDirError = "errors"

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	providers := &fakeRunnerProviders{provider: p}
	logs := &fakeRunnerLogs{}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "in/a.csv", Name: "a.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Path: "in/b.csv", Name: "b.csv", ModifiedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{
			"in/a.csv": "3001;1.00\n",
			"in/b.csv": "3002;1.00\n",
		},
	}

	runner := newTestRunner(jobs, providers, logs, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Unreadable bytes are deterministic, so the run books the files as
	// errors and completes instead of burning retries.
	if !jobs.completeCalled {
		t.Fatal("expected completion")
	}
	if jobs.requeueCalled || jobs.failCalled {
		t.Fatal("deterministic parse failures must not retry")
	}
	if len(logs.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(logs.records))
	}
	for _, rec := range logs.records {
		if rec.state != "error" {
			t.Fatalf("expected error log, got %+v", rec)
		}
	}
	if backend.moved["in/a.csv"] != "errors" || backend.moved["in/b.csv"] != "errors" {
		t.Fatalf("expected files moved to the error dir, got %v", backend.moved)
	}

	var errycount int64
	for _, call := range jobs.progressCalls {
		errycount += call.delta.Errors
	}
	if errycount != 2 {
		t.Fatalf("expected 2 booked errors, got %d", errycount)
	}
}

func TestJobRunnerLogsEmptyListing(t *testing.T) {
	t.Parallel()

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	logs := &fakeRunnerLogs{}
	backend := &fakeBackend{}

	runner := newTestRunner(jobs, &fakeRunnerProviders{provider: runnerProvider()}, logs, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !jobs.completeCalled {
		t.Fatal("expected completion")
	}
	if len(logs.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(logs.records))
	}
	rec := logs.records[0]
	if rec.file != "No files" || rec.state != "done" || rec.message != "no files found on remote" {
		t.Fatalf("unexpected log record: %+v", rec)
	}
}

func TestJobRunnerMarksSeenOnIMAP(t *testing.T) {
	t.Parallel()

	p := runnerProvider()
	p.Protocol = domain.ProtocolIMAP
	p.IMAPMarkSeen = true

	jobs := &fakeRunnerJobs{job: runnerJob(), startOK: true}
	backend := &fakeBackend{
		files: []domain.FileDescriptor{
			{Path: "INBOX/1/tarif.csv", Name: "tarif.csv", ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		contents: map[string]string{"INBOX/1/tarif.csv": "barcode;price\n3001;1.00\n"},
	}

	runner := newTestRunner(jobs, &fakeRunnerProviders{provider: p}, &fakeRunnerLogs{}, &fakeUpserter{}, &fakeLocks{}, backend, app.JobRunnerConfig{})

	if err := runner.Run(context.Background(), jobs.job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(backend.seen) != 1 || backend.seen[0] != "INBOX/1/tarif.csv" {
		t.Fatalf("expected message marked seen, got %v", backend.seen)
	}
	if len(backend.moved) != 0 {
		t.Fatalf("did not expect moves, got %v", backend.moved)
	}
}
