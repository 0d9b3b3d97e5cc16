package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

const (
	defaultLogListLimit = 50
	maxLogListLimit     = 500
)

type ListImportLogsInput struct {
	ProviderID string
	Limit      int
}

type ImportLogOutput struct {
	ID               string     `json:"id"`
	JobID            string     `json:"job_id,omitempty"`
	Protocol         string     `json:"protocol,omitempty"`
	FileName         string     `json:"file_name"`
	RemotePath       string     `json:"remote_path,omitempty"`
	State            string     `json:"state"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
	TotalRows        int64      `json:"total_rows"`
	SuccessRows      int64      `json:"success_rows"`
	ErrorRows        int64      `json:"error_rows"`
	Message          string     `json:"message,omitempty"`
	RemoteModifiedAt *time.Time `json:"remote_modified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type ListImportLogsOutput struct {
	Logs []ImportLogOutput `json:"logs"`
}

// ListImportLogs returns the per-file import history of a provider,
// newest first.
type ListImportLogs interface {
	Execute(ctx context.Context, in ListImportLogsInput) (ListImportLogsOutput, error)
}

type logLister interface {
	ListByProvider(ctx context.Context, providerID string, limit int) ([]domain.ImportLog, error)
}

type listImportLogs struct {
	providers providerGetter
	logs      logLister
}

func NewListImportLogs(providers providerGetter, logs logLister) ListImportLogs {
	return &listImportLogs{providers: providers, logs: logs}
}

func (uc *listImportLogs) Execute(ctx context.Context, in ListImportLogsInput) (ListImportLogsOutput, error) {
	if !idPattern.MatchString(in.ProviderID) {
		return ListImportLogsOutput{}, ErrInvalidProviderID
	}
	if _, err := uc.providers.GetByID(ctx, in.ProviderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ListImportLogsOutput{}, ErrProviderNotFound
		}
		return ListImportLogsOutput{}, fmt.Errorf("%w: %v", ErrListLogs, err)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultLogListLimit
	}
	if limit > maxLogListLimit {
		limit = maxLogListLimit
	}

	logs, err := uc.logs.ListByProvider(ctx, in.ProviderID, limit)
	if err != nil {
		return ListImportLogsOutput{}, fmt.Errorf("%w: %v", ErrListLogs, err)
	}

	out := ListImportLogsOutput{Logs: make([]ImportLogOutput, 0, len(logs))}
	for _, l := range logs {
		out.Logs = append(out.Logs, importLogOutput(l))
	}
	return out, nil
}

func importLogOutput(l domain.ImportLog) ImportLogOutput {
	return ImportLogOutput{
		ID:               l.ID,
		JobID:            l.JobID,
		Protocol:         string(l.Protocol),
		FileName:         l.FileName,
		RemotePath:       l.RemotePath,
		State:            string(l.State),
		StartedAt:        l.StartedAt,
		EndedAt:          l.EndedAt,
		DurationMS:       l.Duration.Milliseconds(),
		TotalRows:        l.TotalRows,
		SuccessRows:      l.SuccessRows,
		ErrorRows:        l.ErrorRows,
		Message:          l.Message,
		RemoteModifiedAt: l.RemoteModifiedAt,
		CreatedAt:        l.CreatedAt,
	}
}
