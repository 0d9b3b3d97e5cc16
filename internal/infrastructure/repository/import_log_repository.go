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

type ImportLogRepository struct {
	db *gorm.DB
}

func NewImportLogRepository(db *gorm.DB) *ImportLogRepository {
	return &ImportLogRepository{db: db}
}

// CreateStarted opens the log record for a file attempt and stores the
// downloaded bytes so the file can be re-served later.
func (r *ImportLogRepository) CreateStarted(ctx context.Context, providerID, jobID string, protocol tariff.Protocol, fileName, remotePath string, sourceData []byte, remoteModifiedAt *time.Time) (string, error) {
	now := time.Now()
	row := models.ImportLog{
		ProviderID:       providerID,
		Protocol:         string(protocol),
		FileName:         fileName,
		RemotePath:       remotePath,
		State:            string(tariff.LogPending),
		StartedAt:        &now,
		SourceData:       sourceData,
		RemoteModifiedAt: remoteModifiedAt,
	}
	if jobID != "" {
		row.JobID = &jobID
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create import log: %w", err)
	}
	return row.ID, nil
}

func (r *ImportLogRepository) MarkDone(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error {
	return r.finish(ctx, id, tariff.LogDone, totalRows, successRows, errorRows, message)
}

func (r *ImportLogRepository) MarkError(ctx context.Context, id string, totalRows, successRows, errorRows int64, message string) error {
	return r.finish(ctx, id, tariff.LogError, totalRows, successRows, errorRows, message)
}

func (r *ImportLogRepository) finish(ctx context.Context, id string, state tariff.LogState, totalRows, successRows, errorRows int64, message string) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE tariff_import_logs
SET state = ?,
    ended_at = NOW(),
    duration_ms = (EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000)::BIGINT,
    total_rows = ?,
    success_rows = ?,
    error_rows = ?,
    message = ?,
    updated_at = NOW()
WHERE id = ?`,
		string(state), totalRows, successRows, errorRows, nullableString(message), id,
	)
	if res.Error != nil {
		return fmt.Errorf("finish import log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: import log %s", tariff.ErrNotFound, id)
	}
	return nil
}

// ListByProvider returns the newest log records first. The stored source
// bytes stay out of the listing; GetFile serves them on demand.
func (r *ImportLogRepository) ListByProvider(ctx context.Context, providerID string, limit int) ([]tariff.ImportLog, error) {
	var rows []models.ImportLog
	err := r.db.WithContext(ctx).
		Omit("source_data").
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list import logs: %w", err)
	}
	out := make([]tariff.ImportLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, logFromModel(row))
	}
	return out, nil
}

// GetFile returns the stored source bytes of one log record.
func (r *ImportLogRepository) GetFile(ctx context.Context, id string) (string, []byte, error) {
	var row models.ImportLog
	err := r.db.WithContext(ctx).
		Select("id", "file_name", "source_data").
		First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: import log %s", tariff.ErrNotFound, id)
		}
		return "", nil, fmt.Errorf("get import log file: %w", err)
	}
	if len(row.SourceData) == 0 {
		return "", nil, fmt.Errorf("%w: import log %s has no stored file", tariff.ErrNotFound, id)
	}
	return row.FileName, row.SourceData, nil
}

// SaveQuarantine persists the rejected rows of one file attempt.
func (r *ImportLogRepository) SaveQuarantine(ctx context.Context, providerID, jobID, fileName string, rows []tariff.QuarantinedRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]models.QuarantineRow, 0, len(rows))
	for _, q := range rows {
		batch = append(batch, models.QuarantineRow{
			ProviderID: providerID,
			JobID:      jobID,
			FileName:   fileName,
			RowNumber:  q.RowNumber,
			Barcode:    q.Barcode,
			Reason:     q.Reason,
			RawLine:    q.RawLine,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&batch, 500).Error; err != nil {
		return fmt.Errorf("save quarantined rows: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func logFromModel(row models.ImportLog) tariff.ImportLog {
	entry := tariff.ImportLog{
		ID:               row.ID,
		ProviderID:       row.ProviderID,
		Protocol:         tariff.Protocol(row.Protocol),
		FileName:         row.FileName,
		RemotePath:       row.RemotePath,
		State:            tariff.LogState(row.State),
		StartedAt:        row.StartedAt,
		EndedAt:          row.EndedAt,
		Duration:         time.Duration(row.DurationMS) * time.Millisecond,
		TotalRows:        row.TotalRows,
		SuccessRows:      row.SuccessRows,
		ErrorRows:        row.ErrorRows,
		RemoteModifiedAt: row.RemoteModifiedAt,
		CreatedAt:        row.CreatedAt,
	}
	if row.JobID != nil {
		entry.JobID = *row.JobID
	}
	if row.Message != nil {
		entry.Message = *row.Message
	}
	return entry
}
