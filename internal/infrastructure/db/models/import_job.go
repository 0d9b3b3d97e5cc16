package models

import "time"

type ImportJob struct {
	ID               string  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID       string  `gorm:"type:uuid;index;not null"`
	State            string  `gorm:"size:16;not null;index"`
	Mode             string  `gorm:"size:24;not null"`
	Progress         float64 `gorm:"not null;default:0"`
	ProgressTotal    int64   `gorm:"not null;default:0"`
	ProgressStatus   string  `gorm:"size:255"`
	CheckpointRow    int64   `gorm:"not null;default:0"`
	CheckpointData   string  `gorm:"type:text"`
	RetryCount       int     `gorm:"not null;default:0"`
	MaxRetries       int     `gorm:"not null;default:3"`
	NextRetryAt      *time.Time
	CreatedCount     int64   `gorm:"not null;default:0"`
	UpdatedCount     int64   `gorm:"not null;default:0"`
	SkippedCount     int64   `gorm:"not null;default:0"`
	ErrorCount       int64   `gorm:"not null;default:0"`
	QuarantinedCount int64   `gorm:"not null;default:0"`
	LastError        *string `gorm:"type:text"`
	CancelRequested  bool    `gorm:"not null;default:false"`
	StartedAt        *time.Time
	FinishedAt       *time.Time
	ProgressAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ImportJob) TableName() string {
	return "tariff_import_jobs"
}
