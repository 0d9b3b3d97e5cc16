package models

import "time"

type ImportLog struct {
	ID               string  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID       string  `gorm:"type:uuid;index;not null"`
	JobID            *string `gorm:"type:uuid;index"`
	Protocol         string  `gorm:"size:16;not null"`
	FileName         string  `gorm:"size:512;not null"`
	RemotePath       string  `gorm:"type:text"`
	State            string  `gorm:"size:16;not null"`
	StartedAt        *time.Time
	EndedAt          *time.Time
	DurationMS       int64   `gorm:"not null;default:0"`
	TotalRows        int64   `gorm:"not null;default:0"`
	SuccessRows      int64   `gorm:"not null;default:0"`
	ErrorRows        int64   `gorm:"not null;default:0"`
	Message          *string `gorm:"type:text"`
	SourceData       []byte  `gorm:"type:bytea"`
	RemoteModifiedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ImportLog) TableName() string {
	return "tariff_import_logs"
}
