package models

import "time"

type QuarantineRow struct {
	ID         int64  `gorm:"primaryKey"`
	ProviderID string `gorm:"type:uuid;index;not null"`
	JobID      string `gorm:"type:uuid;index;not null"`
	FileName   string `gorm:"size:512;not null"`
	RowNumber  int64  `gorm:"not null"`
	Barcode    string `gorm:"size:64"`
	Reason     string `gorm:"size:255;not null"`
	RawLine    string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (QuarantineRow) TableName() string {
	return "tariff_import_quarantine"
}
