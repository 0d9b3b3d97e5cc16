package models

import "time"

type Provider struct {
	ID       string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name     string `gorm:"size:255;not null;uniqueIndex"`
	Active   bool   `gorm:"not null;default:true"`
	Protocol string `gorm:"size:16;not null"`

	Host           string `gorm:"size:255"`
	Port           int    `gorm:"not null;default:0"`
	Username       string `gorm:"size:255"`
	Password       string `gorm:"size:255"`
	TimeoutSeconds int    `gorm:"not null;default:0"`

	FTPPassive bool `gorm:"not null;default:true"`
	FTPUseTLS  bool `gorm:"not null;default:false"`

	SFTPHostKeyFingerprint string `gorm:"size:255"`
	SFTPPrivateKey         string `gorm:"type:text"`
	SFTPPassphrase         string `gorm:"size:255"`

	IMAPUseSSL         bool   `gorm:"not null;default:true"`
	IMAPSearchCriteria string `gorm:"size:255"`
	IMAPMarkSeen       bool   `gorm:"not null;default:true"`
	IMAPMoveProcessed  bool   `gorm:"not null;default:false"`
	IMAPMoveError      bool   `gorm:"not null;default:false"`
	MaxUIDScan         int    `gorm:"not null;default:0"`

	URL         string `gorm:"type:text"`
	URLUsername string `gorm:"size:255"`
	URLPassword string `gorm:"size:255"`

	LocalPath string `gorm:"type:text"`

	GDriveClientID     string `gorm:"size:255"`
	GDriveClientSecret string `gorm:"size:255"`
	GDriveRefreshToken string `gorm:"type:text"`
	GDriveAccessToken  string `gorm:"type:text"`
	GDriveTokenExpiry  *time.Time
	GDriveFolderID     string `gorm:"size:255"`
	GDriveAuthState    string `gorm:"size:255"`

	RemoteDirIn        string `gorm:"size:512"`
	RemoteDirProcessed string `gorm:"size:512"`
	RemoteDirError     string `gorm:"size:512"`
	FilePattern        string `gorm:"size:255"`
	ExcludePattern     string `gorm:"size:255"`

	CSVEncoding      string `gorm:"size:32"`
	CSVDelimiter     string `gorm:"size:8"`
	CSVHasHeader     bool   `gorm:"not null;default:true"`
	DecimalSeparator string `gorm:"size:4"`
	BarcodeColumns   string `gorm:"size:512"`
	PriceColumn      string `gorm:"size:255"`

	AutoProcess            bool `gorm:"not null;default:false"`
	ScheduleEveryMinutes   int  `gorm:"not null;default:0"`
	MaxFilesPerRun         int  `gorm:"not null;default:0"`
	MaxPreview             int  `gorm:"not null;default:0"`
	ClearDuplicateBarcodes bool `gorm:"not null;default:false"`

	LastConnectionStatus string  `gorm:"size:16"`
	LastError            *string `gorm:"type:text"`
	LastRunAt            *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Provider) TableName() string {
	return "tariff_providers"
}
