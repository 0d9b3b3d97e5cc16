package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

const testConnectionListLimit = 10

// ProviderParams is the admin-editable part of a provider configuration.
// Runtime fields (Drive tokens, auth state, run reporting) are owned by
// the import flows and survive updates.
type ProviderParams struct {
	Name     string `json:"name" yaml:"name"`
	Active   bool   `json:"active" yaml:"active"`
	Protocol string `json:"protocol" yaml:"protocol"`

	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Username       string `json:"username" yaml:"username"`
	Password       string `json:"password" yaml:"password"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`

	FTPPassive bool `json:"ftp_passive" yaml:"ftp_passive"`
	FTPUseTLS  bool `json:"ftp_use_tls" yaml:"ftp_use_tls"`

	SFTPHostKeyFingerprint string `json:"sftp_host_key_fingerprint" yaml:"sftp_host_key_fingerprint"`
	SFTPPrivateKey         string `json:"sftp_private_key" yaml:"sftp_private_key"`
	SFTPPassphrase         string `json:"sftp_passphrase" yaml:"sftp_passphrase"`

	IMAPUseSSL         bool   `json:"imap_use_ssl" yaml:"imap_use_ssl"`
	IMAPSearchCriteria string `json:"imap_search_criteria" yaml:"imap_search_criteria"`
	IMAPMarkSeen       bool   `json:"imap_mark_seen" yaml:"imap_mark_seen"`
	IMAPMoveProcessed  bool   `json:"imap_move_processed" yaml:"imap_move_processed"`
	IMAPMoveError      bool   `json:"imap_move_error" yaml:"imap_move_error"`
	MaxUIDScan         int    `json:"max_uid_scan" yaml:"max_uid_scan"`

	URL         string `json:"url" yaml:"url"`
	URLUsername string `json:"url_username" yaml:"url_username"`
	URLPassword string `json:"url_password" yaml:"url_password"`

	LocalPath string `json:"local_path" yaml:"local_path"`

	GDriveClientID     string `json:"gdrive_client_id" yaml:"gdrive_client_id"`
	GDriveClientSecret string `json:"gdrive_client_secret" yaml:"gdrive_client_secret"`
	GDriveFolderID     string `json:"gdrive_folder_id" yaml:"gdrive_folder_id"`

	RemoteDirIn        string `json:"remote_dir_in" yaml:"remote_dir_in"`
	RemoteDirProcessed string `json:"remote_dir_processed" yaml:"remote_dir_processed"`
	RemoteDirError     string `json:"remote_dir_error" yaml:"remote_dir_error"`
	FilePattern        string `json:"file_pattern" yaml:"file_pattern"`
	ExcludePattern     string `json:"exclude_pattern" yaml:"exclude_pattern"`

	CSVEncoding      string `json:"csv_encoding" yaml:"csv_encoding"`
	CSVDelimiter     string `json:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHasHeader     bool   `json:"csv_has_header" yaml:"csv_has_header"`
	DecimalSeparator string `json:"decimal_separator" yaml:"decimal_separator"`
	BarcodeColumns   string `json:"barcode_columns" yaml:"barcode_columns"`
	PriceColumn      string `json:"price_column" yaml:"price_column"`

	AutoProcess            bool `json:"auto_process" yaml:"auto_process"`
	ScheduleEveryMinutes   int  `json:"schedule_every_minutes" yaml:"schedule_every_minutes"`
	MaxFilesPerRun         int  `json:"max_files_per_run" yaml:"max_files_per_run"`
	MaxPreview             int  `json:"max_preview" yaml:"max_preview"`
	ClearDuplicateBarcodes bool `json:"clear_duplicate_barcodes" yaml:"clear_duplicate_barcodes"`
}

func (in ProviderParams) apply(p domain.Provider) domain.Provider {
	p.Name = in.Name
	p.Active = in.Active
	p.Protocol = domain.Protocol(in.Protocol)

	p.Host = in.Host
	p.Port = in.Port
	p.Username = in.Username
	p.Password = in.Password
	p.TimeoutSeconds = in.TimeoutSeconds

	p.FTPPassive = in.FTPPassive
	p.FTPUseTLS = in.FTPUseTLS

	p.SFTPHostKeyFingerprint = in.SFTPHostKeyFingerprint
	p.SFTPPrivateKey = in.SFTPPrivateKey
	p.SFTPPassphrase = in.SFTPPassphrase

	p.IMAPUseSSL = in.IMAPUseSSL
	p.IMAPSearchCriteria = in.IMAPSearchCriteria
	p.IMAPMarkSeen = in.IMAPMarkSeen
	p.IMAPMoveProcessed = in.IMAPMoveProcessed
	p.IMAPMoveError = in.IMAPMoveError
	p.MaxUIDScan = in.MaxUIDScan

	p.URL = in.URL
	p.URLUsername = in.URLUsername
	p.URLPassword = in.URLPassword

	p.LocalPath = in.LocalPath

	p.GDriveClientID = in.GDriveClientID
	p.GDriveClientSecret = in.GDriveClientSecret
	p.GDriveFolderID = in.GDriveFolderID

	p.RemoteDirIn = in.RemoteDirIn
	p.RemoteDirProcessed = in.RemoteDirProcessed
	p.RemoteDirError = in.RemoteDirError
	p.FilePattern = in.FilePattern
	p.ExcludePattern = in.ExcludePattern

	p.CSVEncoding = in.CSVEncoding
	p.CSVDelimiter = in.CSVDelimiter
	p.CSVHasHeader = in.CSVHasHeader
	p.DecimalSeparator = in.DecimalSeparator
	p.BarcodeColumns = in.BarcodeColumns
	p.PriceColumn = in.PriceColumn

	p.AutoProcess = in.AutoProcess
	p.ScheduleEveryMinutes = in.ScheduleEveryMinutes
	p.MaxFilesPerRun = in.MaxFilesPerRun
	p.MaxPreview = in.MaxPreview
	p.ClearDuplicateBarcodes = in.ClearDuplicateBarcodes

	return p
}

type ProviderOutput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Protocol string `json:"protocol"`

	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`

	FTPPassive bool `json:"ftp_passive"`
	FTPUseTLS  bool `json:"ftp_use_tls"`

	SFTPHostKeyFingerprint string `json:"sftp_host_key_fingerprint,omitempty"`
	SFTPPrivateKey         string `json:"sftp_private_key,omitempty"`
	SFTPPassphrase         string `json:"sftp_passphrase,omitempty"`

	IMAPUseSSL         bool   `json:"imap_use_ssl"`
	IMAPSearchCriteria string `json:"imap_search_criteria,omitempty"`
	IMAPMarkSeen       bool   `json:"imap_mark_seen"`
	IMAPMoveProcessed  bool   `json:"imap_move_processed"`
	IMAPMoveError      bool   `json:"imap_move_error"`
	MaxUIDScan         int    `json:"max_uid_scan,omitempty"`

	URL         string `json:"url,omitempty"`
	URLUsername string `json:"url_username,omitempty"`
	URLPassword string `json:"url_password,omitempty"`

	LocalPath string `json:"local_path,omitempty"`

	GDriveClientID     string `json:"gdrive_client_id,omitempty"`
	GDriveClientSecret string `json:"gdrive_client_secret,omitempty"`
	GDriveFolderID     string `json:"gdrive_folder_id,omitempty"`
	GDriveConnected    bool   `json:"gdrive_connected"`

	RemoteDirIn        string `json:"remote_dir_in,omitempty"`
	RemoteDirProcessed string `json:"remote_dir_processed,omitempty"`
	RemoteDirError     string `json:"remote_dir_error,omitempty"`
	FilePattern        string `json:"file_pattern,omitempty"`
	ExcludePattern     string `json:"exclude_pattern,omitempty"`

	CSVEncoding      string `json:"csv_encoding,omitempty"`
	CSVDelimiter     string `json:"csv_delimiter,omitempty"`
	CSVHasHeader     bool   `json:"csv_has_header"`
	DecimalSeparator string `json:"decimal_separator,omitempty"`
	BarcodeColumns   string `json:"barcode_columns,omitempty"`
	PriceColumn      string `json:"price_column,omitempty"`

	AutoProcess            bool `json:"auto_process"`
	ScheduleEveryMinutes   int  `json:"schedule_every_minutes,omitempty"`
	MaxFilesPerRun         int  `json:"max_files_per_run,omitempty"`
	MaxPreview             int  `json:"max_preview,omitempty"`
	ClearDuplicateBarcodes bool `json:"clear_duplicate_barcodes"`

	LastConnectionStatus string     `json:"last_connection_status,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
	LastRunAt            *time.Time `json:"last_run_at,omitempty"`
}

type TestConnectionOutput struct {
	Status     string `json:"status"`
	FilesFound int    `json:"files_found"`
	Message    string `json:"message,omitempty"`
}

type providerStore interface {
	Create(ctx context.Context, p domain.Provider) (string, error)
	Update(ctx context.Context, p domain.Provider) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (domain.Provider, error)
	List(ctx context.Context) ([]domain.Provider, error)
	SetConnectionStatus(ctx context.Context, id, status, lastError string) error
}

// ProviderAdmin bundles the provider CRUD surface and the connection
// test. Workflow operations (jobs, previews, the Drive consent flow)
// stay in their own use cases.
type ProviderAdmin struct {
	providers providerStore
	backends  domain.BackendFactory
}

func NewProviderAdmin(providers providerStore, backends domain.BackendFactory) *ProviderAdmin {
	return &ProviderAdmin{providers: providers, backends: backends}
}

func (s *ProviderAdmin) Create(ctx context.Context, in ProviderParams) (ProviderOutput, error) {
	p := in.apply(domain.Provider{})
	if err := validateProvider(p); err != nil {
		return ProviderOutput{}, err
	}

	id, err := s.providers.Create(ctx, p)
	if err != nil {
		return ProviderOutput{}, fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}
	p.ID = id
	return providerOutput(p), nil
}

func (s *ProviderAdmin) Update(ctx context.Context, id string, in ProviderParams) (ProviderOutput, error) {
	if !idPattern.MatchString(id) {
		return ProviderOutput{}, ErrInvalidProviderID
	}

	existing, err := s.providers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ProviderOutput{}, ErrProviderNotFound
		}
		return ProviderOutput{}, fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}

	p := in.apply(existing)
	if err := validateProvider(p); err != nil {
		return ProviderOutput{}, err
	}

	if err := s.providers.Update(ctx, p); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ProviderOutput{}, ErrProviderNotFound
		}
		return ProviderOutput{}, fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}
	return providerOutput(p), nil
}

func (s *ProviderAdmin) Get(ctx context.Context, id string) (ProviderOutput, error) {
	if !idPattern.MatchString(id) {
		return ProviderOutput{}, ErrInvalidProviderID
	}

	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ProviderOutput{}, ErrProviderNotFound
		}
		return ProviderOutput{}, fmt.Errorf("%w: %v", ErrGetProvider, err)
	}
	return providerOutput(p), nil
}

func (s *ProviderAdmin) List(ctx context.Context) ([]ProviderOutput, error) {
	providers, err := s.providers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGetProvider, err)
	}
	out := make([]ProviderOutput, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerOutput(p))
	}
	return out, nil
}

func (s *ProviderAdmin) Delete(ctx context.Context, id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidProviderID
	}
	if err := s.providers.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}
	return nil
}

// TestConnection connects to the provider and performs a small capped
// listing. A failed attempt is a regular outcome, not an error: the
// result and the provider's status fields report it.
func (s *ProviderAdmin) TestConnection(ctx context.Context, id string) (TestConnectionOutput, error) {
	if !idPattern.MatchString(id) {
		return TestConnectionOutput{}, ErrInvalidProviderID
	}

	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TestConnectionOutput{}, ErrProviderNotFound
		}
		return TestConnectionOutput{}, fmt.Errorf("%w: %v", ErrTestConnection, err)
	}
	if err := p.Validate(); err != nil {
		return TestConnectionOutput{}, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}

	files, listErr := s.listCapped(ctx, p)
	if listErr != nil {
		if err := s.providers.SetConnectionStatus(ctx, id, "failed", listErr.Error()); err != nil {
			return TestConnectionOutput{}, fmt.Errorf("%w: %v", ErrTestConnection, err)
		}
		return TestConnectionOutput{Status: "failed", Message: listErr.Error()}, nil
	}

	if err := s.providers.SetConnectionStatus(ctx, id, "ok", ""); err != nil {
		return TestConnectionOutput{}, fmt.Errorf("%w: %v", ErrTestConnection, err)
	}
	return TestConnectionOutput{Status: "ok", FilesFound: len(files)}, nil
}

func (s *ProviderAdmin) listCapped(ctx context.Context, p domain.Provider) ([]domain.FileDescriptor, error) {
	backend, err := s.backends.ForProvider(p)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	if err := backend.Connect(opCtx); err != nil {
		return nil, err
	}
	defer backend.Close()

	return backend.ListFiles(opCtx, p.RemoteDirIn, p.EffectiveFilePattern(), p.ExcludePattern, testConnectionListLimit)
}

func validateProvider(p domain.Provider) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}
	if _, err := p.CSVParams(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}
	return nil
}

func providerOutput(p domain.Provider) ProviderOutput {
	return ProviderOutput{
		ID:       p.ID,
		Name:     p.Name,
		Active:   p.Active,
		Protocol: string(p.Protocol),

		Host:           p.Host,
		Port:           p.Port,
		Username:       p.Username,
		Password:       p.Password,
		TimeoutSeconds: p.TimeoutSeconds,

		FTPPassive: p.FTPPassive,
		FTPUseTLS:  p.FTPUseTLS,

		SFTPHostKeyFingerprint: p.SFTPHostKeyFingerprint,
		SFTPPrivateKey:         p.SFTPPrivateKey,
		SFTPPassphrase:         p.SFTPPassphrase,

		IMAPUseSSL:         p.IMAPUseSSL,
		IMAPSearchCriteria: p.IMAPSearchCriteria,
		IMAPMarkSeen:       p.IMAPMarkSeen,
		IMAPMoveProcessed:  p.IMAPMoveProcessed,
		IMAPMoveError:      p.IMAPMoveError,
		MaxUIDScan:         p.MaxUIDScan,

		URL:         p.URL,
		URLUsername: p.URLUsername,
		URLPassword: p.URLPassword,

		LocalPath: p.LocalPath,

		GDriveClientID:     p.GDriveClientID,
		GDriveClientSecret: p.GDriveClientSecret,
		GDriveFolderID:     p.GDriveFolderID,
		GDriveConnected:    p.GDriveRefreshToken != "",

		RemoteDirIn:        p.RemoteDirIn,
		RemoteDirProcessed: p.RemoteDirProcessed,
		RemoteDirError:     p.RemoteDirError,
		FilePattern:        p.FilePattern,
		ExcludePattern:     p.ExcludePattern,

		CSVEncoding:      p.CSVEncoding,
		CSVDelimiter:     p.CSVDelimiter,
		CSVHasHeader:     p.CSVHasHeader,
		DecimalSeparator: p.DecimalSeparator,
		BarcodeColumns:   p.BarcodeColumns,
		PriceColumn:      p.PriceColumn,

		AutoProcess:            p.AutoProcess,
		ScheduleEveryMinutes:   p.ScheduleEveryMinutes,
		MaxFilesPerRun:         p.MaxFilesPerRun,
		MaxPreview:             p.MaxPreview,
		ClearDuplicateBarcodes: p.ClearDuplicateBarcodes,

		LastConnectionStatus: p.LastConnectionStatus,
		LastError:            p.LastError,
		LastRunAt:            p.LastRunAt,
	}
}
