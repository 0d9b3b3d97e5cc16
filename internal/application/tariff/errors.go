package tariff

import "errors"

var (
	ErrInvalidProviderID  = errors.New("invalid provider id")
	ErrInvalidJobID       = errors.New("invalid job id")
	ErrInvalidLogID       = errors.New("invalid import log id")
	ErrProviderNotFound   = errors.New("provider not found")
	ErrJobNotFound        = errors.New("import job not found")
	ErrLogNotFound        = errors.New("import log not found")
	ErrInvalidProvider    = errors.New("invalid provider configuration")
	ErrInvalidImportMode  = errors.New("invalid import mode")
	ErrProviderInactive   = errors.New("provider is not active")
	ErrActiveJobExists    = errors.New("an import job is already active for this provider")
	ErrJobNotRetryable    = errors.New("job is not in a retryable state")
	ErrJobNotCancelable   = errors.New("job is not in a cancelable state")
	ErrCreateJob          = errors.New("failed to create import job")
	ErrGetJobStatus       = errors.New("failed to get job status")
	ErrRetryJob           = errors.New("failed to retry job")
	ErrCancelJob          = errors.New("failed to cancel job")
	ErrListRemoteFiles    = errors.New("failed to list remote files")
	ErrListLogs           = errors.New("failed to list import logs")
	ErrGetLogFile         = errors.New("failed to read stored import file")
	ErrSaveProvider       = errors.New("failed to save provider")
	ErrGetProvider        = errors.New("failed to get provider")
	ErrTestConnection     = errors.New("connection test failed")
	ErrDriveNotConfigured = errors.New("provider is missing google oauth client credentials")
	ErrDriveStateMismatch = errors.New("oauth state does not match the pending authorization")
	ErrDriveExchange      = errors.New("failed to exchange authorization code")
	ErrFolderBrowse       = errors.New("provider backend does not support folder browsing")
)
