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

type ProviderRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

func (r *ProviderRepository) Create(ctx context.Context, p tariff.Provider) (string, error) {
	row := modelFromProvider(p)
	row.ID = ""
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create provider: %w", err)
	}
	return row.ID, nil
}

func (r *ProviderRepository) Update(ctx context.Context, p tariff.Provider) error {
	row := modelFromProvider(p)
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", p.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update provider: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, p.ID)
	}
	return nil
}

func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Provider{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete provider: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, id string) (tariff.Provider, error) {
	var row models.Provider
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tariff.Provider{}, fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
		}
		return tariff.Provider{}, fmt.Errorf("get provider by id: %w", err)
	}
	return providerFromModel(row), nil
}

func (r *ProviderRepository) List(ctx context.Context) ([]tariff.Provider, error) {
	var rows []models.Provider
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	out := make([]tariff.Provider, 0, len(rows))
	for _, row := range rows {
		out = append(out, providerFromModel(row))
	}
	return out, nil
}

// ListAutoProcess returns the active providers the scheduler may enqueue
// on its own.
func (r *ProviderRepository) ListAutoProcess(ctx context.Context) ([]tariff.Provider, error) {
	var rows []models.Provider
	err := r.db.WithContext(ctx).
		Where("active = TRUE AND auto_process = TRUE").
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list auto-process providers: %w", err)
	}
	out := make([]tariff.Provider, 0, len(rows))
	for _, row := range rows {
		out = append(out, providerFromModel(row))
	}
	return out, nil
}

// UpsertByName matches a seeded provider to an existing row by name.
// Config columns are refreshed; runtime columns (tokens, auth state,
// last run reporting) stay untouched so a reboot never de-authorizes a
// connected Drive account.
func (r *ProviderRepository) UpsertByName(ctx context.Context, p tariff.Provider) (string, bool, error) {
	var existing models.Provider
	err := r.db.WithContext(ctx).First(&existing, "name = ?", p.Name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, createErr := r.Create(ctx, p)
		if createErr != nil {
			return "", false, createErr
		}
		return id, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get provider by name: %w", err)
	}

	row := modelFromProvider(p)
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", existing.ID).
		Select("*").
		Omit("id", "created_at",
			"g_drive_refresh_token", "g_drive_access_token", "g_drive_token_expiry", "g_drive_auth_state",
			"last_connection_status", "last_error", "last_run_at").
		Updates(&row)
	if res.Error != nil {
		return "", false, fmt.Errorf("update seeded provider: %w", res.Error)
	}
	return existing.ID, false, nil
}

// SetConnectionStatus records the outcome of the last connection
// attempt. An empty lastError clears the stored one.
func (r *ProviderRepository) SetConnectionStatus(ctx context.Context, id, status, lastError string) error {
	values := map[string]any{
		"last_connection_status": status,
		"last_error":             nil,
	}
	if lastError != "" {
		values["last_error"] = lastError
	}
	res := r.db.WithContext(ctx).Model(&models.Provider{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("set provider connection status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

func (r *ProviderRepository) TouchLastRun(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", id).
		Update("last_run_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return fmt.Errorf("touch provider last run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

// SaveDriveAuthState stores the state nonce handed out with the consent
// URL; the callback checks it before exchanging the code.
func (r *ProviderRepository) SaveDriveAuthState(ctx context.Context, id, state string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", id).
		Update("g_drive_auth_state", state)
	if res.Error != nil {
		return fmt.Errorf("save drive auth state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

// SaveDriveTokens stores the result of a code exchange and consumes the
// auth state nonce.
func (r *ProviderRepository) SaveDriveTokens(ctx context.Context, id, refreshToken, accessToken string, expiry *time.Time) error {
	values := map[string]any{
		"g_drive_access_token": accessToken,
		"g_drive_token_expiry": expiry,
		"g_drive_auth_state":   "",
	}
	if refreshToken != "" {
		values["g_drive_refresh_token"] = refreshToken
	}
	res := r.db.WithContext(ctx).Model(&models.Provider{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("save drive tokens: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

// SaveToken persists a refreshed access token so later runs skip the
// refresh round-trip while it is still valid.
func (r *ProviderRepository) SaveToken(ctx context.Context, providerID, accessToken string, expiry time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"g_drive_access_token": accessToken,
			"g_drive_token_expiry": expiry,
		})
	if res.Error != nil {
		return fmt.Errorf("save drive access token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, providerID)
	}
	return nil
}

// DisconnectDrive drops every stored token; the provider has to run the
// consent flow again before the next Drive import.
func (r *ProviderRepository) DisconnectDrive(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"g_drive_refresh_token": "",
			"g_drive_access_token":  "",
			"g_drive_token_expiry":  nil,
			"g_drive_auth_state":    "",
		})
	if res.Error != nil {
		return fmt.Errorf("disconnect drive: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", tariff.ErrNotFound, id)
	}
	return nil
}

func providerFromModel(row models.Provider) tariff.Provider {
	p := tariff.Provider{
		ID:       row.ID,
		Name:     row.Name,
		Active:   row.Active,
		Protocol: tariff.Protocol(row.Protocol),

		Host:           row.Host,
		Port:           row.Port,
		Username:       row.Username,
		Password:       row.Password,
		TimeoutSeconds: row.TimeoutSeconds,

		FTPPassive: row.FTPPassive,
		FTPUseTLS:  row.FTPUseTLS,

		SFTPHostKeyFingerprint: row.SFTPHostKeyFingerprint,
		SFTPPrivateKey:         row.SFTPPrivateKey,
		SFTPPassphrase:         row.SFTPPassphrase,

		IMAPUseSSL:         row.IMAPUseSSL,
		IMAPSearchCriteria: row.IMAPSearchCriteria,
		IMAPMarkSeen:       row.IMAPMarkSeen,
		IMAPMoveProcessed:  row.IMAPMoveProcessed,
		IMAPMoveError:      row.IMAPMoveError,
		MaxUIDScan:         row.MaxUIDScan,

		URL:         row.URL,
		URLUsername: row.URLUsername,
		URLPassword: row.URLPassword,

		LocalPath: row.LocalPath,

		GDriveClientID:     row.GDriveClientID,
		GDriveClientSecret: row.GDriveClientSecret,
		GDriveRefreshToken: row.GDriveRefreshToken,
		GDriveAccessToken:  row.GDriveAccessToken,
		GDriveTokenExpiry:  row.GDriveTokenExpiry,
		GDriveFolderID:     row.GDriveFolderID,
		GDriveAuthState:    row.GDriveAuthState,

		RemoteDirIn:        row.RemoteDirIn,
		RemoteDirProcessed: row.RemoteDirProcessed,
		RemoteDirError:     row.RemoteDirError,
		FilePattern:        row.FilePattern,
		ExcludePattern:     row.ExcludePattern,

		CSVEncoding:      row.CSVEncoding,
		CSVDelimiter:     row.CSVDelimiter,
		CSVHasHeader:     row.CSVHasHeader,
		DecimalSeparator: row.DecimalSeparator,
		BarcodeColumns:   row.BarcodeColumns,
		PriceColumn:      row.PriceColumn,

		AutoProcess:            row.AutoProcess,
		ScheduleEveryMinutes:   row.ScheduleEveryMinutes,
		MaxFilesPerRun:         row.MaxFilesPerRun,
		MaxPreview:             row.MaxPreview,
		ClearDuplicateBarcodes: row.ClearDuplicateBarcodes,

		LastConnectionStatus: row.LastConnectionStatus,
		LastRunAt:            row.LastRunAt,
	}
	if row.LastError != nil {
		p.LastError = *row.LastError
	}
	return p
}

func modelFromProvider(p tariff.Provider) models.Provider {
	row := models.Provider{
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
		GDriveRefreshToken: p.GDriveRefreshToken,
		GDriveAccessToken:  p.GDriveAccessToken,
		GDriveTokenExpiry:  p.GDriveTokenExpiry,
		GDriveFolderID:     p.GDriveFolderID,
		GDriveAuthState:    p.GDriveAuthState,

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
		LastRunAt:            p.LastRunAt,
	}
	if p.LastError != "" {
		lastError := p.LastError
		row.LastError = &lastError
	}
	return row
}
