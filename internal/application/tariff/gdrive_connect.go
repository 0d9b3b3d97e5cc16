package tariff

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

// driveScopes matches the consent screen: file-level write access plus
// read-only browsing for the folder picker.
var driveScopes = []string{drive.DriveFileScope, drive.DriveReadonlyScope}

// tokenExpirySlop is subtracted from the reported lifetime so a token is
// refreshed before the server-side cutoff.
const tokenExpirySlop = 60 * time.Second

type GDriveAuthorizeOutput struct {
	URL string `json:"url"`
}

type GDriveCallbackOutput struct {
	ProviderID string `json:"provider_id"`
	Connected  bool   `json:"connected"`
}

type BreadcrumbOutput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GDriveFoldersOutput struct {
	Folders     []RemoteFileOutput `json:"folders"`
	Breadcrumbs []BreadcrumbOutput `json:"breadcrumbs"`
}

type driveTokenStore interface {
	GetByID(ctx context.Context, id string) (domain.Provider, error)
	SaveDriveAuthState(ctx context.Context, id, state string) error
	SaveDriveTokens(ctx context.Context, id, refreshToken, accessToken string, expiry *time.Time) error
	DisconnectDrive(ctx context.Context, id string) error
}

// GDriveConnect implements the Google Drive consent flow: authorize URL,
// OAuth callback, disconnect, and the folder picker backing the
// directory chooser.
type GDriveConnect struct {
	providers   driveTokenStore
	backends    domain.BackendFactory
	redirectURL string
}

func NewGDriveConnect(providers driveTokenStore, backends domain.BackendFactory, redirectURL string) *GDriveConnect {
	return &GDriveConnect{providers: providers, backends: backends, redirectURL: redirectURL}
}

// AuthorizeURL stores a fresh state nonce on the provider and returns
// the Google consent URL carrying "<providerID>_<nonce>" as state.
func (s *GDriveConnect) AuthorizeURL(ctx context.Context, providerID string) (GDriveAuthorizeOutput, error) {
	if !idPattern.MatchString(providerID) {
		return GDriveAuthorizeOutput{}, ErrInvalidProviderID
	}

	p, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GDriveAuthorizeOutput{}, ErrProviderNotFound
		}
		return GDriveAuthorizeOutput{}, fmt.Errorf("%w: %v", ErrGetProvider, err)
	}
	if strings.TrimSpace(p.GDriveClientID) == "" || strings.TrimSpace(p.GDriveClientSecret) == "" {
		return GDriveAuthorizeOutput{}, ErrDriveNotConfigured
	}

	nonce, err := newStateNonce()
	if err != nil {
		return GDriveAuthorizeOutput{}, fmt.Errorf("generate oauth state: %w", err)
	}
	if err := s.providers.SaveDriveAuthState(ctx, providerID, nonce); err != nil {
		return GDriveAuthorizeOutput{}, fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}

	url := s.oauthConfig(p).AuthCodeURL(
		providerID+"_"+nonce,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return GDriveAuthorizeOutput{URL: url}, nil
}

// HandleCallback verifies the state against the stored nonce, exchanges
// the code, and persists the token set. The nonce is single-use.
func (s *GDriveConnect) HandleCallback(ctx context.Context, code, state string) (GDriveCallbackOutput, error) {
	if code == "" || state == "" {
		return GDriveCallbackOutput{}, ErrDriveStateMismatch
	}
	providerID, nonce, ok := strings.Cut(state, "_")
	if !ok || !idPattern.MatchString(providerID) {
		return GDriveCallbackOutput{}, ErrDriveStateMismatch
	}

	p, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GDriveCallbackOutput{}, ErrProviderNotFound
		}
		return GDriveCallbackOutput{}, fmt.Errorf("%w: %v", ErrGetProvider, err)
	}
	if p.GDriveAuthState == "" || p.GDriveAuthState != nonce {
		return GDriveCallbackOutput{}, ErrDriveStateMismatch
	}

	token, err := s.oauthConfig(p).Exchange(ctx, code)
	if err != nil {
		return GDriveCallbackOutput{}, fmt.Errorf("%w: %v", ErrDriveExchange, err)
	}

	var expiry *time.Time
	if !token.Expiry.IsZero() {
		t := token.Expiry.Add(-tokenExpirySlop)
		expiry = &t
	}
	if err := s.providers.SaveDriveTokens(ctx, providerID, token.RefreshToken, token.AccessToken, expiry); err != nil {
		return GDriveCallbackOutput{}, fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}

	return GDriveCallbackOutput{ProviderID: providerID, Connected: true}, nil
}

// Disconnect drops every stored token; the provider must re-run the
// consent flow before the next Drive import.
func (s *GDriveConnect) Disconnect(ctx context.Context, providerID string) error {
	if !idPattern.MatchString(providerID) {
		return ErrInvalidProviderID
	}
	if err := s.providers.DisconnectDrive(ctx, providerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("%w: %v", ErrSaveProvider, err)
	}
	return nil
}

// Folders lists the subfolders of parent together with the breadcrumb
// path leading to it.
func (s *GDriveConnect) Folders(ctx context.Context, providerID, parent string) (GDriveFoldersOutput, error) {
	if !idPattern.MatchString(providerID) {
		return GDriveFoldersOutput{}, ErrInvalidProviderID
	}

	p, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GDriveFoldersOutput{}, ErrProviderNotFound
		}
		return GDriveFoldersOutput{}, fmt.Errorf("%w: %v", ErrGetProvider, err)
	}

	backend, err := s.backends.ForProvider(p)
	if err != nil {
		return GDriveFoldersOutput{}, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}
	browser, ok := backend.(domain.FolderBrowser)
	if !ok {
		return GDriveFoldersOutput{}, ErrFolderBrowse
	}

	opCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	if err := backend.Connect(opCtx); err != nil {
		return GDriveFoldersOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}
	defer backend.Close()

	folders, err := browser.ListFolders(opCtx, parent)
	if err != nil {
		return GDriveFoldersOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}

	crumbTarget := parent
	if crumbTarget == "" {
		crumbTarget = p.GDriveFolderID
	}
	crumbs, err := browser.FolderPath(opCtx, crumbTarget)
	if err != nil {
		return GDriveFoldersOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}

	out := GDriveFoldersOutput{
		Folders:     make([]RemoteFileOutput, 0, len(folders)),
		Breadcrumbs: make([]BreadcrumbOutput, 0, len(crumbs)),
	}
	for _, f := range folders {
		out.Folders = append(out.Folders, remoteFileOutput(f))
	}
	for _, c := range crumbs {
		out.Breadcrumbs = append(out.Breadcrumbs, BreadcrumbOutput{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

func (s *GDriveConnect) oauthConfig(p domain.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.GDriveClientID,
		ClientSecret: p.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  s.redirectURL,
		Scopes:       driveScopes,
	}
}

func newStateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
