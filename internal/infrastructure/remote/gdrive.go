package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

const (
	gdriveScheme     = "gdrive://"
	driveFolderMime  = "application/vnd.google-apps.folder"
	tokenRefreshSlop = 60 * time.Second
)

// TokenSaver persists refreshed OAuth access tokens so restarts do not
// burn a refresh round-trip per run.
type TokenSaver interface {
	SaveToken(ctx context.Context, providerID, accessToken string, expiry time.Time) error
}

type gdriveBackend struct {
	cfg   tariff.Provider
	saver TokenSaver
	svc   *drive.Service
}

func newGDriveBackend(p tariff.Provider, saver TokenSaver) *gdriveBackend {
	return &gdriveBackend{cfg: p, saver: saver}
}

func (b *gdriveBackend) Connect(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.GDriveRefreshToken) == "" {
		return fmt.Errorf("%w: google drive account not authorized yet", tariff.ErrConnection)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(newDriveTokenSource(ctx, b.cfg, b.saver)))
	if err != nil {
		return fmt.Errorf("%w: build drive client: %v", tariff.ErrConnection, err)
	}
	if _, err := svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: drive probe: %v", tariff.ErrConnection, err)
	}
	b.svc = svc
	return nil
}

func (b *gdriveBackend) Close() error {
	b.svc = nil
	return nil
}

func (b *gdriveBackend) rootFolder(dir string) string {
	if dir != "" {
		return strings.TrimPrefix(dir, gdriveScheme)
	}
	if b.cfg.GDriveFolderID != "" {
		return b.cfg.GDriveFolderID
	}
	return "root"
}

func (b *gdriveBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	folder := b.rootFolder(dir)
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeDriveQuery(folder))

	var files []tariff.FileDescriptor
	pageToken := ""
	for {
		call := b.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, size, modifiedTime, mimeType)").
			OrderBy("modifiedTime desc").
			PageSize(1000).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: list folder %s: %v", tariff.ErrProtocol, folder, err)
		}
		for _, f := range page.Files {
			if f.MimeType == driveFolderMime || !matchName(f.Name, pattern, exclude) {
				continue
			}
			fd := tariff.FileDescriptor{
				Path: gdriveScheme + f.Id,
				Name: f.Name,
				Size: f.Size,
			}
			if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
				fd.ModifiedAt = t
			}
			files = append(files, fd)
		}
		pageToken = page.NextPageToken
		if pageToken == "" || (limit > 0 && len(files) >= limit) {
			break
		}
	}
	return capList(files, limit), nil
}

func (b *gdriveBackend) Download(ctx context.Context, remotePath, localPath string) error {
	id := strings.TrimPrefix(remotePath, gdriveScheme)
	resp, err := b.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return fmt.Errorf("%w: file %s", tariff.ErrNotFound, id)
		}
		return fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if _, err := saveStream(resp.Body, localPath); err != nil {
		return fmt.Errorf("download %s: %w", id, err)
	}
	return nil
}

// EnsureDir verifies the destination folder exists; folders are
// addressed by ID here, so there is nothing to create.
func (b *gdriveBackend) EnsureDir(ctx context.Context, dir string) error {
	id := b.rootFolder(dir)
	meta, err := b.svc.Files.Get(id).Fields("id, mimeType").Context(ctx).Do()
	if err != nil {
		if isDriveNotFound(err) {
			return fmt.Errorf("%w: folder %s", tariff.ErrNotFound, id)
		}
		return fmt.Errorf("check folder %s: %w", id, err)
	}
	if meta.MimeType != driveFolderMime {
		return fmt.Errorf("%w: %s is not a folder", tariff.ErrProtocol, id)
	}
	return nil
}

// Move reparents the file. Drive tolerates duplicate names within a
// folder, so no collision handling is needed and the ID is stable.
func (b *gdriveBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	if err := b.EnsureDir(ctx, dstDir); err != nil {
		return "", err
	}
	id := strings.TrimPrefix(remotePath, gdriveScheme)
	target := b.rootFolder(dstDir)

	meta, err := b.svc.Files.Get(id).Fields("id, parents").Context(ctx).Do()
	if err != nil {
		if isDriveNotFound(err) {
			return "", fmt.Errorf("%w: file %s", tariff.ErrNotFound, id)
		}
		return "", fmt.Errorf("stat %s: %w", id, err)
	}

	call := b.svc.Files.Update(id, nil).AddParents(target).Context(ctx)
	if len(meta.Parents) > 0 {
		call = call.RemoveParents(strings.Join(meta.Parents, ","))
	}
	if _, err := call.Do(); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", id, target, err)
	}
	return gdriveScheme + id, nil
}

func (b *gdriveBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	return false, nil
}

func (b *gdriveBackend) ListFolders(ctx context.Context, dir string) ([]tariff.FileDescriptor, error) {
	folder := b.rootFolder(dir)
	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", escapeDriveQuery(folder), driveFolderMime)

	var folders []tariff.FileDescriptor
	pageToken := ""
	for {
		call := b.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, modifiedTime)").
			OrderBy("name").
			PageSize(1000).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: list folders under %s: %v", tariff.ErrProtocol, folder, err)
		}
		for _, f := range page.Files {
			folders = append(folders, tariff.FileDescriptor{
				Path:     gdriveScheme + f.Id,
				Name:     f.Name,
				IsFolder: true,
			})
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// FolderPath walks the parent chain to build breadcrumbs, newest last,
// giving up past maxBreadcrumbDepth to survive parent cycles.
func (b *gdriveBackend) FolderPath(ctx context.Context, folderID string) ([]tariff.Breadcrumb, error) {
	id := strings.TrimPrefix(folderID, gdriveScheme)
	var crumbs []tariff.Breadcrumb
	for depth := 0; id != "" && id != "root" && depth < maxBreadcrumbDepth; depth++ {
		meta, err := b.svc.Files.Get(id).Fields("id, name, parents").Context(ctx).Do()
		if err != nil {
			if isDriveNotFound(err) {
				return nil, fmt.Errorf("%w: folder %s", tariff.ErrNotFound, id)
			}
			return nil, fmt.Errorf("resolve folder %s: %w", id, err)
		}
		crumbs = append([]tariff.Breadcrumb{{ID: meta.Id, Name: meta.Name}}, crumbs...)
		if len(meta.Parents) == 0 {
			break
		}
		id = meta.Parents[0]
	}
	return crumbs, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

func isDriveNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

// driveTokenSource hands out the stored access token while it has more
// than a minute left and refreshes it otherwise, persisting the new
// token through the saver.
type driveTokenSource struct {
	ctx   context.Context
	conf  *oauth2.Config
	prov  tariff.Provider
	saver TokenSaver

	mu    sync.Mutex
	token *oauth2.Token
}

func newDriveTokenSource(ctx context.Context, p tariff.Provider, saver TokenSaver) *driveTokenSource {
	src := &driveTokenSource{
		ctx: ctx,
		conf: &oauth2.Config{
			ClientID:     p.GDriveClientID,
			ClientSecret: p.GDriveClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveFileScope, drive.DriveReadonlyScope},
		},
		prov:  p,
		saver: saver,
	}
	if p.GDriveAccessToken != "" && p.GDriveTokenExpiry != nil {
		src.token = &oauth2.Token{
			AccessToken:  p.GDriveAccessToken,
			RefreshToken: p.GDriveRefreshToken,
			Expiry:       *p.GDriveTokenExpiry,
		}
	}
	return src
}

func (s *driveTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && time.Until(s.token.Expiry) > tokenRefreshSlop {
		return s.token, nil
	}

	fresh, err := s.conf.TokenSource(s.ctx, &oauth2.Token{RefreshToken: s.prov.GDriveRefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	s.token = fresh
	if s.saver != nil {
		if err := s.saver.SaveToken(s.ctx, s.prov.ID, fresh.AccessToken, fresh.Expiry); err != nil {
			log.Printf("gdrive: persisting refreshed token for provider %s: %v", s.prov.ID, err)
		}
	}
	return fresh, nil
}
