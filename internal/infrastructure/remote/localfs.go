package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

type localBackend struct {
	base string
}

func newLocalBackend(p tariff.Provider) *localBackend {
	base := p.LocalPath
	if base == "" {
		base = "."
	}
	return &localBackend{base: base}
}

func (b *localBackend) Connect(ctx context.Context) error {
	_ = ctx
	info, err := os.Stat(b.base)
	if err != nil {
		return fmt.Errorf("%w: local path %s: %v", tariff.ErrConnection, b.base, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: local path %s is not a directory", tariff.ErrConnection, b.base)
	}
	return nil
}

func (b *localBackend) Close() error { return nil }

// resolve maps a remote-style directory onto the configured base path.
func (b *localBackend) resolve(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == "/" || dir == "." {
		return b.base
	}
	return filepath.Join(b.base, filepath.FromSlash(strings.TrimPrefix(dir, "/")))
}

func (b *localBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	_ = ctx
	root := b.resolve(dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	files := make([]tariff.FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !matchName(entry.Name(), pattern, exclude) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, tariff.FileDescriptor{
			Path:       filepath.Join(root, entry.Name()),
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ModifiedAt.After(files[j].ModifiedAt) })
	return capList(files, limit), nil
}

func (b *localBackend) Download(ctx context.Context, remotePath, localPath string) error {
	_ = ctx
	in, err := os.Open(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", tariff.ErrNotFound, remotePath)
		}
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer in.Close()

	if _, err := saveStream(in, localPath); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

func (b *localBackend) EnsureDir(ctx context.Context, dir string) error {
	_ = ctx
	return os.MkdirAll(b.resolve(dir), 0o755)
}

func (b *localBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	if err := b.EnsureDir(ctx, dstDir); err != nil {
		return "", fmt.Errorf("ensure %s: %w", dstDir, err)
	}

	name := filepath.Base(remotePath)
	target := filepath.Join(b.resolve(dstDir), name)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(b.resolve(dstDir), uniqueName(name))
	}

	if err := os.Rename(remotePath, target); err == nil {
		return target, nil
	}

	// Rename can fail across filesystems; fall back to copy and verify the
	// byte count before the source is deleted.
	srcInfo, err := os.Stat(remotePath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", remotePath, err)
	}
	in, err := os.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", remotePath, err)
	}
	written, err := saveStream(in, target)
	in.Close()
	if err != nil {
		return "", fmt.Errorf("copy to %s: %w", target, err)
	}
	if written != srcInfo.Size() {
		os.Remove(target)
		return "", fmt.Errorf("%w: %s: wrote %d of %d bytes", tariff.ErrTransferVerification, name, written, srcInfo.Size())
	}
	if err := os.Remove(remotePath); err != nil {
		return target, fmt.Errorf("%w: %s: %v", tariff.ErrSourceNotRemoved, remotePath, err)
	}
	return target, nil
}

func (b *localBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	return false, nil
}

func (b *localBackend) ListFolders(ctx context.Context, dir string) ([]tariff.FileDescriptor, error) {
	_ = ctx
	root := b.resolve(dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list folders %s: %w", root, err)
	}
	folders := make([]tariff.FileDescriptor, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		folders = append(folders, tariff.FileDescriptor{
			Path:       filepath.Join(root, entry.Name()),
			Name:       entry.Name(),
			ModifiedAt: info.ModTime(),
			IsFolder:   true,
		})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// FolderPath builds the breadcrumb chain from the base path down to the
// given directory.
func (b *localBackend) FolderPath(ctx context.Context, folderID string) ([]tariff.Breadcrumb, error) {
	_ = ctx
	abs, err := filepath.Abs(folderID)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(b.base)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(abs, base) {
		return nil, fmt.Errorf("%w: %s is outside the provider base path", tariff.ErrNotFound, folderID)
	}

	var crumbs []tariff.Breadcrumb
	for cur := abs; cur != base && len(crumbs) < maxBreadcrumbDepth; cur = filepath.Dir(cur) {
		crumbs = append([]tariff.Breadcrumb{{ID: cur, Name: filepath.Base(cur)}}, crumbs...)
	}
	return crumbs, nil
}
