package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

const defaultHTTPFileName = "download.csv"

type httpBackend struct {
	cfg    tariff.Provider
	client *http.Client
}

func newHTTPBackend(p tariff.Provider) *httpBackend {
	return &httpBackend{
		cfg:    p,
		client: &http.Client{Timeout: p.Timeout()},
	}
}

func (b *httpBackend) Connect(ctx context.Context) error {
	_ = ctx
	u := strings.TrimSpace(b.cfg.URL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("%w: url must start with http:// or https://", tariff.ErrConnection)
	}
	if _, err := url.Parse(u); err != nil {
		return fmt.Errorf("%w: invalid url: %v", tariff.ErrConnection, err)
	}
	return nil
}

func (b *httpBackend) Close() error { return nil }

// ListFiles is degenerate for a URL source: the configured URL is the one
// and only candidate file.
func (b *httpBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	_ = ctx
	_ = dir
	name := fileNameFromURL(b.cfg.URL)
	if !matchName(name, pattern, exclude) {
		return nil, nil
	}
	files := []tariff.FileDescriptor{{
		Path: strings.TrimSpace(b.cfg.URL),
		Name: name,
	}}
	return capList(files, limit), nil
}

func (b *httpBackend) Download(ctx context.Context, remotePath, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remotePath, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if b.cfg.URLUsername != "" {
		req.SetBasicAuth(b.cfg.URLUsername, b.cfg.URLPassword)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", tariff.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", tariff.ErrNotFound, remotePath)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %s fetching %s", tariff.ErrProtocol, resp.Status, remotePath)
	}

	if _, err := saveStream(resp.Body, localPath); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

func (b *httpBackend) EnsureDir(ctx context.Context, dir string) error { return nil }

// Move is a no-op: the remote server is not ours to mutate.
func (b *httpBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	return remotePath, nil
}

func (b *httpBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	return false, nil
}

func fileNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	name := baseName(raw)
	if name == "" || strings.Contains(name, "://") {
		return defaultHTTPFileName
	}
	return name
}
