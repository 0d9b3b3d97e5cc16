package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

type ftpBackend struct {
	cfg  tariff.Provider
	conn *ftp.ServerConn
}

func newFTPBackend(p tariff.Provider) *ftpBackend {
	return &ftpBackend{cfg: p}
}

// Connect tries the configured transport first and the other one on any
// failure: plain FTP falls back to explicit FTPS (AUTH TLS) and vice
// versa. When both fail the error names both attempts.
func (b *ftpBackend) Connect(ctx context.Context) error {
	primaryTLS := b.cfg.FTPUseTLS

	primaryErr := b.dial(ctx, primaryTLS)
	if primaryErr == nil {
		return nil
	}
	if fallbackErr := b.dial(ctx, !primaryTLS); fallbackErr != nil {
		plainErr, tlsErr := primaryErr, fallbackErr
		if primaryTLS {
			plainErr, tlsErr = fallbackErr, primaryErr
		}
		return fmt.Errorf("%w: plain ftp: %v; ftps (auth tls): %v", tariff.ErrConnection, plainErr, tlsErr)
	}
	return nil
}

func (b *ftpBackend) dial(ctx context.Context, useTLS bool) error {
	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.EffectivePort()))
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(b.cfg.Timeout()),
	}
	if useTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: b.cfg.Host}))
	}
	if !b.cfg.FTPPassive {
		// The client is passive-only; disabling EPSV is the lever for
		// servers that cannot handle the extended form.
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return err
	}
	if err := conn.Login(b.cfg.Username, b.cfg.Password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("login as %s: %w", b.cfg.Username, err)
	}
	b.conn = conn
	return nil
}

func (b *ftpBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Quit()
	b.conn = nil
	return err
}

// ListFiles walks the candidate directories and, per directory, the
// listing strategies from most to least structured. The first strategy
// that yields at least one matching file wins; empty results and strategy
// errors both advance the cascade.
func (b *ftpBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	_ = ctx
	for _, d := range ftpListingDirs(dir) {
		if files := b.listStructured(d, pattern, exclude); len(files) > 0 {
			return b.finishListing(files, limit), nil
		}
		if files := b.listByNames(d, pattern, exclude); len(files) > 0 {
			return b.finishListing(files, limit), nil
		}
	}
	return nil, nil
}

func (b *ftpBackend) finishListing(files []tariff.FileDescriptor, limit int) []tariff.FileDescriptor {
	sort.Slice(files, func(i, j int) bool { return files[i].ModifiedAt.After(files[j].ModifiedAt) })
	return capList(files, limit)
}

func (b *ftpBackend) listStructured(dir, pattern, exclude string) []tariff.FileDescriptor {
	entries, err := b.conn.List(dir)
	if err != nil {
		log.Printf("ftp: structured listing of %q failed: %v", dir, err)
		return nil
	}
	var files []tariff.FileDescriptor
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		name := baseName(entry.Name)
		if !matchName(name, pattern, exclude) {
			continue
		}
		files = append(files, tariff.FileDescriptor{
			Path:       joinRemote(dir, name),
			Name:       name,
			Size:       int64(entry.Size),
			ModifiedAt: entry.Time,
		})
	}
	return files
}

// listByNames is the NLST fallback: names only, with per-file SIZE and
// MDTM probes. A failed SIZE probe is the directory heuristic here.
func (b *ftpBackend) listByNames(dir, pattern, exclude string) []tariff.FileDescriptor {
	names, err := b.conn.NameList(dir)
	if err != nil {
		log.Printf("ftp: name listing of %q failed: %v", dir, err)
		return nil
	}
	var files []tariff.FileDescriptor
	for _, raw := range names {
		name := baseName(raw)
		if name == "" || name == "." || name == ".." {
			continue
		}
		if !matchName(name, pattern, exclude) {
			continue
		}
		full := joinRemote(dir, name)
		size, err := b.conn.FileSize(full)
		if err != nil {
			continue
		}
		fd := tariff.FileDescriptor{Path: full, Name: name, Size: size}
		if mtime, err := b.conn.GetTime(full); err == nil {
			fd.ModifiedAt = mtime
		}
		files = append(files, fd)
	}
	return files
}

func (b *ftpBackend) Download(ctx context.Context, remotePath, localPath string) error {
	_ = ctx
	resp, err := b.conn.Retr(remotePath)
	if err != nil {
		return fmt.Errorf("retrieve %s: %w", remotePath, err)
	}
	defer resp.Close()

	if _, err := saveStream(resp, localPath); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

// EnsureDir creates each path segment, ignoring the errors servers return
// for segments that already exist.
func (b *ftpBackend) EnsureDir(ctx context.Context, dir string) error {
	_ = ctx
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	prefix := ""
	for _, seg := range strings.Split(dir, "/") {
		prefix = prefix + "/" + seg
		_ = b.conn.MakeDir(prefix)
	}
	return nil
}

func (b *ftpBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	if err := b.EnsureDir(ctx, dstDir); err != nil {
		return "", err
	}

	name := baseName(remotePath)
	target := joinRemote(dstDir, name)
	if existing, err := b.conn.NameList(dstDir); err == nil {
		for _, e := range existing {
			if baseName(e) == name {
				target = joinRemote(dstDir, uniqueName(name))
				break
			}
		}
	}

	if err := b.conn.Rename(remotePath, target); err == nil {
		return target, nil
	}

	// Rename is refused by some servers across directories; copy through a
	// local spool file, verify the size, then delete the source.
	tmp, err := os.CreateTemp("", "ftpmove-*")
	if err != nil {
		return "", fmt.Errorf("spool file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := b.Download(ctx, remotePath, tmpPath); err != nil {
		return "", err
	}
	spool, err := os.Open(tmpPath)
	if err != nil {
		return "", err
	}
	storErr := b.conn.Stor(target, spool)
	spool.Close()
	if storErr != nil {
		return "", fmt.Errorf("store %s: %w", target, storErr)
	}

	local, err := os.Stat(tmpPath)
	if err != nil {
		return "", err
	}
	if remoteSize, err := b.conn.FileSize(target); err == nil && remoteSize != local.Size() {
		return "", fmt.Errorf("%w: %s: destination has %d of %d bytes", tariff.ErrTransferVerification, name, remoteSize, local.Size())
	}

	if err := b.conn.Delete(remotePath); err != nil {
		return target, fmt.Errorf("%w: %s: %v", tariff.ErrSourceNotRemoved, remotePath, err)
	}
	return target, nil
}

func (b *ftpBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	return false, nil
}

// ftpListingDirs expands the root directory into the spellings servers
// disagree about; any other directory stands alone.
func ftpListingDirs(dir string) []string {
	if dir == "" || dir == "/" {
		return []string{"/", ".", ""}
	}
	return []string{dir}
}
