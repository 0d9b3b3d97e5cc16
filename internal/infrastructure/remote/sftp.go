package remote

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

type sftpBackend struct {
	cfg    tariff.Provider
	ssh    *ssh.Client
	client *sftp.Client
}

func newSFTPBackend(p tariff.Provider) *sftpBackend {
	return &sftpBackend{cfg: p}
}

func (b *sftpBackend) Connect(ctx context.Context) error {
	auth, err := b.authMethods()
	if err != nil {
		return fmt.Errorf("%w: %v", tariff.ErrConnection, err)
	}
	config := &ssh.ClientConfig{
		User:            b.cfg.Username,
		Auth:            auth,
		HostKeyCallback: b.hostKeyCallback(),
		Timeout:         b.cfg.Timeout(),
	}

	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.EffectivePort()))
	dialer := net.Dialer{Timeout: b.cfg.Timeout()}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", tariff.ErrConnection, addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("%w: ssh handshake with %s: %v", tariff.ErrConnection, addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("%w: open sftp subsystem: %v", tariff.ErrConnection, err)
	}
	b.ssh = sshClient
	b.client = client
	return nil
}

// authMethods prefers the configured private key and keeps the password
// as a second attempt so either credential can carry the session.
func (b *sftpBackend) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if key := strings.TrimSpace(b.cfg.SFTPPrivateKey); key != "" {
		var signer ssh.Signer
		var err error
		if b.cfg.SFTPPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(b.cfg.SFTPPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(key))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if b.cfg.Password != "" {
		methods = append(methods, ssh.Password(b.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no private key or password configured")
	}
	return methods, nil
}

func (b *sftpBackend) hostKeyCallback() ssh.HostKeyCallback {
	want := strings.TrimSpace(b.cfg.SFTPHostKeyFingerprint)
	if want == "" {
		return ssh.InsecureIgnoreHostKey()
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if fingerprintMatches(want, key) {
			return nil
		}
		return fmt.Errorf("host key mismatch for %s: got %s", hostname, ssh.FingerprintSHA256(key))
	}
}

// fingerprintMatches accepts the OpenSSH SHA256 form and the legacy
// colon-separated MD5 hex form, with or without their prefixes.
func fingerprintMatches(want string, key ssh.PublicKey) bool {
	norm := func(s string) string {
		s = strings.TrimSpace(strings.ToLower(s))
		s = strings.TrimPrefix(s, "sha256:")
		s = strings.TrimPrefix(s, "md5:")
		return s
	}
	want = norm(want)
	return want == norm(ssh.FingerprintSHA256(key)) || want == norm(ssh.FingerprintLegacyMD5(key))
}

func (b *sftpBackend) Close() error {
	var err error
	if b.client != nil {
		err = b.client.Close()
		b.client = nil
	}
	if b.ssh != nil {
		if cerr := b.ssh.Close(); err == nil {
			err = cerr
		}
		b.ssh = nil
	}
	return err
}

// ListFiles reads the first candidate directory that contains at least
// one matching file: the configured directory, then the session home,
// then "." and "/". Unreadable candidates advance the cascade.
func (b *sftpBackend) ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]tariff.FileDescriptor, error) {
	_ = ctx
	for _, d := range b.listingDirs(dir) {
		entries, err := b.client.ReadDir(d)
		if err != nil {
			log.Printf("sftp: listing of %q failed: %v", d, err)
			continue
		}
		var files []tariff.FileDescriptor
		for _, entry := range entries {
			if entry.IsDir() || !matchName(entry.Name(), pattern, exclude) {
				continue
			}
			files = append(files, tariff.FileDescriptor{
				Path:       joinRemote(d, entry.Name()),
				Name:       entry.Name(),
				Size:       entry.Size(),
				ModifiedAt: entry.ModTime(),
			})
		}
		if len(files) > 0 {
			sort.Slice(files, func(i, j int) bool { return files[i].ModifiedAt.After(files[j].ModifiedAt) })
			return capList(files, limit), nil
		}
	}
	return nil, nil
}

func (b *sftpBackend) listingDirs(dir string) []string {
	var dirs []string
	if dir != "" {
		dirs = append(dirs, dir)
	}
	if home, err := b.client.Getwd(); err == nil && home != "" && home != dir {
		dirs = append(dirs, home)
	}
	for _, d := range []string{".", "/"} {
		if d != dir {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (b *sftpBackend) Download(ctx context.Context, remotePath, localPath string) error {
	_ = ctx
	src, err := b.client.Open(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", tariff.ErrNotFound, remotePath)
		}
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer src.Close()

	if _, err := saveStream(src, localPath); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

func (b *sftpBackend) EnsureDir(ctx context.Context, dir string) error {
	_ = ctx
	if dir == "" {
		return nil
	}
	if err := b.client.MkdirAll(dir); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func (b *sftpBackend) Move(ctx context.Context, remotePath, dstDir string) (string, error) {
	if err := b.EnsureDir(ctx, dstDir); err != nil {
		return "", err
	}

	name := baseName(remotePath)
	target := joinRemote(dstDir, name)
	if _, err := b.client.Stat(target); err == nil {
		target = joinRemote(dstDir, uniqueName(name))
	}

	if err := b.client.PosixRename(remotePath, target); err == nil {
		return target, nil
	}
	if err := b.client.Rename(remotePath, target); err == nil {
		return target, nil
	}

	// Cross-filesystem moves need the long way round: copy, verify the
	// byte count, then remove the source.
	src, err := b.client.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer src.Close()
	srcInfo, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", remotePath, err)
	}

	dst, err := b.client.Create(target)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = b.client.Remove(target)
		return "", fmt.Errorf("copy to %s: %w", target, copyErr)
	}
	if written != srcInfo.Size() {
		_ = b.client.Remove(target)
		return "", fmt.Errorf("%w: %s: destination has %d of %d bytes", tariff.ErrTransferVerification, name, written, srcInfo.Size())
	}

	if err := b.client.Remove(remotePath); err != nil {
		return target, fmt.Errorf("%w: %s: %v", tariff.ErrSourceNotRemoved, remotePath, err)
	}
	return target, nil
}

func (b *sftpBackend) MarkSeen(ctx context.Context, remotePath string) (bool, error) {
	return false, nil
}
