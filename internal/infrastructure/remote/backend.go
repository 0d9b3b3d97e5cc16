// Package remote implements the protocol adapters behind the
// tariff.Backend contract: FTP/FTPS, SFTP, IMAP, HTTP, local filesystem
// and Google Drive.
package remote

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// maxBreadcrumbDepth bounds folder-path resolution so a cyclic or very
// deep parent chain cannot loop the picker.
const maxBreadcrumbDepth = 20

// uniqueName suffixes a file name with the current unix time, used when a
// move target already exists so nothing is ever overwritten.
func uniqueName(name string) string {
	return fmt.Sprintf("%s.%d", name, time.Now().Unix())
}

// joinRemote joins a remote directory and file name with forward slashes
// regardless of the local OS.
func joinRemote(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func baseName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// saveStream writes r to localPath, failing on either the copy or the
// final close so short writes never pass silently.
func saveStream(r io.Reader, localPath string) (int64, error) {
	out, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return 0, err
	}
	return n, nil
}
