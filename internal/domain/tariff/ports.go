package tariff

import "context"

// Backend is the uniform remote-storage contract every protocol adapter
// implements. A Backend owns at most one live connection: Connect opens it,
// Close releases it, and callers guarantee Close on every exit path.
//
// ListFiles returning an empty slice means "no matching files" and is a
// normal outcome; an error means the listing itself could not be performed.
type Backend interface {
	Connect(ctx context.Context) error
	Close() error
	ListFiles(ctx context.Context, dir, pattern, exclude string, limit int) ([]FileDescriptor, error)
	Download(ctx context.Context, remotePath, localPath string) error
	EnsureDir(ctx context.Context, dir string) error
	// Move relocates a remote file into dstDir and returns the new path.
	// Implementations never overwrite an existing destination.
	Move(ctx context.Context, remotePath, dstDir string) (string, error)
	// MarkSeen flags a file as consumed where the protocol supports it
	// (IMAP); other backends return false without error.
	MarkSeen(ctx context.Context, remotePath string) (bool, error)
}

// FolderBrowser is implemented by backends that can enumerate folders for
// a directory picker (drive-style and filesystem-style backends).
type FolderBrowser interface {
	ListFolders(ctx context.Context, dir string) ([]FileDescriptor, error)
	FolderPath(ctx context.Context, folderID string) ([]Breadcrumb, error)
}

// BackendFactory selects an adapter from a provider's declared protocol.
type BackendFactory interface {
	ForProvider(p Provider) (Backend, error)
}

// ProviderLocker serializes processing per provider. TryAcquire never
// blocks: ok=false means another run already holds the provider.
type ProviderLocker interface {
	TryAcquire(ctx context.Context, providerID string) (ProviderLease, bool, error)
}

// ProviderLease is a held provider lock. Release must run on every exit
// path of the run that acquired it.
type ProviderLease interface {
	Release(ctx context.Context)
}
