package tariff

import "time"

// FileDescriptor is the unit exchanged between backends and callers.
// Descriptors are produced fresh on every listing call and never cached.
type FileDescriptor struct {
	Path       string
	Name       string
	Size       int64
	ModifiedAt time.Time
	IsFolder   bool
}

// Breadcrumb is one segment of a folder path, used by drive-style backends
// where folders are addressed by id rather than by path.
type Breadcrumb struct {
	ID   string
	Name string
}
