package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type PreviewRemoteFilesInput struct {
	ProviderID string
}

type RemoteFileOutput struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	IsFolder   bool       `json:"is_folder,omitempty"`
}

type PreviewRemoteFilesOutput struct {
	Files []RemoteFileOutput `json:"files"`
}

type PreviewRemoteFiles interface {
	Execute(ctx context.Context, in PreviewRemoteFilesInput) (PreviewRemoteFilesOutput, error)
}

type previewRemoteFiles struct {
	providers providerGetter
	backends  domain.BackendFactory
}

func NewPreviewRemoteFiles(providers providerGetter, backends domain.BackendFactory) PreviewRemoteFiles {
	return &previewRemoteFiles{providers: providers, backends: backends}
}

func (uc *previewRemoteFiles) Execute(ctx context.Context, in PreviewRemoteFilesInput) (PreviewRemoteFilesOutput, error) {
	if !idPattern.MatchString(in.ProviderID) {
		return PreviewRemoteFilesOutput{}, ErrInvalidProviderID
	}

	p, err := uc.providers.GetByID(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return PreviewRemoteFilesOutput{}, ErrProviderNotFound
		}
		return PreviewRemoteFilesOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}
	if err := p.Validate(); err != nil {
		return PreviewRemoteFilesOutput{}, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}

	backend, err := uc.backends.ForProvider(p)
	if err != nil {
		return PreviewRemoteFilesOutput{}, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	if err := backend.Connect(opCtx); err != nil {
		return PreviewRemoteFilesOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}
	defer backend.Close()

	files, err := backend.ListFiles(opCtx, p.RemoteDirIn, p.EffectiveFilePattern(), p.ExcludePattern, p.EffectiveMaxPreview())
	if err != nil {
		return PreviewRemoteFilesOutput{}, fmt.Errorf("%w: %v", ErrListRemoteFiles, err)
	}

	out := PreviewRemoteFilesOutput{Files: make([]RemoteFileOutput, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, remoteFileOutput(f))
	}
	return out, nil
}

func remoteFileOutput(f domain.FileDescriptor) RemoteFileOutput {
	entry := RemoteFileOutput{
		Path:     f.Path,
		Name:     f.Name,
		Size:     f.Size,
		IsFolder: f.IsFolder,
	}
	if !f.ModifiedAt.IsZero() {
		modifiedAt := f.ModifiedAt
		entry.ModifiedAt = &modifiedAt
	}
	return entry
}
