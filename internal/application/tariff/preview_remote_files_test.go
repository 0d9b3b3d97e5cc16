package tariff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

func TestPreviewRemoteFilesListsBackendEntries(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{
		ID:        testProviderID,
		Name:      "acme",
		Protocol:  domain.ProtocolLocal,
		LocalPath: "/data",
	}}
	backend := &fakeBackend{files: []domain.FileDescriptor{
		{Path: "in/tarif.csv", Name: "tarif.csv", Size: 2048, ModifiedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		{Path: "in/archive", Name: "archive", IsFolder: true},
	}}
	uc := app.NewPreviewRemoteFiles(providers, &fakeFactory{backend: backend})

	out, err := uc.Execute(context.Background(), app.PreviewRemoteFilesInput{ProviderID: testProviderID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out.Files))
	}
	if out.Files[0].Name != "tarif.csv" || out.Files[0].Size != 2048 {
		t.Fatalf("unexpected entry: %+v", out.Files[0])
	}
	if out.Files[0].ModifiedAt == nil {
		t.Fatal("expected a modification time")
	}
	// Zero mtimes stay out of the payload instead of rendering as 0001-01-01.
	if out.Files[1].ModifiedAt != nil || !out.Files[1].IsFolder {
		t.Fatalf("unexpected folder entry: %+v", out.Files[1])
	}
}

func TestPreviewRemoteFilesRejectsBrokenConfig(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{
		ID:       testProviderID,
		Name:     "acme",
		Protocol: domain.ProtocolLocal,
	}}
	uc := app.NewPreviewRemoteFiles(providers, &fakeFactory{})

	if _, err := uc.Execute(context.Background(), app.PreviewRemoteFilesInput{ProviderID: testProviderID}); !errors.Is(err, app.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
}

func TestPreviewRemoteFilesConnectFailure(t *testing.T) {
	t.Parallel()

	providers := &fakeProviderGetter{provider: domain.Provider{
		ID:        testProviderID,
		Name:      "acme",
		Protocol:  domain.ProtocolLocal,
		LocalPath: "/data",
	}}
	backend := &fakeBackend{connectErr: errors.New("connection refused")}
	uc := app.NewPreviewRemoteFiles(providers, &fakeFactory{backend: backend})

	if _, err := uc.Execute(context.Background(), app.PreviewRemoteFilesInput{ProviderID: testProviderID}); !errors.Is(err, app.ErrListRemoteFiles) {
		t.Fatalf("expected ErrListRemoteFiles, got %v", err)
	}
}
