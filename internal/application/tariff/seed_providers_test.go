package tariff_test

import (
	"context"
	"errors"
	"testing"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type fakeSeeder struct {
	upserts []domain.Provider
	err     error
}

func (f *fakeSeeder) UpsertByName(ctx context.Context, p domain.Provider) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.upserts = append(f.upserts, p)
	return testProviderID, true, nil
}

func TestSeedProvidersUpsertsEverySeed(t *testing.T) {
	t.Parallel()

	seeder := &fakeSeeder{}
	uc := app.NewSeedProviders(seeder)

	n, err := uc.Execute(context.Background(), []app.ProviderParams{
		{Name: "acme", Protocol: "local", LocalPath: "/data/acme"},
		{Name: "globex", Protocol: "ftp", Host: "ftp.globex.example", Username: "import"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 seeds applied, got %d", n)
	}
	if seeder.upserts[0].Name != "acme" || seeder.upserts[1].Host != "ftp.globex.example" {
		t.Fatalf("unexpected upserts: %+v", seeder.upserts)
	}
}

func TestSeedProvidersStopsAtFirstInvalid(t *testing.T) {
	t.Parallel()

	seeder := &fakeSeeder{}
	uc := app.NewSeedProviders(seeder)

	n, err := uc.Execute(context.Background(), []app.ProviderParams{
		{Name: "acme", Protocol: "local", LocalPath: "/data/acme"},
		{Name: "broken", Protocol: "ftp"},
		{Name: "globex", Protocol: "local", LocalPath: "/data/globex"},
	})
	if !errors.Is(err, app.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 seed applied before the stop, got %d", n)
	}
	if len(seeder.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(seeder.upserts))
	}
}
