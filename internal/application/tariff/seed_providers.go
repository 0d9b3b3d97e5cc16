package tariff

import (
	"context"
	"fmt"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type providerSeeder interface {
	UpsertByName(ctx context.Context, p domain.Provider) (string, bool, error)
}

// SeedProviders applies a file-declared provider list at startup,
// matching rows by name. Runtime columns of existing rows survive, so
// reseeding never drops Drive tokens or run history.
type SeedProviders struct {
	providers providerSeeder
}

func NewSeedProviders(providers providerSeeder) *SeedProviders {
	return &SeedProviders{providers: providers}
}

// Execute upserts every seed and returns how many were applied. It
// stops at the first invalid entry so a bad file is noticed at boot
// rather than half-applied silently.
func (s *SeedProviders) Execute(ctx context.Context, seeds []ProviderParams) (int, error) {
	for i, in := range seeds {
		p := in.apply(domain.Provider{})
		if err := validateProvider(p); err != nil {
			return i, fmt.Errorf("provider %q: %w", in.Name, err)
		}
		if _, _, err := s.providers.UpsertByName(ctx, p); err != nil {
			return i, fmt.Errorf("%w: provider %q: %v", ErrSaveProvider, in.Name, err)
		}
	}
	return len(seeds), nil
}
