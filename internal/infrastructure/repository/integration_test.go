package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
	"github.com/tariffio/tariff-import/internal/infrastructure/db"
	"github.com/tariffio/tariff-import/internal/infrastructure/repository"
)

// openTestDB connects to the database named by TEST_DATABASE_URL, brings
// the schema up to date and clears every import table so tests start from
// a known state. Without the variable the test is skipped.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tables := []string{
		"stg_tariff_records",
		"tariff_records",
		"tariff_import_quarantine",
		"tariff_import_logs",
		"tariff_import_jobs",
		"tariff_providers",
	}
	for _, table := range tables {
		if err := gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("failed to cleanup %s: %v", table, err)
		}
	}
	return gormDB
}

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to connect pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// createTestProvider seeds the provider row the import tables reference.
func createTestProvider(t *testing.T, gormDB *gorm.DB, name string) string {
	t.Helper()
	id, err := repository.NewProviderRepository(gormDB).Create(context.Background(), tariff.Provider{
		Name:      name,
		Active:    true,
		Protocol:  tariff.ProtocolLocal,
		LocalPath: "/var/lib/tariffs/" + name,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return id
}
