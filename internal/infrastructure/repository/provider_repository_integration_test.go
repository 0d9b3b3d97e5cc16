package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
	"github.com/tariffio/tariff-import/internal/infrastructure/repository"
)

func TestProviderRepositoryRoundTripIntegration(t *testing.T) {
	gormDB := openTestDB(t)
	ctx := context.Background()
	repo := repository.NewProviderRepository(gormDB)

	id, err := repo.Create(ctx, tariff.Provider{
		Name:                 "acme-ftp",
		Active:               true,
		Protocol:             tariff.ProtocolFTP,
		Host:                 "ftp.acme.example",
		Port:                 2121,
		Username:             "tariff",
		Password:             "secret",
		FTPPassive:           true,
		RemoteDirIn:          "incoming",
		RemoteDirProcessed:   "done",
		FilePattern:          "tarif_*.csv",
		CSVDelimiter:         ";",
		CSVHasHeader:         true,
		BarcodeColumns:       "ean,gencod",
		PriceColumn:          "Prix de vente",
		AutoProcess:          true,
		ScheduleEveryMinutes: 120,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty provider id")
	}

	p, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.Name != "acme-ftp" || p.Protocol != tariff.ProtocolFTP {
		t.Fatalf("unexpected provider: %s %s", p.Name, p.Protocol)
	}
	if p.Host != "ftp.acme.example" || p.Port != 2121 {
		t.Fatalf("unexpected endpoint: %s:%d", p.Host, p.Port)
	}
	if p.BarcodeColumns != "ean,gencod" || p.PriceColumn != "Prix de vente" {
		t.Fatalf("unexpected csv mapping: %s / %s", p.BarcodeColumns, p.PriceColumn)
	}
	if !p.AutoProcess || p.ScheduleEveryMinutes != 120 {
		t.Fatalf("unexpected schedule: auto=%v every=%d", p.AutoProcess, p.ScheduleEveryMinutes)
	}
	if p.LastError != "" {
		t.Fatalf("expected empty last error, got %q", p.LastError)
	}

	p.Host = "ftp2.acme.example"
	p.Active = false
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if p.Host != "ftp2.acme.example" || p.Active {
		t.Fatalf("update not applied: host=%s active=%v", p.Host, p.Active)
	}

	missing := p
	missing.ID = "4f2a1f56-0000-0000-0000-000000000000"
	if err := repo.Update(ctx, missing); !errors.Is(err, tariff.ErrNotFound) {
		t.Fatalf("expected not found updating unknown provider, got %v", err)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, id); !errors.Is(err, tariff.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repo.Delete(ctx, id); !errors.Is(err, tariff.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestProviderRepositoryUpsertByNameIntegration(t *testing.T) {
	gormDB := openTestDB(t)
	ctx := context.Background()
	repo := repository.NewProviderRepository(gormDB)

	seed := tariff.Provider{
		Name:      "grossiste-sftp",
		Active:    true,
		Protocol:  tariff.ProtocolSFTP,
		Host:      "sftp.grossiste.example",
		Username:  "import",
		Password:  "pw",
		LocalPath: "",
	}
	id, created, err := repo.UpsertByName(ctx, seed)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create")
	}

	// Runtime columns written after the seed must survive a re-seed.
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := repo.SaveDriveTokens(ctx, id, "refresh-1", "access-1", &expiry); err != nil {
		t.Fatalf("save tokens failed: %v", err)
	}
	if err := repo.SetConnectionStatus(ctx, id, "failed", "dial tcp: refused"); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if err := repo.TouchLastRun(ctx, id); err != nil {
		t.Fatalf("touch last run failed: %v", err)
	}

	seed.Host = "sftp2.grossiste.example"
	id2, created, err := repo.UpsertByName(ctx, seed)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if created {
		t.Fatal("expected second upsert to update")
	}
	if id2 != id {
		t.Fatalf("expected stable id, got %s and %s", id, id2)
	}

	p, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.Host != "sftp2.grossiste.example" {
		t.Fatalf("expected refreshed host, got %s", p.Host)
	}
	if p.GDriveRefreshToken != "refresh-1" || p.GDriveAccessToken != "access-1" {
		t.Fatalf("expected tokens to survive re-seed, got %q / %q", p.GDriveRefreshToken, p.GDriveAccessToken)
	}
	if p.LastConnectionStatus != "failed" || p.LastError != "dial tcp: refused" {
		t.Fatalf("expected status to survive re-seed, got %s / %q", p.LastConnectionStatus, p.LastError)
	}
	if p.LastRunAt == nil {
		t.Fatal("expected last run to survive re-seed")
	}

	// Clearing the error on a later success drops the stored message.
	if err := repo.SetConnectionStatus(ctx, id, "ok", ""); err != nil {
		t.Fatalf("set ok status failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after ok failed: %v", err)
	}
	if p.LastConnectionStatus != "ok" || p.LastError != "" {
		t.Fatalf("expected cleared error, got %s / %q", p.LastConnectionStatus, p.LastError)
	}
}

func TestProviderRepositoryDriveTokensIntegration(t *testing.T) {
	gormDB := openTestDB(t)
	ctx := context.Background()
	repo := repository.NewProviderRepository(gormDB)
	id := createTestProvider(t, gormDB, "drive-provider")

	if err := repo.SaveDriveAuthState(ctx, id, "nonce-123"); err != nil {
		t.Fatalf("save auth state failed: %v", err)
	}
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.GDriveAuthState != "nonce-123" {
		t.Fatalf("expected stored auth state, got %q", p.GDriveAuthState)
	}

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := repo.SaveDriveTokens(ctx, id, "refresh-1", "access-1", &expiry); err != nil {
		t.Fatalf("save tokens failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after tokens failed: %v", err)
	}
	if p.GDriveRefreshToken != "refresh-1" || p.GDriveAccessToken != "access-1" {
		t.Fatalf("unexpected tokens: %q / %q", p.GDriveRefreshToken, p.GDriveAccessToken)
	}
	if p.GDriveTokenExpiry == nil || !p.GDriveTokenExpiry.Equal(expiry) {
		t.Fatalf("unexpected expiry: %v", p.GDriveTokenExpiry)
	}
	if p.GDriveAuthState != "" {
		t.Fatalf("expected consumed auth state, got %q", p.GDriveAuthState)
	}

	// Google only returns the refresh token on the first consent; a later
	// exchange without one must not wipe the stored token.
	if err := repo.SaveDriveTokens(ctx, id, "", "access-2", &expiry); err != nil {
		t.Fatalf("second save tokens failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after second tokens failed: %v", err)
	}
	if p.GDriveRefreshToken != "refresh-1" || p.GDriveAccessToken != "access-2" {
		t.Fatalf("expected kept refresh token, got %q / %q", p.GDriveRefreshToken, p.GDriveAccessToken)
	}

	later := expiry.Add(time.Hour)
	if err := repo.SaveToken(ctx, id, "access-3", later); err != nil {
		t.Fatalf("save refreshed token failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after refresh failed: %v", err)
	}
	if p.GDriveAccessToken != "access-3" || p.GDriveTokenExpiry == nil || !p.GDriveTokenExpiry.Equal(later) {
		t.Fatalf("unexpected refreshed token: %q at %v", p.GDriveAccessToken, p.GDriveTokenExpiry)
	}

	if err := repo.DisconnectDrive(ctx, id); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	p, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get after disconnect failed: %v", err)
	}
	if p.GDriveRefreshToken != "" || p.GDriveAccessToken != "" || p.GDriveTokenExpiry != nil {
		t.Fatal("expected disconnect to drop every token")
	}
}

func TestProviderRepositoryListAutoProcessIntegration(t *testing.T) {
	gormDB := openTestDB(t)
	ctx := context.Background()
	repo := repository.NewProviderRepository(gormDB)

	create := func(name string, active, auto bool) {
		t.Helper()
		_, err := repo.Create(ctx, tariff.Provider{
			Name:        name,
			Active:      active,
			Protocol:    tariff.ProtocolLocal,
			LocalPath:   "/var/lib/tariffs/" + name,
			AutoProcess: auto,
		})
		if err != nil {
			t.Fatalf("create %s failed: %v", name, err)
		}
	}
	create("b-scheduled", true, true)
	create("a-scheduled", true, true)
	create("manual", true, false)
	create("disabled", false, true)

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(all))
	}
	if all[0].Name != "a-scheduled" {
		t.Fatalf("expected name ordering, got %s first", all[0].Name)
	}

	auto, err := repo.ListAutoProcess(ctx)
	if err != nil {
		t.Fatalf("list auto-process failed: %v", err)
	}
	if len(auto) != 2 {
		t.Fatalf("expected 2 auto-process providers, got %d", len(auto))
	}
	if auto[0].Name != "a-scheduled" || auto[1].Name != "b-scheduled" {
		t.Fatalf("unexpected auto-process set: %s, %s", auto[0].Name, auto[1].Name)
	}
}
