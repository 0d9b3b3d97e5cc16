package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	"github.com/tariffio/tariff-import/internal/config"
	"github.com/tariffio/tariff-import/internal/infrastructure/remote"
	"github.com/tariffio/tariff-import/internal/infrastructure/repository"
	httpecho "github.com/tariffio/tariff-import/internal/interfaces/http/echo"
)

// Server bundles what main needs to run: the HTTP API, the background
// scheduler and the startup seeder, wired over shared repositories.
type Server struct {
	HTTP      *echo.Echo
	Scheduler *app.Scheduler
	Seeder    *app.SeedProviders
}

func NewServer(cfg config.Config, db *gorm.DB, pool *pgxpool.Pool) *Server {
	server := echo.New()
	server.HideBanner = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit("10M"))

	providerRepo := repository.NewProviderRepository(db)
	jobRepo := repository.NewImportJobRepository(db)
	logRepo := repository.NewImportLogRepository(db)
	recordRepo := repository.NewTariffRecordRepository(pool)
	locks := repository.NewProviderLock(pool)

	backends := remote.NewFactory(remote.Options{
		EnableSFTP: cfg.EnableSFTP,
		TokenSaver: providerRepo,
	})

	runner := app.NewJobRunner(jobRepo, providerRepo, logRepo, recordRepo, locks, backends, app.JobRunnerConfig{
		ChunkRows:      cfg.ChunkRows,
		RetryBackoff:   cfg.RetryBackoff,
		MaxRunDuration: cfg.MaxRunDuration,
	})

	scheduler := app.NewScheduler(jobRepo, providerRepo, runner, app.SchedulerConfig{
		TickSpec:        cfg.TickSpec,
		PendingBatch:    cfg.PendingBatch,
		RetryBatch:      cfg.RetryBatch,
		PausedBatch:     cfg.PausedBatch,
		MaxRetries:      cfg.MaxRetries,
		StaleAfter:      cfg.StaleAfter,
		StaleBackoff:    cfg.StaleBackoff,
		NearDonePercent: cfg.NearDonePercent,
		NearDoneGrace:   cfg.NearDoneGrace,
		DeadAfter:       cfg.DeadAfter,
	})

	providerHandler := httpecho.NewProviderHandler(
		app.NewProviderAdmin(providerRepo, backends),
		app.NewPreviewRemoteFiles(providerRepo, backends),
		app.NewCreateImportJob(providerRepo, jobRepo, cfg.MaxRetries),
		app.NewListImportLogs(providerRepo, logRepo),
		app.NewGDriveConnect(providerRepo, backends, cfg.DriveRedirectURL),
	)
	jobHandler := httpecho.NewJobHandler(
		app.NewGetJobStatus(jobRepo),
		app.NewForceRetryJob(jobRepo),
		app.NewCancelJob(jobRepo),
		app.NewGetLogFile(logRepo),
	)

	httpecho.RegisterRoutes(server, providerHandler, jobHandler)

	return &Server{
		HTTP:      server,
		Scheduler: scheduler,
		Seeder:    app.NewSeedProviders(providerRepo),
	}
}
