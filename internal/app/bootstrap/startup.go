// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	statsstore "github.com/dalemusser/stratadrive/internal/app/store/stats"
	"github.com/dalemusser/stratadrive/internal/app/system/mailer"
	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Prune jobs run on a fixed cadence; only their retention is configurable.
const (
	ledgerPruneInterval   = 6 * time.Hour
	apiStatsPruneInterval = 24 * time.Hour
)

// driveService is shared by the HTTP handlers and the background jobs.
var driveService *drive.Service

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// notifier sends share email; nil when smtp_host is blank. Shutdown waits
// for pending sends.
var notifier *mailer.Notifier

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It builds the drive service and starts the background jobs. Returning an
// error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(appCfg.DBTimeoutShort, appCfg.DBTimeoutMedium)

	driveService = drive.New(deps.MongoDatabase, deps.Blobs, drive.Config{
		URLTTL: appCfg.DownloadURLTTL,
	}, logger)

	startTaskRunner(appCfg, deps, logger)
	return nil
}

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.TrashPurgeJob(driveService, appCfg.TrashRetention, appCfg.TrashPurgeInterval, logger))
	if appCfg.QuotaReconcileInterval > 0 {
		taskRunner.Register(tasks.QuotaReconcileJob(driveService, appCfg.QuotaReconcileInterval, logger))
	}
	if appCfg.LedgerRetention > 0 {
		taskRunner.Register(tasks.LedgerPruneJob(ledgerstore.New(deps.MongoDatabase), appCfg.LedgerRetention, ledgerPruneInterval, logger))
	}
	if appCfg.APIStatsBucket > 0 && appCfg.APIStatsRetention > 0 {
		taskRunner.Register(tasks.APIStatsPruneJob(apistatsstore.New(deps.MongoDatabase), appCfg.APIStatsRetention, apiStatsPruneInterval, logger))
	}
	if appCfg.DriveStatsInterval > 0 {
		taskRunner.Register(tasks.DriveStatsJob(driveService, statsstore.New(deps.MongoDatabase), appCfg.DailyStatsRetention, appCfg.DriveStatsInterval, logger))
	}

	logger.Info("starting background tasks", zap.Strings("jobs", taskRunner.Jobs()))
	taskRunner.Start()
}
