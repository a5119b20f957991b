// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	accountfeature "github.com/dalemusser/stratadrive/internal/app/features/account"
	apistatsfeature "github.com/dalemusser/stratadrive/internal/app/features/apistats"
	auditfeature "github.com/dalemusser/stratadrive/internal/app/features/auditlog"
	blobsfeature "github.com/dalemusser/stratadrive/internal/app/features/blobs"
	errorsfeature "github.com/dalemusser/stratadrive/internal/app/features/errors"
	filesfeature "github.com/dalemusser/stratadrive/internal/app/features/files"
	foldersfeature "github.com/dalemusser/stratadrive/internal/app/features/folders"
	healthfeature "github.com/dalemusser/stratadrive/internal/app/features/health"
	itemsfeature "github.com/dalemusser/stratadrive/internal/app/features/items"
	ledgerfeature "github.com/dalemusser/stratadrive/internal/app/features/ledger"
	statsfeature "github.com/dalemusser/stratadrive/internal/app/features/stats"
	statusfeature "github.com/dalemusser/stratadrive/internal/app/features/status"
	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	"github.com/dalemusser/stratadrive/internal/app/store/audit"
	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	"github.com/dalemusser/stratadrive/internal/app/store/ratelimit"
	statsstore "github.com/dalemusser/stratadrive/internal/app/store/stats"
	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/apicors"
	"github.com/dalemusser/stratadrive/internal/app/system/apistats"
	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/ledger"
	"github.com/dalemusser/stratadrive/internal/app/system/mailer"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// apiTimeout bounds every /api request except uploads, which are limited by
// max_upload_size instead.
const apiTimeout = 30 * time.Second

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// Layout:
//   - /api/auth       register, login, me (account)
//   - /api/folders    folder tree, sharing, trash (token required)
//   - /api/files      uploads, downloads, sharing, trash (token required)
//   - /api/starred, /api/trash
//   - <storage_local_url>  signed blob downloads, local backend only
//   - /health, /ready, /readyz, /livez, /metrics
//   - /ops/ledger, /ops/audit, /ops/apistats, /ops/stats, /ops/status
//     (ops_token required)
//
// Every /api request that fails is written to the request ledger.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	tokens, err := auth.NewTokenManager(appCfg.JWTSecret, appCfg.JWTTTL, coreCfg.Env == "prod", logger)
	if err != nil {
		logger.Error("token manager init failed", zap.Error(err))
		return nil, err
	}
	// Load the user on each request so deleted accounts lose access at once.
	tokens.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase, logger))

	svc := driveService
	if svc == nil {
		svc = drive.New(deps.MongoDatabase, deps.Blobs, drive.Config{URLTTL: appCfg.DownloadURLTTL}, logger)
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	errorsHandler := errorsfeature.NewHandler()

	auditLogger := auditlog.New(audit.New(deps.MongoDatabase), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Drive: appCfg.AuditLogDrive,
	})

	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(
			deps.MongoDatabase,
			appCfg.RateLimitLoginAttempts,
			appCfg.RateLimitLoginWindow,
			appCfg.RateLimitLoginLockout,
		)
	}

	ledgerStore := ledgerstore.New(deps.MongoDatabase)
	apiStatsStore := apistatsstore.New(deps.MongoDatabase)

	// A nil recorder passes requests through untouched.
	var stats *apistats.Recorder
	if appCfg.APIStatsBucket > 0 {
		stats = apistats.NewRecorder(apiStatsStore, appCfg.APIStatsBucket, logger)
	}
	ledgerCfg := ledger.Config{
		Store:      ledgerStore,
		Logger:     logger,
		OnlyErrors: true,
	}

	r := chi.NewRouter()

	r.Use(metrics.Middleware)
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	accountHandler := accountfeature.NewHandler(accountfeature.Config{
		Users:        userstore.New(deps.MongoDatabase),
		Tokens:       tokens,
		RateLimit:    rateLimitStore,
		Drive:        svc,
		Audit:        auditLogger,
		ErrLog:       errLog,
		StorageLimit: appCfg.DefaultStorageLimit,
		Logger:       logger,
	})
	foldersHandler := foldersfeature.NewHandler(svc, errLog, auditLogger, logger)
	filesHandler := filesfeature.NewHandler(svc, appCfg.MaxUploadSize, errLog, auditLogger, logger)
	if appCfg.SMTPHost != "" {
		notifier = mailer.NewNotifier(mailer.New(mailer.Config{
			Host:     appCfg.SMTPHost,
			Port:     appCfg.SMTPPort,
			User:     appCfg.SMTPUser,
			Pass:     appCfg.SMTPPass,
			From:     appCfg.MailFrom,
			FromName: appCfg.MailFromName,
		}, logger), appCfg.MailFromName, appCfg.AppURL, logger)
		foldersHandler.SetNotifier(notifier)
		filesHandler.SetNotifier(notifier)
	}
	itemsHandler := itemsfeature.NewHandler(svc, errLog)

	requireUser := func(next http.Handler) http.Handler {
		return tokens.RequireUser(ledger.TagUser(next))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apicors.Middleware(appCfg.APIAllowedOrigins...))
		r.Use(ledger.Middleware(ledgerCfg))

		r.With(chimw.Timeout(apiTimeout), stats.Middleware(apistatsstore.StatAuth)).
			Mount("/auth", accountfeature.Routes(accountHandler, requireUser))

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			// Uploads stream the body to the blob backend and can outlast apiTimeout.
			r.With(stats.Middleware(apistatsstore.StatFiles)).Mount("/files", filesfeature.Routes(filesHandler))

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(apiTimeout))
				r.With(stats.Middleware(apistatsstore.StatFolders)).Mount("/folders", foldersfeature.Routes(foldersHandler))
				r.Group(func(r chi.Router) {
					r.Use(stats.Middleware(apistatsstore.StatItems))
					itemsfeature.MountRoutes(r, itemsHandler)
				})
			})
		})

		r.NotFound(errorsHandler.NotFound)
		r.MethodNotAllowed(errorsHandler.MethodNotAllowed)
	})

	checks := []healthfeature.Check{healthfeature.Mongo(deps.MongoClient)}
	if deps.Local != nil {
		mount, err := blobMountPath(appCfg.StorageLocalURL)
		if err != nil {
			return nil, err
		}
		r.Mount(mount, blobsfeature.Routes(blobsfeature.NewHandler(deps.Local, errLog, logger)))

		path := appCfg.StorageLocalPath
		checks = append(checks, healthfeature.Check{
			Name: "blobstore",
			Probe: func(context.Context) error {
				_, err := os.Stat(path)
				return err
			},
		})
	}

	healthHandler := healthfeature.NewHandler(logger, checks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.With(auth.StaticBearer(appCfg.MetricsToken, logger)).Handle("/metrics", metrics.Handler())

	if appCfg.OpsToken != "" {
		statusHandler := statusfeature.NewHandler(statusfeature.Config{
			Client:      deps.MongoClient,
			CertDomain:  coreCfg.TLS.Domain,
			BlobBackend: storageBackend(appCfg.StorageType),
			Jobs:        jobStatus,
			RunJob:      runJob,
			Settings:    opsSettings(appCfg),
			Logger:      logger,
		})
		r.Route("/ops", func(r chi.Router) {
			r.Use(auth.StaticBearer(appCfg.OpsToken, logger))
			r.Use(chimw.Timeout(apiTimeout))
			r.Mount("/ledger", ledgerfeature.Routes(ledgerfeature.NewHandler(ledgerStore, errLog, logger)))
			r.Mount("/audit", auditfeature.Routes(auditfeature.NewHandler(audit.New(deps.MongoDatabase), errLog, logger)))
			r.Mount("/apistats", apistatsfeature.Routes(apistatsfeature.NewHandler(apiStatsStore, errLog, logger)))
			r.Mount("/stats", statsfeature.Routes(statsfeature.NewHandler(svc, statsstore.New(deps.MongoDatabase), errLog, logger)))
			r.Mount("/status", statusfeature.Routes(statusHandler))
		})
	}

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	return r, nil
}

// blobMountPath returns the router path for the signed download endpoint,
// which may be configured as an absolute URL.
func blobMountPath(downloadURL string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("storage_local_url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("storage_local_url %q must have a path", downloadURL)
	}
	return u.Path, nil
}

// jobStatus reports the background jobs started by Startup.
func jobStatus() []tasks.JobStatus {
	if taskRunner == nil {
		return nil
	}
	return taskRunner.Status()
}

func runJob(ctx context.Context, name string) error {
	if taskRunner == nil {
		return tasks.ErrUnknownJob
	}
	return taskRunner.RunOnce(ctx, name)
}

func storageBackend(storageType string) string {
	if storageType == "" {
		return "local"
	}
	return storageType
}

// opsSettings is the configuration shown on /ops/status.
func opsSettings(appCfg AppConfig) []statusfeature.Setting {
	return []statusfeature.Setting{
		{Name: "storage_type", Value: storageBackend(appCfg.StorageType)},
		{Name: "storage_local_path", Value: appCfg.StorageLocalPath},
		{Name: "storage_s3_bucket", Value: appCfg.StorageS3Bucket},
		{Name: "storage_s3_region", Value: appCfg.StorageS3Region},
		{Name: "storage_s3_access_key", Value: appCfg.StorageS3AccessKey, Secret: true},
		{Name: "storage_signing_key", Value: appCfg.StorageSigningKey, Secret: true},
		{Name: "jwt_secret", Value: appCfg.JWTSecret, Secret: true},
		{Name: "jwt_ttl", Value: appCfg.JWTTTL.String()},
		{Name: "download_url_ttl", Value: appCfg.DownloadURLTTL.String()},
		{Name: "default_storage_limit", Value: strconv.FormatInt(appCfg.DefaultStorageLimit, 10)},
		{Name: "max_upload_size", Value: strconv.FormatInt(appCfg.MaxUploadSize, 10)},
		{Name: "trash_retention", Value: appCfg.TrashRetention.String()},
		{Name: "ledger_retention", Value: appCfg.LedgerRetention.String()},
		{Name: "api_stats_bucket", Value: appCfg.APIStatsBucket.String()},
		{Name: "smtp_host", Value: appCfg.SMTPHost},
		{Name: "smtp_pass", Value: appCfg.SMTPPass, Secret: true},
		{Name: "rate_limit_enabled", Value: strconv.FormatBool(appCfg.RateLimitEnabled)},
		{Name: "audit_log_auth", Value: appCfg.AuditLogAuth},
		{Name: "audit_log_drive", Value: appCfg.AuditLogDrive},
	}
}
