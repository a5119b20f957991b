package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown runs after the HTTP server has drained. The steps run in order,
// each bounded by ctx, and a failing step does not skip the later ones:
// background jobs stop first so no purge starts mid-shutdown, then queued
// share email is flushed, then MongoDB is disconnected.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"stop background jobs", func(ctx context.Context) error {
			if taskRunner == nil {
				return nil
			}
			return taskRunner.Stop(ctx)
		}},
		{"flush share notifications", notifier.Wait},
		{"disconnect MongoDB", func(ctx context.Context) error {
			if deps.MongoClient == nil {
				return nil
			}
			return deps.MongoClient.Disconnect(ctx)
		}},
	}

	var errs []error
	for _, s := range steps {
		logger.Info("shutdown: " + s.name)
		if err := s.run(ctx); err != nil {
			logger.Warn("shutdown step failed", zap.String("step", s.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
