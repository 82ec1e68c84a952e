package server

import (
	"context"
	"time"

	"RelayGuard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// CredentialWarmer periodically touches the credential cache so the refresh
// cost is paid off the request path whenever possible. Only one instance
// fleet-wide does the actual authority call per expiry; the others find the
// cache warm. It runs as a Kratos transport server so the app manages its
// lifecycle.
type CredentialWarmer struct {
	credential *biz.CredentialUsecase
	cron       *cron.Cron
	logger     *log.Helper
}

// NewCredentialWarmer creates the background credential warmer.
func NewCredentialWarmer(credential *biz.CredentialUsecase, logger log.Logger) *CredentialWarmer {
	return &CredentialWarmer{
		credential: credential,
		cron:       cron.New(cron.WithSeconds()),
		logger:     log.NewHelper(logger),
	}
}

// Start registers the warm-up job and starts the scheduler.
func (w *CredentialWarmer) Start(ctx context.Context) error {
	// Every minute on the minute. A valid cached token makes this a single
	// store read; near expiry one instance wins the lease and refreshes.
	_, err := w.cron.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := w.credential.GetCredential(ctx); err != nil {
			w.logger.Warnw("credential warm-up failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("credential warmer started: runs every minute")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *CredentialWarmer) Stop(ctx context.Context) error {
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	w.logger.Info("credential warmer stopped")
	return nil
}
