package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/retry"
)

// Refresher loads catalogs and publishes them to a Store. Refreshes are
// serialized; readers of the Store are never blocked.
type Refresher struct {
	loader Loader
	store  *Store
	logger *zap.Logger
	retry  *retry.Config

	// mu serializes loads; statusMu guards the fields below so health
	// checks do not wait on a slow load.
	mu         sync.Mutex
	statusMu   sync.Mutex
	lastLoaded time.Time
	lastErr    error
}

// NewRefresher creates a refresher. If logger is nil, a no-op logger is used.
func NewRefresher(loader Loader, store *Store, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		loader: loader,
		store:  store,
		logger: logger.Named("catalog"),
		retry:  retry.DefaultConfig(),
	}
}

// WithRetry overrides the backoff used by LoadInitial.
func (r *Refresher) WithRetry(cfg *retry.Config) *Refresher {
	r.retry = cfg
	return r
}

// LoadInitial performs the startup load, retrying transient failures such
// as a database that is still starting. A malformed feed fails immediately.
func (r *Refresher) LoadInitial(ctx context.Context) error {
	err := retry.DoIfRetryable(ctx, r.retry, func() error {
		err := r.Refresh(ctx)
		if err != nil && retry.IsRetryable(err) {
			r.logger.Warn("Catalog load failed, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}
	return nil
}

// LoadUntilReady repeats LoadInitial every interval until a catalog has
// been published or ctx ends. The gateway serves meanwhile: queries fail
// with ErrCatalogNotLoaded and health reports the last load error.
func (r *Refresher) LoadUntilReady(ctx context.Context, interval time.Duration) error {
	for {
		if loaded, _ := r.Status(); !loaded.IsZero() {
			return nil
		}
		err := r.LoadInitial(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		r.logger.Error("Catalog not loaded, serving without one",
			zap.Error(err),
			zap.Duration("retry_in", interval))

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Refresh loads a complete new catalog and swaps it in. On failure the
// previously published catalog stays in place.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	c, err := r.loader.Load(ctx)
	if err != nil {
		r.statusMu.Lock()
		r.lastErr = err
		r.statusMu.Unlock()
		r.logger.Error("Catalog refresh failed, keeping previous catalog", zap.Error(err))
		return err
	}

	r.store.Replace(c)
	r.statusMu.Lock()
	r.lastLoaded = time.Now()
	r.lastErr = nil
	r.statusMu.Unlock()
	r.logger.Info("Catalog refreshed",
		zap.Int("tables", c.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// RequestRefresh refreshes in-process. It satisfies the same contract as
// RedisBroadcaster so handlers need not know whether replicas exist.
func (r *Refresher) RequestRefresh(ctx context.Context) error {
	return r.Refresh(ctx)
}

// Status reports when the last successful load happened and the error of
// the most recent attempt, if it failed.
func (r *Refresher) Status() (time.Time, error) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.lastLoaded, r.lastErr
}
