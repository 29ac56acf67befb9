package service

import (
	"context"
	"time"

	"github.com/sifan077/LinkTrace/internal/app/repository"
	"github.com/sifan077/LinkTrace/internal/infra/metrics"
	"go.uber.org/zap"
)

// Reaper periodically purges expired free-tier links and their visit
// histories. A periodic sweep over the persisted expires_at column is used
// instead of per-link timers so pending expirations survive restarts.
type Reaper struct {
	logger    *zap.Logger
	repo      repository.LinkRepository
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(logger *zap.Logger, repo repository.LinkRepository, interval time.Duration, batchSize int) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Reaper{
		logger:    logger,
		repo:      repo,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (r *Reaper) Start() {
	go r.run()
}

// Stop halts the sweep loop.
func (r *Reaper) Stop() {
	close(r.stopChan)
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(context.Background())
		case <-r.stopChan:
			r.logger.Info("link reaper stopped")
			return
		}
	}
}

// Sweep deletes expired links in batches until a short batch indicates the
// backlog is drained. Deletion is idempotent: a link removed by its owner
// mid-sweep simply no longer matches the expiry predicate.
func (r *Reaper) Sweep(ctx context.Context) {
	for {
		codes, err := r.repo.DeleteExpired(ctx, r.batchSize)
		if err != nil {
			r.logger.Error("failed to purge expired links", zap.Error(err))
			return
		}
		if len(codes) == 0 {
			return
		}

		metrics.LinksReaped.Add(float64(len(codes)))
		r.logger.Info("purged expired links", zap.Int("count", len(codes)))

		if len(codes) < r.batchSize {
			return
		}
	}
}
