package mailbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Fetcher runs one fetch.
type Fetcher interface {
	Fetch(ctx context.Context) (FetchResult, error)
}

// Poller runs a Fetcher on a fixed interval until its context ends.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller constructs a Poller. A non-positive interval disables polling.
func NewPoller(fetcher Fetcher, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = noOpLogger
	}
	return &Poller{fetcher: fetcher, interval: interval, logger: logger}
}

// Run blocks until ctx ends. Fetch failures are logged and the next tick tries again.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 || p.fetcher == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	result, err := p.fetcher.Fetch(ctx)
	switch {
	case errors.Is(err, ErrMailboxNotConfigured):
		p.logger.Debug("mailbox poll skipped", zap.Error(err))
	case errors.Is(err, context.Canceled):
	case err != nil:
		p.logger.Warn("mailbox poll failed", zap.Error(err))
	case result.Inserted > 0:
		p.logger.Info("mailbox poll stored new messages", zap.Int("inserted", result.Inserted))
	}
}
