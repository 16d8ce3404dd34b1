package welcome

import (
	"context"
	"sync"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/dyncarl8-oss/auto-welcome/pkg/redis"
	"go.uber.org/zap"
)

// Poller periodically reconciles videos against the provider. It is the
// safety net behind the provider webhook: anything in generating is polled
// for its final state, and anything stuck in completed gets its delivery
// retried.
type Poller struct {
	service  *Service
	repos    repository.RepositoryManager
	interval time.Duration

	// redisService claims items before processing so that multiple
	// replicas do not reconcile the same video concurrently. Optional.
	redisService redis.RedisServiceInterface

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPoller creates a reconciliation poller. interval is typically 30s.
func NewPoller(service *Service, repos repository.RepositoryManager, redisService redis.RedisServiceInterface, interval time.Duration) *Poller {
	return &Poller{
		service:      service,
		repos:        repos,
		redisService: redisService,
		interval:     interval,
		done:         make(chan struct{}),
	}
}

// Start launches the poll loop. The first pass runs immediately, then every
// interval. Start returns right away; Stop shuts the loop down.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		defer close(p.done)

		logger.Base().Info("video status poller started",
			zap.Duration("interval", p.interval))

		p.runOnce(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Base().Info("video status poller stopped")
				return
			case <-ticker.C:
				p.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish
func (p *Poller) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		<-p.done
	})
}

// runOnce reconciles every open video. A failure on one item is logged and
// does not stop the rest of the pass.
func (p *Poller) runOnce(ctx context.Context) {
	videos, err := p.repos.Video().GetByStatuses(ctx, domain.VideoStatusGenerating, domain.VideoStatusCompleted)
	if err != nil {
		logger.Base().Error("poller failed to list open videos", zap.Error(err))
		return
	}

	if len(videos) == 0 {
		return
	}

	logger.Base().Debug("poller reconciling open videos", zap.Int("count", len(videos)))

	for _, video := range videos {
		if ctx.Err() != nil {
			return
		}

		if !p.claim(ctx, video.ID) {
			continue
		}

		if err := p.service.Reconcile(ctx, video); err != nil {
			logger.Base().Warn("failed to reconcile video",
				zap.String("video_id", video.ID),
				zap.String("status", string(video.Status)),
				zap.Error(err))
		}
	}
}

// claim takes a short-lived lock on the video so only one replica works on
// it per interval. Without redis every replica polls, which is safe but
// wasteful, so a missing claim backend means always claim.
func (p *Poller) claim(ctx context.Context, videoID string) bool {
	if p.redisService == nil {
		return true
	}

	key := p.redisService.GenerateKey(redis.POLL_CLAIM, videoID)
	ok, err := p.redisService.SetIfAbsent(ctx, key, "1", p.interval)
	if err != nil {
		logger.Base().Debug("poll claim failed, proceeding without lock",
			zap.String("video_id", videoID),
			zap.Error(err))
		return true
	}
	return ok
}
