package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wyfcoding/fundreporting/pkg/metrics"
)

// Publisher 消息发布端，topic 为事件名，key 为聚合 ID
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// RelayConfig 中继参数
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Relay 轮询发件箱并投递事件，至少一次语义
type Relay struct {
	store   Store
	pub     Publisher
	breaker *gobreaker.CircuitBreaker
	cfg     RelayConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRelay 创建中继；Kafka 连续失败时熔断，熔断期间本轮剩余事件保持待投递
func NewRelay(store Store, pub Publisher, cfg RelayConfig, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "reporting.outbox")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     10 * cfg.PollInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Relay{
		store:   store,
		pub:     pub,
		breaker: breaker,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Run 按间隔循环投递，直到 ctx 取消
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
			}
		}
	}
}

// FlushResult 单轮投递结果
type FlushResult struct {
	Published int
	Retrying  int
	Failed    int
	Deferred  int
}

// Flush 投递一批待投递事件
func (r *Relay) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	events, err := r.store.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for i, e := range events {
		_, err := r.breaker.Execute(func() (any, error) {
			return nil, r.pub.Publish(ctx, e.EventType, e.AggregateID, []byte(e.Payload))
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res.Deferred = len(events) - i
			r.logger.WarnContext(ctx, "publisher unavailable, deferring events", "deferred", res.Deferred)
			break
		}
		if err != nil {
			attempts := e.Attempts + 1
			final := attempts >= r.cfg.MaxAttempts
			if markErr := r.store.MarkFailed(ctx, e.ID, attempts, err.Error(), final); markErr != nil {
				return res, markErr
			}
			if final {
				res.Failed++
				r.logger.ErrorContext(ctx, "outbox event dropped after retries",
					"event_id", e.ID, "event_type", e.EventType, "attempts", attempts, "error", err)
			} else {
				res.Retrying++
			}
			continue
		}
		if err := r.store.MarkPublished(ctx, e.ID, r.now()); err != nil {
			return res, err
		}
		res.Published++
	}

	r.metrics.RecordOutbox(res.Published, res.Failed, res.Retrying+res.Deferred)
	if res.Published > 0 || res.Failed > 0 {
		r.logger.DebugContext(ctx, "outbox flushed", "published", res.Published, "failed", res.Failed, "retrying", res.Retrying)
	}
	return res, nil
}
