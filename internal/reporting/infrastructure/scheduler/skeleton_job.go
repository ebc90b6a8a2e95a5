// Package scheduler 定时生成当期骨架记录，多副本部署时借助 Redis 锁保证同一时刻只有一个实例执行
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

// ErrLocked 其他实例正在执行
var ErrLocked = errors.New("skeleton generation is running elsewhere")

// SkeletonGenerator 由 application.RecordCommandService 实现
type SkeletonGenerator interface {
	CurrentPeriod() domain.Period
	GenerateSkeletons(ctx context.Context, p domain.Principal, period domain.Period) (int, error)
}

// Locker 分布式锁，由 pkg/cache.RedisCache 实现
type Locker interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Config 调度参数
type Config struct {
	// 标准五段 cron 表达式
	Spec     string
	Location *time.Location
	// 锁过期时间，需大于一次生成的耗时
	LockTTL time.Duration
}

// SkeletonJob 骨架生成定时任务
type SkeletonJob struct {
	gen    SkeletonGenerator
	locker Locker
	cfg    Config
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSkeletonJob locker 为 nil 时不加锁，适用于单实例部署
func NewSkeletonJob(gen SkeletonGenerator, locker Locker, cfg Config, logger *slog.Logger) (*SkeletonJob, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &SkeletonJob{
		gen:    gen,
		locker: locker,
		cfg:    cfg,
		logger: logger.With("module", "reporting.scheduler"),
		cron:   cron.New(cron.WithLocation(cfg.Location)),
	}
	if _, err := j.cron.AddFunc(cfg.Spec, j.tick); err != nil {
		return nil, fmt.Errorf("invalid skeleton cron %q: %w", cfg.Spec, err)
	}
	return j, nil
}

// Start 启动调度，不阻塞
func (j *SkeletonJob) Start() {
	j.cron.Start()
	j.logger.Info("skeleton scheduler started", "spec", j.cfg.Spec, "location", j.cfg.Location.String())
}

// Stop 停止调度并等待正在执行的任务结束
func (j *SkeletonJob) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *SkeletonJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.LockTTL)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrLocked) {
		j.logger.ErrorContext(ctx, "scheduled skeleton generation failed", "error", err)
	}
}

// RunOnce 为当前填报周期生成骨架，返回新建条数
func (j *SkeletonJob) RunOnce(ctx context.Context) (int, error) {
	period := j.gen.CurrentPeriod()

	if j.locker != nil {
		key := "reporting:skeleton:" + period.String()
		token := uuid.NewString()
		ok, err := j.locker.SetNX(ctx, key, token, j.cfg.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire skeleton lock: %w", err)
		}
		if !ok {
			j.logger.InfoContext(ctx, "skeleton generation skipped, lock held", "period", period.String())
			return 0, ErrLocked
		}
		defer func() {
			if err := j.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
				j.logger.WarnContext(ctx, "release skeleton lock failed", "key", key, "error", err)
			}
		}()
	}

	return j.gen.GenerateSkeletons(ctx, domain.SystemPrincipal, period)
}
