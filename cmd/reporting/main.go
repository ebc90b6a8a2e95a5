// ReportingService 主程序
// 功能：月度资金填报记录生命周期、撤回审批、对账与审计进度
// 架构：DDD + gin/gRPC + GORM + 发件箱中继到 Kafka
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fundreporting/internal/reporting/bootstrap"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/outbox"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/scheduler"
	grpcserver "github.com/wyfcoding/fundreporting/internal/reporting/interfaces/grpc"
	httpserver "github.com/wyfcoding/fundreporting/internal/reporting/interfaces/http"
	"github.com/wyfcoding/fundreporting/pkg/cache"
	"github.com/wyfcoding/fundreporting/pkg/config"
	"github.com/wyfcoding/fundreporting/pkg/logger"
	"github.com/wyfcoding/fundreporting/pkg/metrics"
	"github.com/wyfcoding/fundreporting/pkg/middleware"
	"github.com/wyfcoding/fundreporting/pkg/mq"
	"github.com/wyfcoding/fundreporting/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reporting: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 加载配置
	cfg, err := config.Load(config.GetEnv("REPORTING_CONFIG", "configs/reporting.toml"))
	if err != nil {
		return err
	}

	// 2. 初始化日志
	log, err := logger.Init(bootstrap.LoggerConfig(cfg.Logger))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.InfoContext(ctx, "Starting ReportingService",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	// 3. 初始化指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(nil); err != nil {
		return err
	}

	// 4. 初始化数据库
	database, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// 5. 初始化应用服务
	svc, err := bootstrap.NewService(cfg, database, m, log)
	if err != nil {
		return err
	}

	// 6. 可选依赖：Redis（限流与调度锁）、Kafka（事件投递）
	var (
		limiter ratelimit.Limiter
		locker  scheduler.Locker
	)
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(ctx, cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
		limiter = ratelimit.NewRedisLimiter(redisCache.GetClient())
		locker = redisCache
	}

	var relay *outbox.Relay
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			SessionTimeout: cfg.Kafka.SessionTimeout,
			MaxRetries:     cfg.Kafka.MaxRetries,
			RetryBackoff:   cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		relay = outbox.NewRelay(svc.Outbox, producer, bootstrap.RelayConfig(cfg.Reporting.Outbox), m, log)
	} else {
		log.WarnContext(ctx, "kafka disabled, outbox events stay pending")
	}

	var job *scheduler.SkeletonJob
	if cfg.Reporting.SkeletonCron != "" {
		job, err = scheduler.NewSkeletonJob(svc.Records, locker, scheduler.Config{
			Spec:     cfg.Reporting.SkeletonCron,
			Location: svc.Location,
		}, log)
		if err != nil {
			return err
		}
	}

	// 7. 接口层
	httpSrv := newHTTPServer(cfg, svc, m, limiter)
	grpcSrv := grpcserver.NewServer(database, uint32(cfg.GRPC.MaxConcurrentStreams), log)

	// 8. 启动
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		log.Info("HTTP server starting", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		grpcSrv.WatchHealth(gctx, 10*time.Second)
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path)
		g.Go(func() error {
			log.Info("metrics server starting", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	if job != nil {
		job.Start()
	}

	// 9. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down ReportingService")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if job != nil {
			if err := job.Stop(shutdownCtx); err != nil {
				log.Error("scheduler stop error", "error", err)
			}
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Error("metrics server shutdown error", "error", err)
			}
		}
		grpcSrv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("ReportingService stopped")
	return nil
}

// newHTTPServer 创建 HTTP 服务器
func newHTTPServer(cfg *config.Config, svc *bootstrap.Service, m *metrics.Metrics, limiter ratelimit.Limiter) *http.Server {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinLoggingMiddleware(m))
	router.Use(middleware.GinCORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/",
		httpserver.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		middleware.RateLimitMiddleware(limiter, cfg.RateLimit),
	)
	httpserver.NewReportingHandler(svc.ReportingService).RegisterRoutes(api)

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
}
