// Package grpc 填报服务 gRPC 接口：健康检查与反射，健康状态跟随数据库连通性
package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/fundreporting/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 健康检查中登记的服务名
const ServiceName = "fundreporting.Reporting"

// Pinger 依赖探测，*db.DB 满足
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server gRPC 服务
type Server struct {
	*grpc.Server
	health *health.Server
	pinger Pinger
	logger *slog.Logger
}

// NewServer 创建服务并注册健康检查与反射；初始状态为 NOT_SERVING，直到首次探测成功
func NewServer(pinger Pinger, maxStreams uint32, logger *slog.Logger) *Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			middleware.GRPCLoggingInterceptor(),
			middleware.GRPCRecoveryInterceptor(),
		),
	}
	if maxStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(maxStreams))
	}
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{Server: srv, health: hs, pinger: pinger, logger: logger}
}

// Probe 探测一次依赖并更新健康状态
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.pinger.Ping(pctx); err != nil {
			s.logger.WarnContext(ctx, "dependency health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// WatchHealth 按间隔探测，直到 ctx 结束
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Shutdown 标记下线后优雅停止
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
