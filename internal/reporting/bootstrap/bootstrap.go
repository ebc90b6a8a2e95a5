// Package bootstrap 按配置组装数据库、仓储与填报服务，供服务进程与运维工具共用
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/fundreporting/internal/reporting/application"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/outbox"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/persistence"
	"github.com/wyfcoding/fundreporting/pkg/config"
	"github.com/wyfcoding/fundreporting/pkg/db"
	"github.com/wyfcoding/fundreporting/pkg/logger"
	"github.com/wyfcoding/fundreporting/pkg/metrics"
	pkgconfig "github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/idgen"
)

// Models 全部需要建表的模型，含发件箱
func Models() []any {
	return append(persistence.Models(), &outbox.Event{})
}

// LoggerConfig 配置文件中的日志段转换为 logger.Config
func LoggerConfig(cfg config.LoggerConfig) logger.Config {
	return logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		WithCaller: cfg.WithCaller,
	}
}

// OpenDatabase 连接数据库，auto_migrate 开启时顺带建表
func OpenDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	database, err := db.Init(ctx, db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, Models()...); err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return database, nil
}

// Location 解析业务时区，空值或 Local 使用本地时区
func Location(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reporting.timezone: %w", err)
	}
	return loc, nil
}

// Service 组装好的填报服务及其发件箱
type Service struct {
	*application.ReportingService
	Outbox   *outbox.GormStore
	Catalog  domain.CatalogRepository
	Tx       domain.Transactor
	Location *time.Location
}

// NewService 基于 GORM 仓储构造填报服务
func NewService(cfg *config.Config, database *db.DB, m *metrics.Metrics, log *slog.Logger) (*Service, error) {
	loc, err := Location(cfg.Reporting.Timezone)
	if err != nil {
		return nil, err
	}
	policies, err := application.PoliciesFromConfig(cfg.Reporting.Withdrawal)
	if err != nil {
		return nil, fmt.Errorf("reporting.withdrawal: %w", err)
	}

	ids, err := idgen.NewGenerator(pkgconfig.SnowflakeConfig{MachineID: cfg.Reporting.NodeID})
	if err != nil {
		return nil, fmt.Errorf("reporting.node_id: %w", err)
	}

	gdb := database.DB
	store := outbox.NewGormStore(gdb)
	repos := application.Repositories{
		Tx:          persistence.NewTransactor(gdb),
		Records:     persistence.NewRecordRepository(gdb),
		Ledger:      persistence.NewLedgerRepository(gdb),
		Withdrawals: persistence.NewWithdrawalRepository(gdb),
		Catalog:     persistence.NewCatalogRepository(gdb),
		Outbox:      outbox.NewWriter(store),
	}
	svc, err := application.NewReportingService(repos, application.Options{
		Clock:       domain.SystemClock{Location: loc},
		Policies:    policies,
		CutoverDay:  cfg.Reporting.CutoverDay,
		IDGenerator: ids,
		Metrics:     m,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		ReportingService: svc,
		Outbox:           store,
		Catalog:          repos.Catalog,
		Tx:               repos.Tx,
		Location:         loc,
	}, nil
}

// RelayConfig 配置文件中的发件箱段转换为中继参数
func RelayConfig(cfg config.OutboxConfig) outbox.RelayConfig {
	return outbox.RelayConfig{
		PollInterval: time.Duration(cfg.PollInterval) * time.Millisecond,
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
	}
}
