package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/fundreporting/internal/reporting/bootstrap"
	"github.com/wyfcoding/fundreporting/pkg/config"
	"github.com/wyfcoding/fundreporting/pkg/db"
	"github.com/wyfcoding/fundreporting/pkg/logger"
)

// env 各子命令共享的配置与日志
type env struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

func newRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Operations tool for the fund reporting service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load()
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c",
		config.GetEnv("REPORTING_CONFIG", "configs/reporting.toml"), "config file path")

	root.AddCommand(
		newMigrateCommand(e),
		newSkeletonCommand(e),
		newCatalogCommand(e),
		newReconcileCommand(e),
		newEventsCommand(e),
		newHealthCommand(e),
		newTokenCommand(e),
	)
	return root
}

func (e *env) load() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	lc := bootstrap.LoggerConfig(cfg.Logger)
	// 运维工具只输出到终端
	lc.Output = "stdout"
	lc.Format = "text"
	log, err := logger.Init(lc)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	e.cfg, e.log = cfg, log
	return nil
}

// service 打开数据库并构造填报服务，调用方负责关闭数据库
func (e *env) service(ctx context.Context) (*bootstrap.Service, *db.DB, error) {
	database, err := bootstrap.OpenDatabase(ctx, e.cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := bootstrap.NewService(e.cfg, database, nil, e.log)
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return svc, database, nil
}
