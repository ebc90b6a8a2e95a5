// Package application 填报业务用例：记录生命周期、撤回流程、对账与进度查询
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/pkg/config"
	"github.com/wyfcoding/fundreporting/pkg/metrics"
	"github.com/wyfcoding/pkg/idgen"
)

// Repositories 用例依赖的仓储集合，持久化实现与内存实现均满足
type Repositories struct {
	Tx          domain.Transactor
	Records     domain.RecordRepository
	Ledger      domain.LedgerRepository
	Withdrawals domain.WithdrawalRepository
	Catalog     domain.CatalogRepository
	Outbox      domain.EventOutbox
}

func (r Repositories) validate() error {
	if r.Tx == nil || r.Records == nil || r.Ledger == nil || r.Withdrawals == nil || r.Catalog == nil || r.Outbox == nil {
		return errors.New("all repositories are required")
	}
	return nil
}

// Options 服务运行参数
type Options struct {
	Clock domain.PeriodClock
	// 撤回策略，未配置的类别使用默认策略
	Policies domain.PolicySet
	// 每月该日之前仍填报上月，0 表示自然月
	CutoverDay int
	// 撤回申请编号生成器，为空时使用 idgen 全局默认生成器
	IDGenerator idgen.Generator
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// ReportingService 填报服务门面，整合命令与查询服务
type ReportingService struct {
	Records     *RecordCommandService
	Withdrawals *WithdrawalService
	Query       *QueryService
}

// NewReportingService 构造函数
func NewReportingService(repos Repositories, opts Options) (*ReportingService, error) {
	if err := repos.validate(); err != nil {
		return nil, err
	}
	if err := opts.Policies.Validate(); err != nil {
		return nil, fmt.Errorf("withdrawal policy: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = idgen.Default()
	}

	b := base{
		repos:   repos,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
	return &ReportingService{
		Records: &RecordCommandService{
			base:       b.withLogger(opts.Logger, "reporting.records"),
			cutoverDay: opts.CutoverDay,
		},
		Withdrawals: &WithdrawalService{
			base:      b.withLogger(opts.Logger, "reporting.withdrawals"),
			policies:  opts.Policies,
			requestNo: opts.IDGenerator,
		},
		Query: &QueryService{
			base: b.withLogger(opts.Logger, "reporting.query"),
		},
	}, nil
}

// PoliciesFromConfig 将配置文件中的撤回策略转换为领域策略
func PoliciesFromConfig(raw map[string]config.WithdrawalPolicyConfig) (domain.PolicySet, error) {
	set := make(domain.PolicySet, len(raw))
	for name, pc := range raw {
		kind, err := domain.ParseRecordKind(strings.ToLower(name))
		if err != nil {
			return nil, err
		}
		statuses := make([]domain.RecordStatus, 0, len(pc.AllowedStatuses))
		for _, s := range pc.AllowedStatuses {
			st, err := domain.ParseRecordStatus(strings.ToUpper(s))
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", kind, err)
			}
			statuses = append(statuses, st)
		}
		set[kind] = domain.WithdrawalPolicy{
			AllowedStatuses: statuses,
			TimeLimitHours:  pc.TimeLimitHours,
			MaxAttempts:     pc.MaxAttempts,
			RequireApproval: pc.RequireApproval,
		}
	}
	return set, set.Validate()
}

// base 各服务共享的依赖与事务内持久化步骤
type base struct {
	repos   Repositories
	clock   domain.PeriodClock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (b base) withLogger(l *slog.Logger, module string) base {
	b.logger = l.With("module", module)
	return b
}

// persist 保存记录并在同一事务内追加流水与待投递事件，返回本次写入的流水
func (b base) persist(ctx context.Context, r *domain.PeriodRecord) ([]domain.TransitionEntry, error) {
	if err := b.repos.Records.Save(ctx, r); err != nil {
		return nil, err
	}
	entries := r.GetTransitions()
	if len(entries) > 0 {
		if err := b.repos.Ledger.Append(ctx, entries...); err != nil {
			return nil, err
		}
	}
	if events := r.GetDomainEvents(); len(events) > 0 {
		if err := b.repos.Outbox.Append(ctx, events...); err != nil {
			return nil, err
		}
	}
	r.ClearTransitions()
	r.ClearDomainEvents()
	return entries, nil
}

// observe 事务提交后记录迁移指标
func (b base) observe(entries []domain.TransitionEntry) {
	for _, e := range entries {
		b.metrics.RecordTransition(string(e.Kind), string(e.Action), string(e.NewStatus))
	}
}

// fail 在用例边界统一转换错误并计数；内部错误记录原因但不向调用方暴露
func (b base) fail(ctx context.Context, op string, err error) error {
	err = translate(err)
	code := domain.CodeOf(err)
	b.metrics.RecordRejected(op, string(code))
	if code == domain.CodeInternal {
		b.logger.ErrorContext(ctx, "operation failed", "operation", op, "error", err)
	} else {
		b.logger.InfoContext(ctx, "operation rejected",
			"operation", op,
			"code", code,
			"reason", domain.ReasonOf(err),
			"error", err,
		)
	}
	return err
}

// lineOf 读取记录所属需求行
func (b base) lineOf(ctx context.Context, fundNeedID uint64) (*domain.FundNeedLine, error) {
	line, err := b.repos.Catalog.GetLine(ctx, fundNeedID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, domain.NotFoundf("fund need line %d not found", fundNeedID)
	}
	return line, nil
}

// authorizeEdit 校验操作者对该记录所属需求行的编辑权限
func (b base) authorizeEdit(ctx context.Context, p domain.Principal, r *domain.PeriodRecord) error {
	line, err := b.lineOf(ctx, r.FundNeedID)
	if err != nil {
		return err
	}
	if !domain.SpecOf(r.Kind).CanEdit(p, line) {
		return domain.PermissionDeniedf("%s cannot edit %s records of fund need %d", p.Role, r.Kind, r.FundNeedID)
	}
	return nil
}

// authorizeRead 校验组织范围的读取权限
func (b base) authorizeRead(ctx context.Context, p domain.Principal, r *domain.PeriodRecord) error {
	if !p.OrgRestricted() {
		return nil
	}
	line, err := b.repos.Catalog.GetLine(ctx, r.FundNeedID)
	if err != nil {
		return err
	}
	if line == nil || !p.CanRead(line.OrganizationID) {
		return domain.PermissionDeniedf("record %d belongs to another organization", r.ID)
	}
	return nil
}
