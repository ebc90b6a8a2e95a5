package application

import (
	"context"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

// RecordCommandService 记录生命周期命令：骨架生成、保存、提交、审计决策、关联重建
type RecordCommandService struct {
	base
	cutoverDay int
}

// CurrentPeriod 按时钟与切换日计算当前填报周期
func (s *RecordCommandService) CurrentPeriod() domain.Period {
	return domain.ReportingPeriodAt(s.clock.Now(), s.cutoverDay)
}

// GenerateSkeletons 为所有启用的需求行生成四类 UNFILLED 骨架记录，可重复执行
func (s *RecordCommandService) GenerateSkeletons(ctx context.Context, p domain.Principal, period domain.Period) (int, error) {
	const op = "generate_skeletons"
	if err := p.Validate(); err != nil {
		return 0, s.fail(ctx, op, err)
	}
	if !p.IsAdmin() {
		return 0, s.fail(ctx, op, domain.PermissionDeniedf("only ADMIN may generate skeletons"))
	}
	if err := period.Validate(); err != nil {
		return 0, s.fail(ctx, op, err)
	}

	lines, err := s.repos.Catalog.ListLines(ctx, nil)
	if err != nil {
		return 0, s.fail(ctx, op, err)
	}

	created := 0
	for _, l := range lines {
		if !l.Line.Active {
			continue
		}
		for _, kind := range domain.AllKinds() {
			ok, err := s.repos.Records.CreateSkeleton(ctx, domain.NewSkeleton(kind, l.Line.ID, period))
			if err != nil {
				return created, s.fail(ctx, op, err)
			}
			if ok {
				created++
			}
		}
	}

	s.metrics.AddSkeletons(created)
	s.logger.InfoContext(ctx, "skeletons generated", "period", period.String(), "lines", len(lines), "created", created)
	return created, nil
}

// SaveDraft 保存金额与备注；PendingRef 引用的记录若尚无骨架则先生成
func (s *RecordCommandService) SaveDraft(ctx context.Context, cmd SaveDraftCommand) (*domain.PeriodRecord, error) {
	const op = "save_draft"
	if err := cmd.Principal.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if err := cmd.Ref.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var (
		record  *domain.PeriodRecord
		entries []domain.TransitionEntry
	)
	err := s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		r, err := s.resolve(txCtx, cmd.Ref)
		if err != nil {
			return err
		}
		if err := s.authorizeEdit(txCtx, cmd.Principal, r); err != nil {
			return err
		}
		if err := r.Save(txCtx, cmd.Principal.ID, cmd.Amount, cmd.Remark, s.clock.Now()); err != nil {
			return err
		}
		if err := s.relink(txCtx, r); err != nil {
			return err
		}
		entries, err = s.persist(txCtx, r)
		record = r
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	s.observe(entries)
	return record, nil
}

// Submit 提交记录
func (s *RecordCommandService) Submit(ctx context.Context, p domain.Principal, ref domain.RecordRef) (*domain.PeriodRecord, error) {
	const op = "submit"
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if err := ref.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var (
		record  *domain.PeriodRecord
		entries []domain.TransitionEntry
	)
	err := s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		r, err := s.resolve(txCtx, ref)
		if err != nil {
			return err
		}
		if err := s.authorizeEdit(txCtx, p, r); err != nil {
			return err
		}
		if err := r.Submit(txCtx, p.ID, s.clock.Now()); err != nil {
			return err
		}
		if err := s.relink(txCtx, r); err != nil {
			return err
		}
		entries, err = s.persist(txCtx, r)
		record = r
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	s.observe(entries)
	s.logger.InfoContext(ctx, "record submitted", "record_id", record.ID, "kind", record.Kind, "actor", p.ID)
	return record, nil
}

// BatchSubmit 逐条提交，每条记录独立事务，部分成功按项返回
func (s *RecordCommandService) BatchSubmit(ctx context.Context, p domain.Principal, ids []uint) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(ids))
	for _, id := range ids {
		r, err := s.Submit(ctx, p, domain.PersistedRef(id))
		var fundNeedID uint64
		if r != nil {
			fundNeedID = r.FundNeedID
		}
		results = append(results, itemResult(id, fundNeedID, err))
	}
	return results
}

// DecideAudit 对一个对账候选做审计决策：生成或更新审计记录、提交并通过/驳回。
// 审计金额按输入保存，缺省时保留草稿金额；差异不会被自动消除。
func (s *RecordCommandService) DecideAudit(ctx context.Context, cmd AuditDecisionCommand) (*domain.PeriodRecord, error) {
	const op = "decide_audit"
	p := cmd.Principal
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if !p.CanDecide() {
		return nil, s.fail(ctx, op, domain.PermissionDeniedf("%s cannot decide audits", p.Role))
	}
	if err := cmd.Period.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if cmd.FundNeedID == 0 {
		return nil, s.fail(ctx, op, domain.Validationf("fund need id is required"))
	}

	var (
		record  *domain.PeriodRecord
		entries []domain.TransitionEntry
	)
	err := s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		candidate, err := s.candidateFor(txCtx, cmd.FundNeedID, cmd.Period)
		if err != nil {
			return err
		}

		audit, err := s.resolve(txCtx, domain.PendingRef(domain.KindAudit, cmd.FundNeedID, cmd.Period))
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if audit.Status.Editable() {
			// 未给出金额时沿用审计草稿中已有的金额
			amount := cmd.Amount
			if !amount.Valid {
				amount = audit.Amount
			}
			if err := audit.Save(txCtx, p.ID, amount, cmd.Remark, now); err != nil {
				return err
			}
			if err := audit.Submit(txCtx, p.ID, now); err != nil {
				return err
			}
		}
		if err := audit.DecideAudit(txCtx, p.ID, cmd.Approve, cmd.Remark, now); err != nil {
			return err
		}
		audit.Link(candidate.FinanceRecord)
		audit.AddDomainEvent(&domain.AuditCompletedEvent{
			RecordID:      audit.ID,
			FundNeedID:    audit.FundNeedID,
			Period:        audit.Period(),
			Status:        audit.Status,
			Amount:        audit.Amount.Decimal,
			HasDifference: candidate.HasDifference,
			DecidedBy:     p.ID,
			Timestamp:     now,
		})

		entries, err = s.persist(txCtx, audit)
		record = audit
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	s.observe(entries)
	s.logger.InfoContext(ctx, "audit decided",
		"record_id", record.ID,
		"fund_need_id", record.FundNeedID,
		"period", cmd.Period.String(),
		"status", record.Status,
		"actor", p.ID,
	)
	return record, nil
}

// BatchAudit 逐项审计决策，每项独立事务
func (s *RecordCommandService) BatchAudit(ctx context.Context, p domain.Principal, items []AuditDecisionCommand) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		item.Principal = p
		r, err := s.DecideAudit(ctx, item)
		var id uint
		if r != nil {
			id = r.ID
		}
		results = append(results, itemResult(id, item.FundNeedID, err))
	}
	return results
}

// RebuildLinks 按自然键重算某周期 actual_fin 与 audit 记录的关联字段，返回变更条数
func (s *RecordCommandService) RebuildLinks(ctx context.Context, p domain.Principal, period domain.Period) (int, error) {
	const op = "rebuild_links"
	if err := p.Validate(); err != nil {
		return 0, s.fail(ctx, op, err)
	}
	if !p.IsAdmin() {
		return 0, s.fail(ctx, op, domain.PermissionDeniedf("only ADMIN may rebuild links"))
	}
	if err := period.Validate(); err != nil {
		return 0, s.fail(ctx, op, err)
	}

	changed := 0
	err := s.repos.Tx.Transaction(ctx, func(txCtx context.Context) error {
		records, err := s.repos.Records.ListByPeriod(txCtx, period, domain.KindActualUser, domain.KindActualFin, domain.KindAudit)
		if err != nil {
			return err
		}
		byKey := make(map[domain.NaturalKey]*domain.PeriodRecord, len(records))
		for _, r := range records {
			byKey[r.NaturalKey()] = r
		}
		for _, r := range records {
			target := domain.SpecOf(r.Kind).LinksTo
			if target == "" {
				continue
			}
			key := domain.NaturalKey{Kind: target, FundNeedID: r.FundNeedID, Period: period}
			if !r.Link(byKey[key]) {
				continue
			}
			if err := s.repos.Records.Save(txCtx, r); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(ctx, op, err)
	}
	s.logger.InfoContext(ctx, "links rebuilt", "period", period.String(), "changed", changed)
	return changed, nil
}

// resolve 在事务内加锁读取引用的记录；PendingRef 先确保骨架存在
func (s *RecordCommandService) resolve(ctx context.Context, ref domain.RecordRef) (*domain.PeriodRecord, error) {
	if id, ok := ref.ID(); ok {
		return s.repos.Records.GetForUpdate(ctx, id)
	}
	key, _ := ref.Key()
	line, err := s.lineOf(ctx, key.FundNeedID)
	if err != nil {
		return nil, err
	}
	if !line.Active {
		return nil, domain.Validationf("fund need line %d is inactive", line.ID)
	}
	if _, err := s.repos.Records.CreateSkeleton(ctx, domain.NewSkeleton(key.Kind, key.FundNeedID, key.Period)); err != nil {
		return nil, err
	}
	r, err := s.repos.Records.GetByKeyForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.NotFoundf("%s record for fund need %d in %s not found", key.Kind, key.FundNeedID, key.Period)
	}
	return r, nil
}

// relink 按自然键刷新记录的上游关联
func (s *RecordCommandService) relink(ctx context.Context, r *domain.PeriodRecord) error {
	target := domain.SpecOf(r.Kind).LinksTo
	if target == "" {
		return nil
	}
	upstream, err := s.repos.Records.GetByKey(ctx, domain.NaturalKey{Kind: target, FundNeedID: r.FundNeedID, Period: r.Period()})
	if err != nil {
		return err
	}
	r.Link(upstream)
	return nil
}

// candidateFor 复用对账逻辑判断某需求行在该周期是否为审计候选
func (s *RecordCommandService) candidateFor(ctx context.Context, fundNeedID uint64, period domain.Period) (domain.Candidate, error) {
	line, err := s.lineOf(ctx, fundNeedID)
	if err != nil {
		return domain.Candidate{}, err
	}
	snap := domain.PeriodSnapshot{Period: period}
	for _, kind := range []domain.RecordKind{domain.KindActualUser, domain.KindActualFin} {
		r, err := s.repos.Records.GetByKey(ctx, domain.NaturalKey{Kind: kind, FundNeedID: fundNeedID, Period: period})
		if err != nil {
			return domain.Candidate{}, err
		}
		if r == nil {
			continue
		}
		if kind == domain.KindActualUser {
			snap.ActualUser = append(snap.ActualUser, r)
		} else {
			snap.ActualFin = append(snap.ActualFin, r)
		}
	}
	scoped := domain.ScopeToLines(snap, []domain.ActiveLine{{Line: *line}})
	c, ok := domain.FindCandidate(domain.Reconcile(scoped), fundNeedID)
	if !ok {
		return domain.Candidate{}, domain.InvalidTransitionf("fund need %d in %s is not an audit candidate", fundNeedID, period)
	}
	return c, nil
}
