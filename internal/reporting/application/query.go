package application

import (
	"context"
	"sort"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/pkg/utils"
)

// QueryService 只读查询：对账、进度、记录与流水。均为快照读，不缓存
type QueryService struct {
	base
}

// Reconcile 计算某周期的审计候选；organizationID 为空表示全部组织
func (s *QueryService) Reconcile(ctx context.Context, p domain.Principal, period domain.Period, organizationID *uint64) ([]domain.Candidate, error) {
	const op = "reconcile"
	org, err := s.scopeOrg(p, organizationID, period)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	snap, err := s.snapshot(ctx, period)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	lines, err := s.repos.Catalog.ListLines(ctx, org)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return domain.Reconcile(domain.ScopeToLines(snap, lines)), nil
}

// AuditProgress 单个组织的进度
func (s *QueryService) AuditProgress(ctx context.Context, p domain.Principal, organizationID uint64, period domain.Period) (domain.AuditProgress, error) {
	const op = "audit_progress"
	if _, err := s.scopeOrg(p, &organizationID, period); err != nil {
		return domain.AuditProgress{}, s.fail(ctx, op, err)
	}

	lines, err := s.repos.Catalog.ListLines(ctx, &organizationID)
	if err != nil {
		return domain.AuditProgress{}, s.fail(ctx, op, err)
	}
	snap, err := s.snapshot(ctx, period)
	if err != nil {
		return domain.AuditProgress{}, s.fail(ctx, op, err)
	}
	return domain.ComputeProgress(organizationID, lines, snap), nil
}

// ListAuditProgress 所有可见组织的进度，按组织 ID 升序
func (s *QueryService) ListAuditProgress(ctx context.Context, p domain.Principal, period domain.Period) ([]domain.AuditProgress, error) {
	const op = "list_audit_progress"
	org, err := s.scopeOrg(p, nil, period)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	lines, err := s.repos.Catalog.ListLines(ctx, org)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	snap, err := s.snapshot(ctx, period)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	byOrg := make(map[uint64][]domain.ActiveLine)
	for _, l := range lines {
		byOrg[l.Line.OrganizationID] = append(byOrg[l.Line.OrganizationID], l)
	}
	orgs := make([]uint64, 0, len(byOrg))
	for id := range byOrg {
		orgs = append(orgs, id)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i] < orgs[j] })

	out := make([]domain.AuditProgress, 0, len(orgs))
	for _, id := range orgs {
		out = append(out, domain.ComputeProgress(id, byOrg[id], snap))
	}
	return out, nil
}

// GetRecord 读取单条记录
func (s *QueryService) GetRecord(ctx context.Context, p domain.Principal, id uint) (*domain.PeriodRecord, error) {
	const op = "get_record"
	if err := p.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	r, err := s.repos.Records.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if err := s.authorizeRead(ctx, p, r); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return r, nil
}

// ListRecords 分页列出记录
func (s *QueryService) ListRecords(ctx context.Context, q ListRecordsQuery) (*RecordPage, error) {
	const op = "list_records"
	if q.Period != nil {
		if err := q.Period.Validate(); err != nil {
			return nil, s.fail(ctx, op, err)
		}
	}
	org, err := s.scopeOrg(q.Principal, q.OrganizationID, domain.Period{})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	page := utils.NewPagination(q.Page, q.PageSize, 0)
	filter := domain.RecordFilter{
		Period: q.Period,
		Kind:   q.Kind,
		Status: q.Status,
		Offset: page.Offset(),
		Limit:  page.Limit(),
	}
	if org != nil {
		lines, err := s.repos.Catalog.ListLines(ctx, org)
		if err != nil {
			return nil, s.fail(ctx, op, err)
		}
		if len(lines) == 0 {
			return &RecordPage{Items: []*domain.PeriodRecord{}, Pagination: page}, nil
		}
		for _, l := range lines {
			filter.FundNeedIDs = append(filter.FundNeedIDs, l.Line.ID)
		}
	}

	items, total, err := s.repos.Records.List(ctx, filter)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return &RecordPage{Items: items, Pagination: page.WithTotal(total)}, nil
}

// History 记录的状态流水，按发生顺序
func (s *QueryService) History(ctx context.Context, p domain.Principal, recordID uint) ([]domain.TransitionEntry, error) {
	const op = "history"
	if _, err := s.GetRecord(ctx, p, recordID); err != nil {
		return nil, err
	}
	entries, err := s.repos.Ledger.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return entries, nil
}

// ListWithdrawals 分页列出撤回申请；受组织限制的角色只能看到自己发起的申请
func (s *QueryService) ListWithdrawals(ctx context.Context, q ListWithdrawalsQuery) (*WithdrawalPage, error) {
	const op = "list_withdrawals"
	if err := q.Principal.Validate(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	page := utils.NewPagination(q.Page, q.PageSize, 0)
	filter := domain.WithdrawalFilter{
		Status:   q.Status,
		Kind:     q.Kind,
		RecordID: q.RecordID,
		Offset:   page.Offset(),
		Limit:    page.Limit(),
	}
	if q.Principal.OrgRestricted() {
		filter.RequesterID = q.Principal.ID
	}

	items, total, err := s.repos.Withdrawals.List(ctx, filter)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return &WithdrawalPage{Items: items, Pagination: page.WithTotal(total)}, nil
}

// scopeOrg 返回本次查询的组织范围；受限角色只能查询本组织
func (s *QueryService) scopeOrg(p domain.Principal, requested *uint64, period domain.Period) (*uint64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if period != (domain.Period{}) {
		if err := period.Validate(); err != nil {
			return nil, err
		}
	}
	if !p.OrgRestricted() {
		return requested, nil
	}
	if requested != nil && *requested != p.OrganizationID {
		return nil, domain.PermissionDeniedf("%s may only read organization %d", p.Role, p.OrganizationID)
	}
	own := p.OrganizationID
	return &own, nil
}

func (s *QueryService) snapshot(ctx context.Context, period domain.Period) (domain.PeriodSnapshot, error) {
	records, err := s.repos.Records.ListByPeriod(ctx, period, domain.KindActualUser, domain.KindActualFin, domain.KindAudit)
	if err != nil {
		return domain.PeriodSnapshot{}, err
	}
	snap := domain.PeriodSnapshot{Period: period}
	for _, r := range records {
		switch r.Kind {
		case domain.KindActualUser:
			snap.ActualUser = append(snap.ActualUser, r)
		case domain.KindActualFin:
			snap.ActualFin = append(snap.ActualFin, r)
		case domain.KindAudit:
			snap.Audit = append(snap.Audit, r)
		}
	}
	return snap, nil
}
