package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/memory"
	"github.com/wyfcoding/fundreporting/pkg/logger"
)

var (
	june = domain.Period{Year: 2024, Month: 6}

	admin     = domain.Principal{ID: "admin", Role: domain.RoleAdmin}
	auditor   = domain.Principal{ID: "auditor", Role: domain.RoleAuditor}
	finance   = domain.Principal{ID: "finance", Role: domain.RoleFinance}
	reporter1 = domain.Principal{ID: "reporter-1", Role: domain.RoleReporter, OrganizationID: 1}
	reporter2 = domain.Principal{ID: "reporter-2", Role: domain.RoleReporter, OrganizationID: 2}
	observer1 = domain.Principal{ID: "observer-1", Role: domain.RoleObserver, OrganizationID: 1}
)

type fixture struct {
	store *memory.Store
	clock *domain.FixedClock
	svc   *ReportingService
}

// newFixture 组织 1 有需求行 11、12 与停用的 13，组织 2 有需求行 21
func newFixture(t *testing.T, policies domain.PolicySet) *fixture {
	t.Helper()
	clock := &domain.FixedClock{T: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetNow(clock.Now)

	ctx := context.Background()
	catalog := store.Catalog()
	require.NoError(t, catalog.UpsertProject(ctx, &domain.Project{ID: 100, OrganizationID: 1, Name: "p1", Status: domain.ProjectActive}))
	require.NoError(t, catalog.UpsertProject(ctx, &domain.Project{ID: 200, OrganizationID: 2, Name: "p2", Status: domain.ProjectActive}))
	for _, line := range []domain.FundNeedLine{
		{ID: 11, OrganizationID: 1, ProjectID: 100, Active: true},
		{ID: 12, OrganizationID: 1, ProjectID: 100, Active: true},
		{ID: 13, OrganizationID: 1, ProjectID: 100, Active: false},
		{ID: 21, OrganizationID: 2, ProjectID: 200, Active: true},
	} {
		line := line
		require.NoError(t, catalog.UpsertLine(ctx, &line))
	}

	svc, err := NewReportingService(storeRepositories(store), Options{
		Clock:    clock,
		Policies: policies,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	return &fixture{store: store, clock: clock, svc: svc}
}

func storeRepositories(store *memory.Store) Repositories {
	return Repositories{
		Tx:          store,
		Records:     store.Records(),
		Ledger:      store.Ledger(),
		Withdrawals: store.Withdrawals(),
		Catalog:     store.Catalog(),
		Outbox:      store.Outbox(),
	}
}

// sequence 按序递增的编号生成器
type sequence struct {
	mu   sync.Mutex
	next int64
}

func (s *sequence) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// file 保存并提交一条记录
func (f *fixture) file(t *testing.T, p domain.Principal, kind domain.RecordKind, fundNeedID uint64, amount string) *domain.PeriodRecord {
	t.Helper()
	ctx := context.Background()
	r, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: p,
		Ref:       domain.PendingRef(kind, fundNeedID, june),
		Amount:    money(amount),
	})
	require.NoError(t, err)
	r, err = f.svc.Records.Submit(ctx, p, domain.PersistedRef(r.ID))
	require.NoError(t, err)
	return r
}

func (f *fixture) record(t *testing.T, id uint) *domain.PeriodRecord {
	t.Helper()
	r, err := f.store.Records().GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) eventNames() []string {
	var names []string
	for _, e := range f.store.Events() {
		names = append(names, e.EventName())
	}
	return names
}
