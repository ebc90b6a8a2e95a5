package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

func TestGenerateSkeletons_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Records.GenerateSkeletons(ctx, admin, june)
	require.NoError(t, err)
	// 三条启用的需求行，每行四类
	assert.Equal(t, 12, created)

	created, err = f.svc.Records.GenerateSkeletons(ctx, admin, june)
	require.NoError(t, err)
	assert.Zero(t, created)

	records, err := f.store.Records().ListByPeriod(ctx, june)
	require.NoError(t, err)
	assert.Len(t, records, 12)
	for _, r := range records {
		assert.Equal(t, domain.StatusUnfilled, r.Status)
		assert.NotEqual(t, uint64(13), r.FundNeedID)
	}
}

func TestGenerateSkeletons_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Records.GenerateSkeletons(ctx, auditor, june)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Records.GenerateSkeletons(ctx, admin, domain.Period{Year: 2024, Month: 13})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSaveDraft_PendingRefCreatesSkeleton(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 11, june),
		Amount:    money("500"),
		Remark:    "first",
	})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, domain.StatusDraft, r.Status)

	again, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 11, june),
		Amount:    money("600"),
	})
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)
	assert.True(t, again.Amount.Decimal.Equal(decimal.NewFromInt(600)))

	history, err := f.svc.Query.History(ctx, reporter1, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ActionSave, history[0].Action)
	assert.Equal(t, domain.ActionEdit, history[1].Action)
	assert.False(t, history[1].StatusChanged())
}

func TestSaveDraft_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  SaveDraftCommand
		want error
	}{
		{"negative amount", SaveDraftCommand{Principal: reporter1, Ref: domain.PendingRef(domain.KindPredict, 11, june), Amount: money("-1")}, domain.ErrValidation},
		{"unknown line", SaveDraftCommand{Principal: reporter1, Ref: domain.PendingRef(domain.KindPredict, 99, june), Amount: money("1")}, domain.ErrNotFound},
		{"inactive line", SaveDraftCommand{Principal: reporter1, Ref: domain.PendingRef(domain.KindPredict, 13, june), Amount: money("1")}, domain.ErrValidation},
		{"bad period", SaveDraftCommand{Principal: reporter1, Ref: domain.PendingRef(domain.KindPredict, 11, domain.Period{Year: 1999, Month: 1}), Amount: money("1")}, domain.ErrValidation},
		{"missing record", SaveDraftCommand{Principal: reporter1, Ref: domain.PersistedRef(404), Amount: money("1")}, domain.ErrNotFound},
		{"missing principal", SaveDraftCommand{Ref: domain.PendingRef(domain.KindPredict, 11, june)}, domain.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Records.SaveDraft(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSaveDraft_Permissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		p    domain.Principal
		kind domain.RecordKind
	}{
		{"reporter of another organization", reporter2, domain.KindPredict},
		{"observer", observer1, domain.KindActualUser},
		{"finance on predict", finance, domain.KindPredict},
		{"reporter on finance record", reporter1, domain.KindActualFin},
		{"auditor on user record", auditor, domain.KindActualUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
				Principal: tt.p,
				Ref:       domain.PendingRef(tt.kind, 11, june),
				Amount:    money("1"),
			})
			assert.ErrorIs(t, err, domain.ErrPermissionDenied)

			// 事务回滚，骨架也不会留下
			r, err := f.store.Records().GetByKey(ctx, domain.NaturalKey{Kind: tt.kind, FundNeedID: 11, Period: june})
			require.NoError(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	assert.Equal(t, domain.StatusSubmitted, r.Status)
	assert.Equal(t, reporter1.ID, r.SubmittedBy)
	require.NotNil(t, r.SubmittedAt)
	assert.Equal(t, f.clock.Now(), *r.SubmittedAt)
	assert.Contains(t, f.eventNames(), domain.EventRecordSubmitted)

	_, err := f.svc.Records.Submit(ctx, reporter1, domain.PersistedRef(r.ID))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	draft, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 12, june),
	})
	require.NoError(t, err)
	_, err = f.svc.Records.Submit(ctx, reporter1, domain.PersistedRef(draft.ID))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StatusDraft, f.record(t, draft.ID).Status)

	_, err = f.svc.Records.Submit(ctx, reporter1, domain.PendingRef(domain.KindPredict, 11, june))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "unfilled skeleton cannot be submitted")
}

func TestSubmit_ConcurrentExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 11, june),
		Amount:    money("10"),
	})
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Records.Submit(ctx, reporter1, domain.PersistedRef(r.ID))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	history, err := f.svc.Query.History(ctx, admin, r.ID)
	require.NoError(t, err)
	submits := 0
	for _, e := range history {
		if e.Action == domain.ActionSubmit {
			submits++
		}
	}
	assert.Equal(t, 1, submits)
}

func TestBatchSubmit_PartialSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ok, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 11, june),
		Amount:    money("10"),
	})
	require.NoError(t, err)
	empty, err := f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: reporter1,
		Ref:       domain.PendingRef(domain.KindPredict, 12, june),
	})
	require.NoError(t, err)

	results := f.svc.Records.BatchSubmit(ctx, reporter1, []uint{ok.ID, empty.ID, 999})
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, uint64(11), results[0].FundNeedID)

	assert.False(t, results[1].Success)
	assert.Equal(t, empty.ID, results[1].RecordID)
	assert.Equal(t, domain.CodeValidation, results[1].Code)

	assert.False(t, results[2].Success)
	assert.Equal(t, domain.CodeNotFound, results[2].Code)

	assert.Equal(t, domain.StatusSubmitted, f.record(t, ok.ID).Status)
}

func TestActualFinLink(t *testing.T) {
	t.Run("linked on save", func(t *testing.T) {
		f := newFixture(t, nil)
		user := f.file(t, reporter1, domain.KindActualUser, 11, "1000")
		fin := f.file(t, finance, domain.KindActualFin, 11, "1000")
		require.NotNil(t, fin.LinkedRecordID)
		assert.Equal(t, user.ID, *fin.LinkedRecordID)
		assert.Equal(t, user.ID, *f.record(t, fin.ID).LinkedRecordID)
	})

	t.Run("rebuilt after upstream appears", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()

		fin := f.file(t, finance, domain.KindActualFin, 11, "1000")
		assert.Nil(t, fin.LinkedRecordID)
		user := f.file(t, reporter1, domain.KindActualUser, 11, "1000")

		changed, err := f.svc.Records.RebuildLinks(ctx, admin, june)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)
		assert.Equal(t, user.ID, *f.record(t, fin.ID).LinkedRecordID)

		changed, err = f.svc.Records.RebuildLinks(ctx, admin, june)
		require.NoError(t, err)
		assert.Zero(t, changed)

		_, err = f.svc.Records.RebuildLinks(ctx, finance, june)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})
}

// 场景 A：金额一致，审计通过后进度显示已审计
func TestDecideAudit_ScenarioA(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	fin := f.file(t, finance, domain.KindActualFin, 11, "1000")

	candidates, err := f.svc.Query.Reconcile(ctx, auditor, june, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].NeedsAudit)
	assert.False(t, candidates[0].HasDifference)

	audit, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{
		Principal:  auditor,
		FundNeedID: 11,
		Period:     june,
		Amount:     money("1000"),
		Approve:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, audit.Status)
	require.NotNil(t, audit.LinkedRecordID)
	assert.Equal(t, fin.ID, *audit.LinkedRecordID)
	assert.Contains(t, f.eventNames(), domain.EventAuditCompleted)

	progress, err := f.svc.Query.AuditProgress(ctx, reporter1, 1, june)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.ActiveNeedsCount)
	assert.Equal(t, 1, progress.AuditedCount)
	assert.Equal(t, 0, progress.PendingAuditCount)
	assert.False(t, progress.CanAudit)

	candidates, err = f.svc.Query.Reconcile(ctx, auditor, june, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].NeedsAudit)

	_, err = f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Approve: false})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// 场景 B：金额有差异，审计金额按输入保存
func TestDecideAudit_ScenarioB(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	f.file(t, finance, domain.KindActualFin, 11, "1200")

	candidates, err := f.svc.Query.Reconcile(ctx, admin, june, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].HasDifference)
	assert.True(t, candidates[0].Variance.Equal(decimal.NewFromInt(200)))

	audit, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{
		Principal:  auditor,
		FundNeedID: 11,
		Period:     june,
		Amount:     money("1000"),
		Approve:    true,
		Remark:     "user figure confirmed",
	})
	require.NoError(t, err)
	assert.True(t, audit.Amount.Decimal.Equal(decimal.NewFromInt(1000)))

	candidates, err = f.svc.Query.Reconcile(ctx, admin, june, nil)
	require.NoError(t, err)
	assert.True(t, candidates[0].Variance.Equal(decimal.NewFromInt(200)))
}

func TestDecideAudit_KeepsDraftedAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	f.file(t, finance, domain.KindActualFin, 11, "1200")

	_, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Approve: true})
	assert.ErrorIs(t, err, domain.ErrValidation, "no amount given and none drafted")

	_, err = f.svc.Records.SaveDraft(ctx, SaveDraftCommand{
		Principal: auditor,
		Ref:       domain.PendingRef(domain.KindAudit, 11, june),
		Amount:    money("1100"),
	})
	require.NoError(t, err)

	audit, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, audit.Status)
	assert.True(t, audit.Amount.Valid)
	assert.True(t, audit.Amount.Decimal.Equal(decimal.NewFromInt(1100)))
}

func TestDecideAudit_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.file(t, reporter1, domain.KindActualUser, 11, "1000")

	_, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: reporter1, FundNeedID: 11, Period: june, Approve: true})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Amount: money("1"), Approve: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "finance has not filed yet")

	audit, err := f.store.Records().GetByKey(ctx, domain.NaturalKey{Kind: domain.KindAudit, FundNeedID: 11, Period: june})
	require.NoError(t, err)
	assert.Nil(t, audit)
}

func TestDecideAudit_RejectIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	f.file(t, finance, domain.KindActualFin, 11, "900")

	audit, err := f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Amount: money("900"), Approve: false})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, audit.Status)

	_, err = f.svc.Records.DecideAudit(ctx, AuditDecisionCommand{Principal: auditor, FundNeedID: 11, Period: june, Approve: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBatchAudit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.file(t, reporter1, domain.KindActualUser, 11, "1000")
	f.file(t, finance, domain.KindActualFin, 11, "1000")

	results := f.svc.Records.BatchAudit(ctx, auditor, []AuditDecisionCommand{
		{FundNeedID: 11, Period: june, Amount: money("1000"), Approve: true},
		{FundNeedID: 12, Period: june, Amount: money("1"), Approve: true},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.NotZero(t, results[0].RecordID)
	assert.False(t, results[1].Success)
	assert.Equal(t, uint64(12), results[1].FundNeedID)
	assert.Equal(t, domain.CodeInvalidTransition, results[1].Code)
}

func TestCurrentPeriod(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, domain.Period{Year: 2024, Month: 7}, f.svc.Records.CurrentPeriod())

	f.svc.Records.cutoverDay = 5
	assert.Equal(t, june, f.svc.Records.CurrentPeriod())
}
