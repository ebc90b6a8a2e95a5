package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allActions = []Action{
	ActionSave, ActionSubmit, ActionRequestWithdrawal, ActionApproveWithdrawal,
	ActionRejectWithdrawal, ActionCancelWithdrawal, ActionApproveAudit, ActionRejectAudit,
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func recordIn(kind RecordKind, status RecordStatus) *PeriodRecord {
	r := NewSkeleton(kind, 1, Period{Year: 2024, Month: 6})
	r.ID = 10
	r.Status = status
	r.Amount = amount("100")
	return r
}

// apply 通过聚合方法执行动作
func apply(r *PeriodRecord, action Action, now time.Time) error {
	ctx := context.Background()
	switch action {
	case ActionSave:
		return r.Save(ctx, "u1", amount("5"), "", now)
	case ActionSubmit:
		return r.Submit(ctx, "u1", now)
	case ActionRequestWithdrawal:
		return r.RequestWithdrawal(ctx, "u1", "typo", now)
	case ActionApproveWithdrawal:
		return r.ApproveWithdrawal(ctx, "a1", "", now)
	case ActionRejectWithdrawal:
		return r.RejectWithdrawal(ctx, "a1", "", now)
	case ActionCancelWithdrawal:
		return r.CancelWithdrawal(ctx, "u1", now)
	case ActionApproveAudit:
		return r.DecideAudit(ctx, "a1", true, "", now)
	case ActionRejectAudit:
		return r.DecideAudit(ctx, "a1", false, "", now)
	}
	return errors.New("unknown action")
}

func TestLifecycle_Closure(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	for _, kind := range AllKinds() {
		for _, from := range AllStatuses() {
			for _, action := range allActions {
				r := recordIn(kind, from)
				err := apply(r, action, now)

				expected, legal := LookupTransition(kind, from, action)
				// 草稿内保存属于编辑，不是迁移
				if action == ActionSave && from == StatusDraft {
					require.NoError(t, err)
					assert.Equal(t, StatusDraft, r.Status)
					continue
				}
				if !legal {
					require.Error(t, err, "%s %s from %s", kind, action, from)
					assert.True(t, errors.Is(err, ErrInvalidTransition), "%s %s from %s: %v", kind, action, from, err)
					assert.Equal(t, from, r.Status)
					assert.Empty(t, r.GetTransitions())
					continue
				}
				require.NoError(t, err, "%s %s from %s", kind, action, from)
				assert.Equal(t, expected.To, r.Status)

				entries := r.GetTransitions()
				require.Len(t, entries, 1)
				assert.Equal(t, from, entries[0].OldStatus)
				assert.Equal(t, expected.To, entries[0].NewStatus)
				assert.Equal(t, action, entries[0].Action)
			}
		}
	}
}

func TestLifecycle_AuditOnlyTransitions(t *testing.T) {
	for _, kind := range []RecordKind{KindPredict, KindActualUser, KindActualFin} {
		_, ok := LookupTransition(kind, StatusSubmitted, ActionApproveAudit)
		assert.False(t, ok, kind)
	}
	tr, ok := LookupTransition(KindAudit, StatusSubmitted, ActionApproveAudit)
	require.True(t, ok)
	assert.Equal(t, StatusApproved, tr.To)
}

func TestLifecycle_WithdrawnIsUnreachable(t *testing.T) {
	for _, tr := range Transitions() {
		assert.NotEqual(t, StatusWithdrawn, tr.To)
	}
}

func TestPeriodRecord_SubmitRequiresAmount(t *testing.T) {
	now := time.Now()
	r := NewSkeleton(KindPredict, 1, Period{Year: 2024, Month: 6})
	require.NoError(t, r.Save(context.Background(), "u1", decimal.NullDecimal{}, "draft only", now))
	assert.Equal(t, StatusDraft, r.Status)

	err := r.Submit(context.Background(), "u1", now)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, StatusDraft, r.Status)
	assert.Nil(t, r.SubmittedAt)
}

func TestPeriodRecord_SubmitSetsSubmitterAndEvent(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	r := NewSkeleton(KindActualUser, 7, Period{Year: 2024, Month: 6})
	r.ID = 3
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "u1", amount("1000"), "", now))
	require.NoError(t, r.Save(ctx, "u1", amount("1000.50"), "fixed", now))
	require.NoError(t, r.Submit(ctx, "u1", now))

	assert.Equal(t, StatusSubmitted, r.Status)
	assert.Equal(t, "u1", r.SubmittedBy)
	require.NotNil(t, r.SubmittedAt)
	assert.True(t, r.SubmittedAt.Equal(now))

	entries := r.GetTransitions()
	require.Len(t, entries, 3)
	assert.Equal(t, ActionSave, entries[0].Action)
	assert.Equal(t, ActionEdit, entries[1].Action)
	assert.False(t, entries[1].StatusChanged())
	assert.True(t, entries[1].NewAmount.Decimal.Equal(decimal.RequireFromString("1000.50")))
	assert.Equal(t, ActionSubmit, entries[2].Action)
	for _, e := range entries {
		assert.Equal(t, uint(3), e.RecordID)
	}

	events := r.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventRecordSubmitted, events[0].EventName())
}

func TestPeriodRecord_SaveRejectsNegativeAmount(t *testing.T) {
	r := NewSkeleton(KindPredict, 1, Period{Year: 2024, Month: 6})
	err := r.Save(context.Background(), "u1", amount("-1"), "", time.Now())
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, StatusUnfilled, r.Status)
}

func TestPeriodRecord_ApprovedIsImmutable(t *testing.T) {
	r := recordIn(KindAudit, StatusApproved)
	err := r.Save(context.Background(), "a1", amount("1"), "", time.Now())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.True(t, r.Amount.Decimal.Equal(decimal.NewFromInt(100)))
}

func TestPeriodRecord_ApproveWithdrawalCountsAttempt(t *testing.T) {
	r := recordIn(KindPredict, StatusPendingWithdrawal)
	require.NoError(t, r.ApproveWithdrawal(context.Background(), "admin", "ok", time.Now()))
	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, 1, r.WithdrawalAttempts)

	r = recordIn(KindPredict, StatusPendingWithdrawal)
	require.NoError(t, r.CancelWithdrawal(context.Background(), "u1", time.Now()))
	assert.Equal(t, StatusSubmitted, r.Status)
	assert.Equal(t, 0, r.WithdrawalAttempts)
}

func TestPeriodRecord_Link(t *testing.T) {
	fin := recordIn(KindActualFin, StatusDraft)
	user := recordIn(KindActualUser, StatusSubmitted)
	user.ID = 42

	assert.True(t, fin.Link(user))
	require.NotNil(t, fin.LinkedRecordID)
	assert.Equal(t, uint(42), *fin.LinkedRecordID)
	assert.False(t, fin.Link(user))
	assert.True(t, fin.Link(nil))
	assert.Nil(t, fin.LinkedRecordID)
}

func TestRecordRef(t *testing.T) {
	ref := PersistedRef(5)
	id, ok := ref.ID()
	assert.True(t, ok)
	assert.Equal(t, uint(5), id)
	_, ok = ref.Key()
	assert.False(t, ok)
	assert.NoError(t, ref.Validate())

	pending := PendingRef(KindActualFin, 9, Period{Year: 2024, Month: 6})
	assert.False(t, pending.IsPersisted())
	key, ok := pending.Key()
	require.True(t, ok)
	assert.Equal(t, uint64(9), key.FundNeedID)
	assert.NoError(t, pending.Validate())

	assert.Error(t, PendingRef("bogus", 9, Period{Year: 2024, Month: 6}).Validate())
	assert.Error(t, PendingRef(KindPredict, 0, Period{Year: 2024, Month: 6}).Validate())
	assert.Error(t, PendingRef(KindPredict, 9, Period{Year: 2024, Month: 13}).Validate())
}

func TestFire_MachineDecidesLegality(t *testing.T) {
	ctx := context.Background()

	to, err := fire(ctx, KindAudit, StatusSubmitted, ActionApproveAudit)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, to)

	_, err = fire(ctx, KindActualFin, StatusSubmitted, ActionApproveAudit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "invalid event approve_audit for state SUBMITTED")

	_, err = fire(ctx, KindPredict, StatusUnfilled, ActionSubmit)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
