package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PeriodRecord 填报记录聚合根，四类记录共用同一结构，以 Kind 区分
type PeriodRecord struct {
	gorm.Model
	Kind               RecordKind          `gorm:"column:kind;type:varchar(16);not null;uniqueIndex:uk_period_record,priority:1" json:"kind"`
	FundNeedID         uint64              `gorm:"column:fund_need_id;not null;uniqueIndex:uk_period_record,priority:2" json:"fund_need_id"`
	Year               int                 `gorm:"column:year;not null;uniqueIndex:uk_period_record,priority:3;index:idx_period" json:"year"`
	Month              int                 `gorm:"column:month;not null;uniqueIndex:uk_period_record,priority:4;index:idx_period" json:"month"`
	Amount             decimal.NullDecimal `gorm:"column:amount;type:decimal(20,4)" json:"amount"`
	Status             RecordStatus        `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	SubmittedBy        string              `gorm:"column:submitted_by;type:varchar(64)" json:"submitted_by"`
	SubmittedAt        *time.Time          `gorm:"column:submitted_at" json:"submitted_at"`
	Remark             string              `gorm:"column:remark;type:varchar(512)" json:"remark"`
	LinkedRecordID     *uint               `gorm:"column:linked_record_id" json:"linked_record_id"`
	WithdrawalAttempts int                 `gorm:"column:withdrawal_attempts;not null;default:0" json:"withdrawal_attempts"`
	CreatedBy          string              `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	UpdatedBy          string              `gorm:"column:updated_by;type:varchar(64)" json:"updated_by"`

	transitions  []TransitionEntry `gorm:"-"`
	domainEvents []DomainEvent     `gorm:"-"`
}

func (PeriodRecord) TableName() string {
	return "period_records"
}

// NewSkeleton 生成 UNFILLED 骨架记录
func NewSkeleton(kind RecordKind, fundNeedID uint64, period Period) *PeriodRecord {
	return &PeriodRecord{
		Kind:       kind,
		FundNeedID: fundNeedID,
		Year:       period.Year,
		Month:      period.Month,
		Status:     StatusUnfilled,
		CreatedBy:  SystemPrincipal.ID,
	}
}

func (r *PeriodRecord) Period() Period {
	return Period{Year: r.Year, Month: r.Month}
}

// NaturalKey 记录自然键
func (r *PeriodRecord) NaturalKey() NaturalKey {
	return NaturalKey{Kind: r.Kind, FundNeedID: r.FundNeedID, Period: r.Period()}
}

// Save 保存金额与备注：UNFILLED 首次保存进入 DRAFT，DRAFT 内为编辑
func (r *PeriodRecord) Save(ctx context.Context, actor string, amount decimal.NullDecimal, remark string, now time.Time) error {
	if amount.Valid && amount.Decimal.IsNegative() {
		return Validationf("amount must not be negative")
	}
	oldStatus, oldAmount := r.Status, r.Amount
	switch r.Status {
	case StatusUnfilled:
		to, err := fire(ctx, r.Kind, r.Status, ActionSave)
		if err != nil {
			return err
		}
		r.Status = to
		r.Amount, r.Remark, r.UpdatedBy = amount, remark, actor
		r.record(actor, ActionSave, oldStatus, oldAmount, remark, now)
		return nil
	case StatusDraft:
		r.Amount, r.Remark, r.UpdatedBy = amount, remark, actor
		r.record(actor, ActionEdit, oldStatus, oldAmount, remark, now)
		return nil
	default:
		return InvalidTransitionf("%s record is %s and cannot be edited", r.Kind, r.Status)
	}
}

// Submit 提交，要求金额非空
func (r *PeriodRecord) Submit(ctx context.Context, actor string, now time.Time) error {
	if r.Status == StatusDraft && !r.Amount.Valid {
		return Validationf("amount is required before submit")
	}
	if err := r.transit(ctx, actor, ActionSubmit, "", now); err != nil {
		return err
	}
	r.SubmittedBy = actor
	submittedAt := now
	r.SubmittedAt = &submittedAt
	r.AddDomainEvent(&RecordSubmittedEvent{
		RecordID:    r.ID,
		Kind:        r.Kind,
		FundNeedID:  r.FundNeedID,
		Period:      r.Period(),
		Amount:      r.Amount.Decimal,
		SubmittedBy: actor,
		Timestamp:   now,
	})
	return nil
}

func (r *PeriodRecord) RequestWithdrawal(ctx context.Context, actor, reason string, now time.Time) error {
	return r.transit(ctx, actor, ActionRequestWithdrawal, reason, now)
}

// ApproveWithdrawal 撤回通过，记录重新开放编辑，撤回次数加一
func (r *PeriodRecord) ApproveWithdrawal(ctx context.Context, actor, comment string, now time.Time) error {
	if err := r.transit(ctx, actor, ActionApproveWithdrawal, comment, now); err != nil {
		return err
	}
	r.WithdrawalAttempts++
	return nil
}

func (r *PeriodRecord) RejectWithdrawal(ctx context.Context, actor, comment string, now time.Time) error {
	return r.transit(ctx, actor, ActionRejectWithdrawal, comment, now)
}

func (r *PeriodRecord) CancelWithdrawal(ctx context.Context, actor string, now time.Time) error {
	return r.transit(ctx, actor, ActionCancelWithdrawal, "", now)
}

// DecideAudit 审计决策，仅审计类记录存在该迁移
func (r *PeriodRecord) DecideAudit(ctx context.Context, actor string, approve bool, remark string, now time.Time) error {
	action := ActionRejectAudit
	if approve {
		action = ActionApproveAudit
	}
	return r.transit(ctx, actor, action, remark, now)
}

// Link 设置关联记录缓存，返回是否发生变化
func (r *PeriodRecord) Link(target *PeriodRecord) bool {
	var next *uint
	if target != nil {
		id := target.ID
		next = &id
	}
	if equalLink(r.LinkedRecordID, next) {
		return false
	}
	r.LinkedRecordID = next
	return true
}

func (r *PeriodRecord) transit(ctx context.Context, actor string, action Action, remark string, now time.Time) error {
	oldStatus := r.Status
	to, err := fire(ctx, r.Kind, r.Status, action)
	if err != nil {
		return err
	}
	r.Status = to
	r.UpdatedBy = actor
	r.record(actor, action, oldStatus, r.Amount, remark, now)
	return nil
}

func (r *PeriodRecord) record(actor string, action Action, oldStatus RecordStatus, oldAmount decimal.NullDecimal, remark string, now time.Time) {
	r.transitions = append(r.transitions, TransitionEntry{
		RecordID:   r.ID,
		Kind:       r.Kind,
		FundNeedID: r.FundNeedID,
		Year:       r.Year,
		Month:      r.Month,
		ActorID:    actor,
		Action:     action,
		OldStatus:  oldStatus,
		NewStatus:  r.Status,
		OldAmount:  oldAmount,
		NewAmount:  r.Amount,
		Remark:     remark,
		OccurredAt: now,
	})
}

// GetTransitions 返回待写入流水；记录 ID 以当前值为准
func (r *PeriodRecord) GetTransitions() []TransitionEntry {
	out := make([]TransitionEntry, len(r.transitions))
	for i, t := range r.transitions {
		t.RecordID = r.ID
		out[i] = t
	}
	return out
}

func (r *PeriodRecord) ClearTransitions() {
	r.transitions = nil
}

func (r *PeriodRecord) AddDomainEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

func (r *PeriodRecord) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

func (r *PeriodRecord) ClearDomainEvents() {
	r.domainEvents = nil
}

func equalLink(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// NaturalKey 记录唯一键 (kind, fundNeedId, year, month)
type NaturalKey struct {
	Kind       RecordKind
	FundNeedID uint64
	Period     Period
}

// RecordRef 记录引用：已持久化的 ID，或尚未生成的自然键
type RecordRef struct {
	id  uint
	key NaturalKey
}

// PersistedRef 引用已存在的记录
func PersistedRef(id uint) RecordRef {
	return RecordRef{id: id}
}

// PendingRef 以自然键引用可能尚未生成骨架的记录
func PendingRef(kind RecordKind, fundNeedID uint64, period Period) RecordRef {
	return RecordRef{key: NaturalKey{Kind: kind, FundNeedID: fundNeedID, Period: period}}
}

func (r RecordRef) IsPersisted() bool { return r.id != 0 }

// ID 仅对 PersistedRef 有效
func (r RecordRef) ID() (uint, bool) { return r.id, r.id != 0 }

// Key 仅对 PendingRef 有效
func (r RecordRef) Key() (NaturalKey, bool) { return r.key, r.id == 0 }

func (r RecordRef) Validate() error {
	if r.id != 0 {
		return nil
	}
	if _, err := ParseRecordKind(string(r.key.Kind)); err != nil {
		return err
	}
	if r.key.FundNeedID == 0 {
		return Validationf("fund need id is required")
	}
	return r.key.Period.Validate()
}
