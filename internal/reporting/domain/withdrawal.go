package domain

import (
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// WithdrawalStatus 撤回申请状态
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalCanceled WithdrawalStatus = "canceled"
)

func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	st := WithdrawalStatus(s)
	switch st {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalCanceled:
		return st, nil
	default:
		return "", Validationf("unknown withdrawal status %q", s)
	}
}

// Decision 审批动作
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if d != DecisionApprove && d != DecisionReject {
		return "", Validationf("decision must be approve or reject, got %q", s)
	}
	return d, nil
}

// WithdrawalRequest 撤回（修改）申请
type WithdrawalRequest struct {
	gorm.Model
	RequestNo       string           `gorm:"column:request_no;type:varchar(32);uniqueIndex;not null" json:"request_no"`
	RecordKind      RecordKind       `gorm:"column:record_kind;type:varchar(16);not null" json:"record_kind"`
	RecordID        uint             `gorm:"column:record_id;index;not null" json:"record_id"`
	RequesterID     string           `gorm:"column:requester_id;type:varchar(64);not null" json:"requester_id"`
	Reason          string           `gorm:"column:reason;type:varchar(512)" json:"reason"`
	Status          WithdrawalStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	DecidedBy       string           `gorm:"column:decided_by;type:varchar(64)" json:"decided_by"`
	DecidedAt       *time.Time       `gorm:"column:decided_at" json:"decided_at"`
	DecisionComment string           `gorm:"column:decision_comment;type:varchar(512)" json:"decision_comment"`
	// OpenKey 待处理期间为 "kind:recordId"，结束后置空；唯一索引保证每条记录至多一个未决申请
	OpenKey *string `gorm:"column:open_key;type:varchar(48);uniqueIndex" json:"-"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// NewWithdrawalRequest 创建待处理申请
func NewWithdrawalRequest(record *PeriodRecord, requesterID, reason string, requestNo string) *WithdrawalRequest {
	key := openKey(record.Kind, record.ID)
	return &WithdrawalRequest{
		RequestNo:   requestNo,
		RecordKind:  record.Kind,
		RecordID:    record.ID,
		RequesterID: requesterID,
		Reason:      reason,
		Status:      WithdrawalPending,
		OpenKey:     &key,
	}
}

func (w *WithdrawalRequest) IsPending() bool { return w.Status == WithdrawalPending }

// Approve 通过
func (w *WithdrawalRequest) Approve(decider, comment string, now time.Time) error {
	return w.resolve(WithdrawalApproved, decider, comment, now)
}

// Reject 驳回
func (w *WithdrawalRequest) Reject(decider, comment string, now time.Time) error {
	return w.resolve(WithdrawalRejected, decider, comment, now)
}

// Cancel 申请人或管理员撤销
func (w *WithdrawalRequest) Cancel(actor string, now time.Time) error {
	return w.resolve(WithdrawalCanceled, actor, "", now)
}

func (w *WithdrawalRequest) resolve(to WithdrawalStatus, actor, comment string, now time.Time) error {
	if !w.IsPending() {
		return NotFoundf("no pending withdrawal request %s", w.RequestNo)
	}
	w.Status = to
	w.DecidedBy = actor
	w.DecisionComment = comment
	decidedAt := now
	w.DecidedAt = &decidedAt
	w.OpenKey = nil
	return nil
}

func openKey(kind RecordKind, recordID uint) string {
	return fmt.Sprintf("%s:%s", kind, strconv.FormatUint(uint64(recordID), 10))
}

// WithdrawalPolicy 每类记录的撤回策略
type WithdrawalPolicy struct {
	AllowedStatuses []RecordStatus `mapstructure:"allowed_statuses" json:"allowed_statuses"`
	// 0 表示不限时
	TimeLimitHours int `mapstructure:"time_limit_hours" json:"time_limit_hours"`
	// 0 表示不限次数
	MaxAttempts     int  `mapstructure:"max_attempts" json:"max_attempts"`
	RequireApproval bool `mapstructure:"require_approval" json:"require_approval"`
}

// DefaultWithdrawalPolicy 默认策略：仅已提交可撤回，24 小时内，最多 3 次，需要审批
func DefaultWithdrawalPolicy() WithdrawalPolicy {
	return WithdrawalPolicy{
		AllowedStatuses: []RecordStatus{StatusSubmitted},
		TimeLimitHours:  24,
		MaxAttempts:     3,
		RequireApproval: true,
	}
}

// Validate 策略中的状态必须能够发起撤回迁移
func (p WithdrawalPolicy) Validate() error {
	for _, st := range p.AllowedStatuses {
		if !st.Valid() {
			return Validationf("unknown status %q in withdrawal policy", st)
		}
		if _, ok := LookupTransition(KindPredict, st, ActionRequestWithdrawal); !ok {
			return Validationf("status %s cannot enter withdrawal", st)
		}
	}
	if p.TimeLimitHours < 0 || p.MaxAttempts < 0 {
		return Validationf("withdrawal limits must not be negative")
	}
	return nil
}

// Check 按顺序校验：未决申请、状态、时限、次数
func (p WithdrawalPolicy) Check(record *PeriodRecord, hasPending bool, now time.Time) error {
	if hasPending || record.Status == StatusPendingWithdrawal {
		return PolicyViolation(ReasonAlreadyPending, "record %d already has a pending withdrawal request", record.ID)
	}
	if !p.allows(record.Status) {
		return PolicyViolation(ReasonInvalidStatus, "%s record in status %s cannot be withdrawn", record.Kind, record.Status)
	}
	if p.TimeLimitHours > 0 {
		if record.SubmittedAt == nil {
			return PolicyViolation(ReasonInvalidStatus, "record %d has no submission time", record.ID)
		}
		limit := time.Duration(p.TimeLimitHours) * time.Hour
		if now.Sub(*record.SubmittedAt) > limit {
			return PolicyViolation(ReasonTimeLimitExceeded, "withdrawal window of %dh has passed", p.TimeLimitHours)
		}
	}
	if p.MaxAttempts > 0 && record.WithdrawalAttempts >= p.MaxAttempts {
		return PolicyViolation(ReasonMaxAttemptsExceeded, "record %d reached %d withdrawals", record.ID, p.MaxAttempts)
	}
	return nil
}

func (p WithdrawalPolicy) allows(st RecordStatus) bool {
	for _, s := range p.AllowedStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// PolicySet 各类记录的撤回策略
type PolicySet map[RecordKind]WithdrawalPolicy

// For 未配置的类别使用默认策略
func (ps PolicySet) For(kind RecordKind) WithdrawalPolicy {
	if p, ok := ps[kind]; ok {
		return p
	}
	return DefaultWithdrawalPolicy()
}

func (ps PolicySet) Validate() error {
	for kind, p := range ps {
		if _, err := ParseRecordKind(string(kind)); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", kind, err)
		}
	}
	return nil
}
