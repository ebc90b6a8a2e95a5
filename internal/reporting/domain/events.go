package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// 事件名即 Kafka topic
const (
	EventRecordSubmitted     = "record.submitted"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventWithdrawalCanceled  = "withdrawal.canceled"
	EventAuditCompleted      = "audit.completed"
)

// EventNames 全部事件名，用于订阅
func EventNames() []string {
	return []string{
		EventRecordSubmitted,
		EventWithdrawalRequested,
		EventWithdrawalApproved,
		EventWithdrawalRejected,
		EventWithdrawalCanceled,
		EventAuditCompleted,
	}
}

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
	AggregateID() string
}

// RecordSubmittedEvent 记录报送事件
type RecordSubmittedEvent struct {
	RecordID    uint            `json:"record_id"`
	Kind        RecordKind      `json:"kind"`
	FundNeedID  uint64          `json:"fund_need_id"`
	Period      Period          `json:"period"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedBy string          `json:"submitted_by"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (e *RecordSubmittedEvent) EventName() string     { return EventRecordSubmitted }
func (e *RecordSubmittedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *RecordSubmittedEvent) AggregateID() string   { return recordAggregateID(e.RecordID) }

// WithdrawalEvent 撤回申请生命周期事件，Name 区分 requested/approved/rejected/canceled
type WithdrawalEvent struct {
	Name       string     `json:"-"`
	RequestID  uint       `json:"request_id"`
	RequestNo  string     `json:"request_no"`
	RecordID   uint       `json:"record_id"`
	Kind       RecordKind `json:"kind"`
	ActorID    string     `json:"actor_id"`
	Reason     string     `json:"reason,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Attempts   int        `json:"attempts"`
	Timestamp  time.Time  `json:"timestamp"`
	FundNeedID uint64     `json:"fund_need_id"`
	Period     Period     `json:"period"`
}

func (e *WithdrawalEvent) EventName() string     { return e.Name }
func (e *WithdrawalEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *WithdrawalEvent) AggregateID() string   { return recordAggregateID(e.RecordID) }

// AuditCompletedEvent 审计决策完成事件
type AuditCompletedEvent struct {
	RecordID      uint            `json:"record_id"`
	FundNeedID    uint64          `json:"fund_need_id"`
	Period        Period          `json:"period"`
	Status        RecordStatus    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	HasDifference bool            `json:"has_difference"`
	DecidedBy     string          `json:"decided_by"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *AuditCompletedEvent) EventName() string     { return EventAuditCompleted }
func (e *AuditCompletedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *AuditCompletedEvent) AggregateID() string   { return recordAggregateID(e.RecordID) }

func recordAggregateID(id uint) string {
	return "period_record:" + strconv.FormatUint(uint64(id), 10)
}
