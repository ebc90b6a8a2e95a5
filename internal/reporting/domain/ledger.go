package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransitionEntry 状态变更流水，只追加不修改
type TransitionEntry struct {
	ID         uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecordID   uint                `gorm:"column:record_id;index;not null" json:"record_id"`
	Kind       RecordKind          `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	FundNeedID uint64              `gorm:"column:fund_need_id;not null" json:"fund_need_id"`
	Year       int                 `gorm:"column:year;not null" json:"year"`
	Month      int                 `gorm:"column:month;not null" json:"month"`
	ActorID    string              `gorm:"column:actor_id;type:varchar(64);not null" json:"actor_id"`
	Action     Action              `gorm:"column:action;type:varchar(32);not null" json:"action"`
	OldStatus  RecordStatus        `gorm:"column:old_status;type:varchar(32);not null" json:"old_status"`
	NewStatus  RecordStatus        `gorm:"column:new_status;type:varchar(32);not null" json:"new_status"`
	OldAmount  decimal.NullDecimal `gorm:"column:old_amount;type:decimal(20,4)" json:"old_amount"`
	NewAmount  decimal.NullDecimal `gorm:"column:new_amount;type:decimal(20,4)" json:"new_amount"`
	Remark     string              `gorm:"column:remark;type:varchar(512)" json:"remark"`
	OccurredAt time.Time           `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (TransitionEntry) TableName() string {
	return "record_transitions"
}

// StatusChanged 是否为状态迁移（草稿编辑不算）
func (e TransitionEntry) StatusChanged() bool {
	return e.OldStatus != e.NewStatus
}
