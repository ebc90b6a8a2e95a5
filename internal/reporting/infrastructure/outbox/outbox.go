// Package outbox 事务性发件箱：领域事件与业务变更同事务落库，提交后由 Relay 投递到 Kafka
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
)

// 事件投递状态
const (
	StatusPending   = "PENDING"
	StatusPublished = "PUBLISHED"
	StatusFailed    = "FAILED"
)

// Event 发件箱中的一条待投递事件
type Event struct {
	ID          string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	EventType   string     `gorm:"column:event_type;type:varchar(64);index;not null" json:"event_type"`
	AggregateID string     `gorm:"column:aggregate_id;type:varchar(64);not null" json:"aggregate_id"`
	Payload     string     `gorm:"column:payload;type:text;not null" json:"payload"`
	Status      string     `gorm:"column:status;type:varchar(16);index:idx_outbox_status_created,priority:1;not null" json:"status"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   string     `gorm:"column:last_error;type:varchar(512)" json:"last_error,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;index:idx_outbox_status_created,priority:2" json:"created_at"`
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
}

func (Event) TableName() string {
	return "outbox_events"
}

// Store 发件箱存储
type Store interface {
	// Add 若上下文中存在事务则在该事务内写入
	Add(ctx context.Context, events ...*Event) error
	// FetchPending 按创建时间取出最早的待投递事件
	FetchPending(ctx context.Context, limit int) ([]*Event, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	// MarkFailed 记录一次失败；final 为 true 时不再重试
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string, final bool) error
}

// Writer 将领域事件序列化后写入发件箱
type Writer struct {
	store Store
	now   func() time.Time
}

// NewWriter 创建领域事件写入器
func NewWriter(store Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// Append 实现 domain.EventOutbox
func (w *Writer) Append(ctx context.Context, events ...domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*Event, 0, len(events))
	for _, e := range events {
		row, err := newEvent(e, w.now())
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return w.store.Add(ctx, rows...)
}

func newEvent(e domain.DomainEvent, now time.Time) (*Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.EventName(), err)
	}
	return &Event{
		ID:          uuid.NewString(),
		EventType:   e.EventName(),
		AggregateID: e.AggregateID(),
		Payload:     string(payload),
		Status:      StatusPending,
		CreatedAt:   now,
	}, nil
}
