package outbox

import (
	"context"
	"time"

	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/persistence"
	"gorm.io/gorm"
)

// GormStore 基于数据库表 outbox_events 的存储
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// getDB 与仓储共用上下文中的事务，事件与记录同一事务落库
func (s *GormStore) getDB(ctx context.Context) *gorm.DB {
	return persistence.Conn(ctx, s.db)
}

func (s *GormStore) Add(ctx context.Context, events ...*Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.getDB(ctx).Create(events).Error
}

func (s *GormStore) FetchPending(ctx context.Context, limit int) ([]*Event, error) {
	var events []*Event
	err := s.getDB(ctx).
		Where("status = ?", StatusPending).
		Order("created_at").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (s *GormStore) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return s.getDB(ctx).Model(&Event{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusPublished,
		"published_at": at,
	}).Error
}

func (s *GormStore) MarkFailed(ctx context.Context, id string, attempts int, lastErr string, final bool) error {
	status := StatusPending
	if final {
		status = StatusFailed
	}
	if len(lastErr) > 512 {
		lastErr = lastErr[:512]
	}
	return s.getDB(ctx).Model(&Event{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"attempts":   attempts,
		"last_error": lastErr,
	}).Error
}

// CountPending 待投递事件数
func (s *GormStore) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.getDB(ctx).Model(&Event{}).Where("status = ?", StatusPending).Count(&n).Error
	return n, err
}
