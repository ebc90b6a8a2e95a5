// Package persistence 填报仓储的 GORM 实现（MySQL / PostgreSQL）
package persistence

import (
	"context"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gorm.io/gorm"
)

// Models 需要自动建表的模型
func Models() []any {
	return []any{
		&domain.Project{},
		&domain.FundNeedLine{},
		&domain.PeriodRecord{},
		&domain.TransitionEntry{},
		&domain.WithdrawalRequest{},
	}
}

type transactor struct {
	db *gorm.DB
}

// NewTransactor 事务句柄经上下文传递给同一事务内的各仓储
func NewTransactor(db *gorm.DB) domain.Transactor {
	return &transactor{db: db}
}

// Transaction 已处于事务中时直接复用外层事务
func (t *transactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}

type txKey struct{}

// WithTx 将事务句柄放入上下文
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 取出上下文中的事务句柄
func TxFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Conn 优先使用上下文中的事务，供同库的其他存储共用
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	return Conn(ctx, db)
}
