package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTxContext(t *testing.T) {
	ctx := context.Background()
	_, ok := TxFrom(ctx)
	assert.False(t, ok)

	_, ok = TxFrom(WithTx(ctx, nil))
	assert.False(t, ok, "nil handle is not a transaction")

	tx := &gorm.DB{}
	txCtx := WithTx(ctx, tx)
	got, ok := TxFrom(txCtx)
	assert.True(t, ok)
	assert.Same(t, tx, got)
	assert.Same(t, tx, Conn(txCtx, &gorm.DB{}), "repositories and outbox reuse the context transaction")
}
