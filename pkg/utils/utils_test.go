package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagination(t *testing.T) {
	tests := []struct {
		page, size   int
		total        int64
		offset, lim  int
		expectedPage int64
	}{
		{1, 20, 45, 0, 20, 3},
		{3, 20, 45, 40, 20, 3},
		{0, 0, 0, 0, 20, 0},
		{2, 1000, 10, 500, 500, 1},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.size, tt.total)
		assert.Equal(t, tt.offset, p.Offset())
		assert.Equal(t, tt.lim, p.Limit())
		assert.Equal(t, tt.expectedPage, p.Pages)
	}
	assert.Equal(t, int64(7), NewPagination(1, 20, 0).WithTotal(7).Total)
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryWithBackoff(ctx, 5, time.Second, time.Second, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
