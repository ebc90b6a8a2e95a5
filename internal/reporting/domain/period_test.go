package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportingPeriodAt(t *testing.T) {
	tests := []struct {
		at      time.Time
		cutover int
		want    Period
	}{
		{time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 0, Period{2024, 6}},
		{time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 5, Period{2024, 5}},
		{time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), 5, Period{2024, 6}},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 10, Period{2023, 12}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReportingPeriodAt(tt.at, tt.cutover), tt.at.String())
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-06")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2024, Month: 6}, p)
	assert.Equal(t, "2024-06", p.String())
	assert.Equal(t, Period{Year: 2025, Month: 1}, Period{Year: 2024, Month: 12}.Next())

	for _, bad := range []string{
		"2024", "2024-13", "1999-01", "june", "",
		"2024-06-31", "2024-6junk", "+2024-+6", "2024-6", " 2024-06", "2024/06",
	} {
		_, err := ParsePeriod(bad)
		assert.True(t, errors.Is(err, ErrValidation), bad)
	}
}

func TestFixedClock(t *testing.T) {
	c := &FixedClock{T: time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC)}
	c.Advance(2 * time.Hour)
	assert.Equal(t, Period{Year: 2024, Month: 7}, PeriodOf(c.Now()))
}

func TestErrorIs(t *testing.T) {
	err := PolicyViolation(ReasonTimeLimitExceeded, "late")
	wrapped := fmt.Errorf("submit: %w", err)

	assert.True(t, errors.Is(wrapped, ErrPolicyViolation))
	assert.True(t, errors.Is(wrapped, &Error{Code: CodePolicyViolation, Reason: ReasonTimeLimitExceeded}))
	assert.False(t, errors.Is(wrapped, &Error{Code: CodePolicyViolation, Reason: ReasonAlreadyPending}))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodePolicyViolation, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))

	internal := Internal(errors.New("db down"))
	assert.True(t, errors.Is(internal, ErrInternal))
	assert.Contains(t, internal.Error(), "INTERNAL_ERROR")
}
