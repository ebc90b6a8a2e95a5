package export

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/xuri/excelize/v2"
)

func record(id uint, kind domain.RecordKind, amount int64, status domain.RecordStatus) *domain.PeriodRecord {
	r := domain.NewSkeleton(kind, 11, domain.Period{Year: 2024, Month: 6})
	r.ID = id
	r.Status = status
	r.Amount = decimal.NewNullDecimal(decimal.NewFromInt(amount))
	return r
}

func TestWriteCandidates(t *testing.T) {
	period := domain.Period{Year: 2024, Month: 6}
	candidates := domain.Reconcile(domain.PeriodSnapshot{
		Period:     period,
		ActualUser: []*domain.PeriodRecord{record(1, domain.KindActualUser, 1000, domain.StatusSubmitted)},
		ActualFin:  []*domain.PeriodRecord{record(2, domain.KindActualFin, 1200, domain.StatusSubmitted)},
		Audit:      []*domain.PeriodRecord{record(3, domain.KindAudit, 1000, domain.StatusDraft)},
	})
	require.Len(t, candidates, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteCandidates(&buf, period, candidates))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Fund Need ID", rows[0][0])
	assert.Equal(t, []string{"11", "1", "1000", "2", "1200", "200", "TRUE", "3", "DRAFT", "TRUE"}, rows[1])
}

func TestWriteCandidates_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCandidates(&buf, domain.Period{Year: 2024, Month: 6}, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
