// Package export 导出对账结果为 Excel 工作簿
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Reconciliation"

var header = []any{
	"Fund Need ID", "User Record ID", "User Amount", "Finance Record ID", "Finance Amount",
	"Variance", "Has Difference", "Audit Record ID", "Audit Status", "Needs Audit",
}

// WriteCandidates 将候选列表写为 xlsx，第一行为表头
func WriteCandidates(w io.Writer, period domain.Period, candidates []domain.Candidate) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: "Reconciliation " + period.String()}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, c := range candidates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := candidateRow(c)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveCandidates 写入到文件
func SaveCandidates(path string, period domain.Period, candidates []domain.Candidate) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCandidates(out, period, candidates); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func candidateRow(c domain.Candidate) []any {
	row := []any{
		c.FundNeedID,
		c.UserRecord.ID,
		c.UserRecord.Amount.Decimal.String(),
		c.FinanceRecord.ID,
		c.FinanceRecord.Amount.Decimal.String(),
		c.Variance.String(),
		c.HasDifference,
		"",
		"",
		c.NeedsAudit,
	}
	if c.ExistingAudit != nil {
		row[7] = c.ExistingAudit.ID
		row[8] = string(c.ExistingAudit.Status)
	}
	return row
}
