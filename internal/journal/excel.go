package journal

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const timeFormat = "2006-01-02 15:04:05"

// ExportExcel writes the journal to an Excel workbook with one sheet for
// runs and one for operations.
func (j *Journal) ExportExcel(ctx context.Context, path string, runLimit int) error {
	runs, err := j.Runs(ctx, runLimit)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeRunsSheet(f, runs); err != nil {
		return err
	}
	if err := j.writeOperationsSheet(ctx, f, runs); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRunsSheet(f *excelize.File, runs []Run) error {
	const sheet = "Runs"
	f.SetSheetName("Sheet1", sheet)

	headers := []interface{}{"Run ID", "Started", "Finished", "Scraped", "Created", "Updated", "Deleted", "Failed", "Skipped", "Outcome"}
	if err := writeRow(f, sheet, 1, headers); err != nil {
		return err
	}
	if err := boldRow(f, sheet, 1, len(headers)); err != nil {
		return err
	}

	for i, r := range runs {
		row := []interface{}{
			r.ID,
			r.StartedAt.Format(timeFormat),
			r.FinishedAt.Format(timeFormat),
			r.Scraped, r.Created, r.Updated, r.Deleted, r.Failed, r.Skipped,
			r.Outcome,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) writeOperationsSheet(ctx context.Context, f *excelize.File, runs []Run) error {
	const sheet = "Operations"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	headers := []interface{}{"Run ID", "Operation", "Appointment ID", "Event ID", "Summary", "Start", "Detail", "Applied"}
	if err := writeRow(f, sheet, 1, headers); err != nil {
		return err
	}
	if err := boldRow(f, sheet, 1, len(headers)); err != nil {
		return err
	}

	rowNum := 2
	for _, r := range runs {
		ops, err := j.Operations(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, op := range ops {
			row := []interface{}{
				op.RunID, op.Op, op.AppointmentID, op.EventID, op.Summary,
				op.StartTime.Format(timeFormat), op.Detail,
				op.AppliedAt.Format(timeFormat),
			}
			if err := writeRow(f, sheet, rowNum, row); err != nil {
				return err
			}
			rowNum++
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func boldRow(f *excelize.File, sheet string, row, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	startCell, _ := excelize.CoordinatesToCellName(1, row)
	endCell, _ := excelize.CoordinatesToCellName(cols, row)
	return f.SetCellStyle(sheet, startCell, endCell, style)
}
