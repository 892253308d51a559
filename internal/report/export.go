// Package report renders census data into xlsx workbooks for offline
// analysis and sharing.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"mall-census-go/internal/types"
)

// Write renders an Events sheet (the raw log) and a Trends sheet (the ranked
// global trends for the queried window) into w.
func Write(w io.Writer, events []types.DetectionEvent, trends []types.TrendEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeEvents(f, events); err != nil {
		return err
	}
	if err := writeTrends(f, trends); err != nil {
		return err
	}

	// Drop the default sheet so the workbook opens on Events.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeEvents(f *excelize.File, events []types.DetectionEvent) error {
	const sheet = "Events"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	header := []any{"Zone", "Intent", "Entity", "Timestamp", "Day"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, ev := range events {
		row := []any{
			string(ev.Zone),
			ev.Intent,
			ev.Entity,
			time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339),
			ev.DayKey,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write event row: %w", err)
		}
	}
	return nil
}

func writeTrends(f *excelize.File, trends []types.TrendEntry) error {
	const sheet = "Trends"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	header := []any{"Rank", "Entity", "Count", "Last Seen"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, t := range trends {
		row := []any{
			i + 1,
			t.Entity,
			t.Count,
			time.UnixMilli(t.LastSeen).UTC().Format(time.RFC3339),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write trend row: %w", err)
		}
	}
	return nil
}
