// Package report генерирует итоговый XLSX отчет о запуске миграции
// для оператора: сводка по сущностям и примеры ошибок.
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/refsync/pkg/migrate"
)

const summarySheet = "Summary"

// WriteXLSX записывает отчет о запуске в Excel файл.
//
// Лист Summary - по строке на сущность (извлечено, создано, обновлено,
// пропущено, сбоев, верификация). Лист Errors - собранные примеры
// ошибок по сущностям и фазам.
func WriteXLSX(result *migrate.RunResult, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// Шапка запуска
	status := "SUCCESS"
	if !result.Success {
		status = "FAILED"
	}
	if result.DryRun {
		status += " (dry-run)"
	}
	f.SetCellValue(summarySheet, "A1", "Plan")
	f.SetCellValue(summarySheet, "B1", result.Plan)
	f.SetCellValue(summarySheet, "A2", "Status")
	f.SetCellValue(summarySheet, "B2", status)
	f.SetCellValue(summarySheet, "A3", "Started")
	f.SetCellValue(summarySheet, "B3", result.StartedAt.Format(time.RFC3339))
	f.SetCellValue(summarySheet, "A4", "Duration")
	f.SetCellValue(summarySheet, "B4", result.Duration().Round(time.Millisecond).String())
	if result.Error != "" {
		f.SetCellValue(summarySheet, "A5", "Error")
		f.SetCellValue(summarySheet, "B5", result.Error)
	}

	// Таблица по сущностям
	headers := []string{"Entity", "Extracted", "Duplicates", "Skipped", "Created", "Updated", "Failed", "Target Count", "Counts OK", "Checksum"}
	headerRow := 7
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, headerRow)
		f.SetCellValue(summarySheet, cell, h)
		f.SetCellStyle(summarySheet, cell, cell, headerStyle)
	}

	for i, er := range result.Entities {
		row := headerRow + 1 + i
		checksum := "n/a"
		if er.ChecksumMatch != nil {
			if *er.ChecksumMatch {
				checksum = "match"
			} else {
				checksum = "MISMATCH"
			}
		}
		values := []interface{}{
			er.Entity, er.Extracted, er.Duplicates, er.Skipped,
			er.Created, er.Updated, er.Failed, er.TargetCount,
			er.CountMatch, checksum,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(summarySheet, cell, v)
		}
	}

	f.SetColWidth(summarySheet, "A", "A", 24)
	f.SetColWidth(summarySheet, "B", "J", 14)

	if err := writeErrorsSheet(f, result, headerStyle); err != nil {
		return err
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// writeErrorsSheet добавляет лист с примерами ошибок (если они были)
func writeErrorsSheet(f *excelize.File, result *migrate.RunResult, headerStyle int) error {
	total := 0
	for _, er := range result.Entities {
		total += len(er.Errors)
	}
	if total == 0 {
		return nil
	}

	const sheet = "Errors"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create errors sheet: %w", err)
	}

	headers := []string{"Entity", "Phase", "Key", "Error"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	row := 2
	for _, er := range result.Entities {
		for _, es := range er.Errors {
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), er.Entity)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), string(es.Phase))
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), es.Key)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), es.Error)
			row++
		}
	}

	f.SetColWidth(sheet, "A", "C", 20)
	f.SetColWidth(sheet, "D", "D", 60)
	return nil
}
