package sheetsql

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadWorksheet loads one worksheet of an XLSX workbook into a dataset.
//
// headerRow is the 1-based row holding the column headers; rows above it are
// skipped, every row below it becomes data. Rows shorter than the header are
// padded with nil cells, and raw cell strings are parsed into typed scalars
// so type affinities can be resolved from the first data row.
func ReadWorksheet(workbookPath, sheetName string, headerRow int) (*Dataset, error) {
	workbook, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", workbookPath, err)
	}
	defer func() {
		_ = workbook.Close()
	}()

	rows, err := workbook.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %s: %w", sheetName, err)
	}
	if headerRow < 1 {
		headerRow = defaultHeaderRow
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("worksheet %s has no header row %d", sheetName, headerRow)
	}

	headers := newHeader(rows[headerRow-1])
	if err := validateColumnNames(headers); err != nil {
		return nil, fmt.Errorf("worksheet %s: %w", sheetName, err)
	}

	records := make([]Record, 0, len(rows)-headerRow)
	for _, row := range rows[headerRow:] {
		record := make(Record, len(headers))
		for i := range headers {
			if i < len(row) {
				record[i] = parseCell(row[i])
			}
		}
		records = append(records, record)
	}
	return newDataset(sheetName, headers, records), nil
}

// WriteWorksheet writes headers and rows to a single-sheet XLSX file,
// overwriting path if it exists.
func WriteWorksheet(path, sheetName string, headers []string, rows [][]string) error {
	workbook := excelize.NewFile()
	defer func() {
		_ = workbook.Close()
	}()

	const defaultSheet = "Sheet1"
	if sheetName != "" && sheetName != defaultSheet {
		if err := workbook.SetSheetName(defaultSheet, sheetName); err != nil {
			return fmt.Errorf("failed to name worksheet %s: %w", sheetName, err)
		}
	} else if sheetName == "" {
		sheetName = defaultSheet
	}

	writeRow := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return workbook.SetSheetRow(sheetName, cell, &row)
	}

	if err := writeRow(1, headers); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := workbook.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
