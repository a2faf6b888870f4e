package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"jansetu-be/models"
)

const sheetName = "Issues"

// WriteExcel serializes the issues into a single-sheet XLSX workbook with a
// fixed header row.
func WriteExcel(w io.Writer, issues []models.Issue) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	if err := writeRow(f, 1, Header); err != nil {
		return err
	}
	for idx, row := range Rows(issues) {
		if err := writeRow(f, idx+2, row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}
