package importfile

import (
	"bytes"
	"fmt"
	"strings"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// ParseWorkbook reads the first worksheet of an xlsx file into the same
// shape as a delimited file. Blank rows are dropped.
func ParseWorkbook(data []byte) (*model.ParsedFile, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrFileRead
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	var kept [][]string
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = strings.TrimSpace(cell)
		}
		kept = append(kept, cells)
	}
	if len(kept) == 0 {
		return nil, errors.ErrFileRead
	}

	return &model.ParsedFile{
		Delimiter: ',',
		Headers:   kept[0],
		Rows:      kept[1:],
	}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
