package importfile

import (
	"strings"

	"school-identity-onboarding/internal/model"
)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Parse splits a delimited payload into a header and data rows.
// It returns nil when the text is empty or whitespace only.
//
// The delimiter is inferred from the header line alone and then applied to
// every row, even rows that contain more of the other character.
func Parse(text string) *model.ParsedFile {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(lineBreaks.Replace(text), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	delimiter := DetectDelimiter(lines[0])
	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, splitLine(line, delimiter))
	}

	return &model.ParsedFile{
		Delimiter: delimiter,
		Headers:   splitLine(lines[0], delimiter),
		Rows:      rows,
	}
}

// DetectDelimiter picks ',' only when the header has strictly more commas
// than semicolons.
func DetectDelimiter(header string) rune {
	if strings.Count(header, ",") > strings.Count(header, ";") {
		return ','
	}
	return ';'
}

func splitLine(line string, delimiter rune) []string {
	cells := strings.Split(line, string(delimiter))
	for i, cell := range cells {
		cells[i] = strings.TrimSpace(cell)
	}
	return cells
}
