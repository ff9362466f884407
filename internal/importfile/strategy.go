package importfile

import (
	"context"
	"path/filepath"
	"strings"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) (*model.ParsedFile, error)
}

type DelimitedStrategy struct{}

func (DelimitedStrategy) Parse(ctx context.Context, data []byte) (*model.ParsedFile, error) {
	parsed := Parse(Decode(data))
	if parsed == nil {
		return nil, errors.ErrFileRead
	}
	return parsed, nil
}

type WorkbookStrategy struct{}

func (WorkbookStrategy) Parse(ctx context.Context, data []byte) (*model.ParsedFile, error) {
	return ParseWorkbook(data)
}

// StrategyFor picks the parser from the file extension; anything that is
// not a workbook is treated as delimited text.
func StrategyFor(fileName string) ParsingStrategy {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return WorkbookStrategy{}
	default:
		return DelimitedStrategy{}
	}
}
