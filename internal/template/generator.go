package template

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"

	"school-identity-onboarding/internal/identity"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/schema"
	"school-identity-onboarding/pkg/errors"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	SourceLocal  = "local"
	SourceRemote = "remote"

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var looseFilename = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8'')?"?([^";]+)"?`)

// Template is a downloadable example file.
type Template struct {
	Filename    string
	ContentType string
	Data        []byte
}

type RemoteFetcher interface {
	FetchRemoteTemplate(ctx context.Context, role model.Role, format string) (*identity.RemoteTemplate, error)
}

type Generator struct {
	remote RemoteFetcher
	log    zerolog.Logger
}

func NewGenerator(remote RemoteFetcher) *Generator {
	return &Generator{
		remote: remote,
		log:    logger.Component("template"),
	}
}

// Generate returns a template from the requested source. An empty source
// means local synthesis.
func (g *Generator) Generate(ctx context.Context, role model.Role, format, source string) (*Template, error) {
	if format == "" {
		format = FormatCSV
	}
	switch source {
	case "", SourceLocal:
		return g.Synthesize(role, format)
	case SourceRemote:
		return g.Remote(ctx, role, format)
	default:
		return nil, fmt.Errorf("%w: unknown template source %q", errors.ErrUnsupportedFormat, source)
	}
}

// Synthesize builds a header line plus one sample row, with columns in
// schema declaration order.
func (g *Generator) Synthesize(role model.Role, format string) (*Template, error) {
	s, err := schema.Lookup(role)
	if err != nil {
		return nil, err
	}

	fields := s.Fields()
	header := make([]string, len(fields))
	sample := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
		sample[i] = f.Sample
	}

	switch strings.ToLower(format) {
	case FormatCSV:
		var buf bytes.Buffer
		buf.WriteString(strings.Join(header, ";"))
		buf.WriteString("\n")
		buf.WriteString(strings.Join(sample, ";"))
		buf.WriteString("\n")
		return &Template{
			Filename:    DefaultFilename(role, FormatCSV),
			ContentType: contentTypeCSV,
			Data:        buf.Bytes(),
		}, nil
	case FormatXLSX:
		data, err := workbook(role, header, sample)
		if err != nil {
			return nil, err
		}
		return &Template{
			Filename:    DefaultFilename(role, FormatXLSX),
			ContentType: contentTypeXLSX,
			Data:        data,
		}, nil
	default:
		return nil, errors.ErrUnsupportedFormat
	}
}

// Remote passes the identity service's template bytes through unchanged.
func (g *Generator) Remote(ctx context.Context, role model.Role, format string) (*Template, error) {
	if g.remote == nil {
		return nil, fmt.Errorf("remote templates are not configured")
	}
	tpl, err := g.remote.FetchRemoteTemplate(ctx, role, format)
	if err != nil {
		g.log.Error().Err(err).Str("role", role.String()).Str("format", format).Msg("Failed to fetch remote template")
		return nil, err
	}

	filename := FilenameFromDisposition(tpl.ContentDisposition)
	if filename == "" {
		filename = DefaultFilename(role, format)
	}
	contentType := tpl.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Template{
		Filename:    filename,
		ContentType: contentType,
		Data:        tpl.Data,
	}, nil
}

func DefaultFilename(role model.Role, format string) string {
	return fmt.Sprintf("%s_template.%s", role, format)
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header, preferring the RFC 5987 filename* form.
func FilenameFromDisposition(cd string) string {
	if strings.TrimSpace(cd) == "" {
		return ""
	}
	var name string
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		name = params["filename"]
	} else if m := looseFilename.FindStringSubmatch(cd); m != nil {
		name = m[1]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

func workbook(role model.Role, header, sample []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, string(role)); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	sheet = string(role)

	for i := range header {
		headerCell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		sampleCell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStr(sheet, headerCell, header[i]); err != nil {
			return nil, err
		}
		if err := f.SetCellStr(sheet, sampleCell, sample[i]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
