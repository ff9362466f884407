package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Storage archives submitted import files.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	URL(key string) string
}

// SourceKey is where the source file of an identity batch is archived.
func SourceKey(batchID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source"
	}
	return path.Join("imports", batchID, name)
}
