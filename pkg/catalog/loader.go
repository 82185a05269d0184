package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

// Loader produces a complete catalog from some source.
type Loader interface {
	Load(ctx context.Context) (*Catalog, error)
}

// FileLoader reads the catalog from a YAML feed file.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and decodes the feed. The file is re-read on every call.
func (l *FileLoader) Load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog feed: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.path, err)
	}
	return c, nil
}

// Decode parses a YAML feed. Unknown keys are rejected so that a typo in
// the feed does not silently drop a table or column.
func Decode(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var feed Feed
	if err := dec.Decode(&feed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", apperrors.ErrInvalidFeed)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidFeed, err)
	}
	return New(feed)
}
