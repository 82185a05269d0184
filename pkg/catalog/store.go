package catalog

import (
	"sync/atomic"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

// Store publishes the current catalog. Reads are lock-free; Replace swaps
// the whole snapshot so readers always see one consistent catalog.
type Store struct {
	current atomic.Pointer[Catalog]
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the published catalog, or apperrors.ErrCatalogNotLoaded
// before the first successful load.
func (s *Store) Current() (*Catalog, error) {
	c := s.current.Load()
	if c == nil {
		return nil, apperrors.ErrCatalogNotLoaded
	}
	return c, nil
}

// Replace publishes c. A nil catalog is ignored.
func (s *Store) Replace(c *Catalog) {
	if c != nil {
		s.current.Store(c)
	}
}
