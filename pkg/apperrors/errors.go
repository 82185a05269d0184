package apperrors

import "errors"

var (
	ErrCatalogNotLoaded = errors.New("schema catalog not loaded")
	ErrInvalidFeed      = errors.New("invalid catalog feed")
)
