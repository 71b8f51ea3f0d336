// Package apperr classifies failures so the HTTP layer can map them to a
// status code without inspecting error strings.
package apperr

import (
	"errors"
	"net/http"
)

// Category groups errors by how they should be reported to a client.
type Category string

const (
	CategoryInvalidInput Category = "invalid_input"
	CategoryResolver     Category = "resolver"
	CategoryMalformed    Category = "malformed"
	CategorySpawn        Category = "spawn"
	CategoryProcess      Category = "process"
	CategoryNotFound     Category = "not_found"
	CategoryFilesystem   Category = "filesystem"
	CategoryUnknown      Category = "unknown"
)

// CategorizedError attaches a Category to an underlying error.
type CategorizedError struct {
	Category Category
	Err      error
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

// Wrap tags err with category. A nil err stays nil.
func Wrap(category Category, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the outermost category found in err's chain.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// Is reports whether err carries the given category.
func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}

// HTTPStatus maps an error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case "":
		return http.StatusOK
	case CategoryInvalidInput:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
