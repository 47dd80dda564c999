// Package store holds the gorm repositories. Repositories translate driver
// errors into apperr kinds and wrap everything else with context.
package store

import (
	"math"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const DefaultPageLimit = 10

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.New(apperr.KindNotFound, what+" not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, errors.Wrap(err, what))
	}
	return errors.Wrap(err, what)
}

// Page is the pagination metadata returned with every list.
type Page struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	Limit      int   `json:"limit"`
}

// PageRequest is a validated page/limit pair.
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest clamps limit into [1, max], defaulting to DefaultPageLimit,
// and page to at least 1.
func NewPageRequest(page, limit, max int) PageRequest {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 {
		limit = 1
	}
	if max > 0 && limit > max {
		limit = max
	}
	return PageRequest{Page: page, Limit: limit}
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p PageRequest) Info(total int64) Page {
	return Page{
		Total:      total,
		Page:       p.Page,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
		Limit:      p.Limit,
	}
}

func paginate(p PageRequest) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Limit)
	}
}
