package shared

import "math"

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ListParams carries page/limit query input for listings.
type ListParams struct {
	Page  int
	Limit int
}

// Normalize applies the default page (1) and limit (10) and caps the limit.
func (p ListParams) Normalize() ListParams {
	if p.Page <= 0 {
		p.Page = defaultPage
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Offset translates page/limit into a SQL offset.
func (p ListParams) Offset() int {
	offset := (p.Page - 1) * p.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(params ListParams, total int) Pagination {
	params = params.Normalize()
	totalPages := int(math.Ceil(float64(total) / float64(params.Limit)))
	return Pagination{Page: params.Page, Limit: params.Limit, Total: total, TotalPages: totalPages}
}
