package dto

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// PaginationInfo represents pagination metadata for list responses
type PaginationInfo struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// NewPaginationInfo derives page counts from the total
func NewPaginationInfo(page, pageSize int, total int64) PaginationInfo {
	var pages int64
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return PaginationInfo{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalItems:  total,
		TotalPages:  pages,
		HasNext:     int64(page) < pages,
		HasPrevious: page > 1,
	}
}
