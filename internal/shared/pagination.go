// Package shared holds small helpers used across HTTP handlers.
package shared

import (
	"net/url"
	"strconv"
)

// PageRequest carries normalized limit/offset values for list endpoints.
type PageRequest struct {
	Limit  int
	Offset int
}

// ParsePage reads limit/offset query parameters, applying the default and
// clamping to the maximum. Invalid or missing values fall back to defaults.
func ParsePage(query url.Values, defaultLimit, maxLimit int) PageRequest {
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(query.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return PageRequest{Limit: limit, Offset: offset}
}
