package handlers

import (
	"math"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
	// maxAdminPage keeps (page-1)*limit from overflowing into a negative OFFSET.
	maxAdminPage         = math.MaxInt32 / maxAdminPageSize
	dateLayout           = "2006-01-02"
)

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseOffset(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// parsePage reads page and limit, both 1-based and bounded.
func parsePage(query url.Values) (page, limit, offset int) {
	page = parseInt(query.Get("page"), 1)
	limit = parseInt(query.Get("limit"), defaultAdminPageSize)
	if limit > maxAdminPageSize {
		limit = maxAdminPageSize
	}
	if page > maxAdminPage {
		page = maxAdminPage
	}
	return page, limit, (page - 1) * limit
}

// queryValue returns the first non-empty value among the given names.
func queryValue(query url.Values, names ...string) string {
	for _, name := range names {
		if value := query.Get(name); value != "" {
			return value
		}
	}
	return ""
}

// parseDateBound accepts RFC 3339 or a bare date in loc. A bare end date
// covers the whole day.
func parseDateBound(raw string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		parsed = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &parsed, nil
}
