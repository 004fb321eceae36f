package handler

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Page is the limit/offset window of a list endpoint.
type Page struct {
	Limit  int
	Offset int
}

func ParsePage(r *http.Request) Page {
	return Page{
		Limit:  queryInt(r, "limit", defaultPageSize, maxPageSize),
		Offset: queryInt(r, "offset", 0, 0),
	}
}

// Listing is the response body shared by list endpoints. A negative total
// is left out for listings that do not count.
func (p Page) Listing(key string, items any, total int) map[string]any {
	body := map[string]any{
		key:      items,
		"limit":  p.Limit,
		"offset": p.Offset,
	}
	if total >= 0 {
		body["total"] = total
	}
	return body
}

// queryInt reads a non-negative integer query parameter. Missing, malformed
// or negative values give def, as do values above ceiling when ceiling > 0.
func queryInt(r *http.Request, name string, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 || (ceiling > 0 && n > ceiling) {
		return def
	}
	if n == 0 && ceiling > 0 {
		return def
	}
	return n
}
