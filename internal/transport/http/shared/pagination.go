package shared

import (
	"net/http"
	"strconv"
)

// Page is a limit/offset window read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// PageBounds is the default and maximum page size of a listing.
type PageBounds struct {
	Default int
	Max     int
}

var (
	PermitPages = PageBounds{Default: 50, Max: 200}
	FeedPages   = PageBounds{Default: 100, Max: 500}
)

// From reads ?limit and ?offset, falling back to the defaults on bad input.
func (b PageBounds) From(r *http.Request) Page {
	q := r.URL.Query()
	p := Page{
		Limit:  queryInt(q.Get("limit"), b.Default, 1),
		Offset: queryInt(q.Get("offset"), 0, 0),
	}
	if b.Max > 0 {
		p.Limit = min(p.Limit, b.Max)
	}
	return p
}

// SetTotal reports the unpaged row count in X-Total-Count.
func SetTotal(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
}

func queryInt(raw string, fallback, floor int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < floor {
		return fallback
	}
	return v
}
