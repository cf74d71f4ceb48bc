// Package cachepolicy evaluates HTTP response cacheability, freshness and
// revalidation per RFC 9111. It computes decisions over stored response
// metadata; it never owns storage, eviction or bodies.
package cachepolicy

import (
	"strings"
	"time"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// Entry is the cache-relevant metadata of one stored response.
//
// An entry is created when a cacheable response is received and replaced
// wholesale when the origin returns a new full response. It is never
// partially mutated: mixing old directives with new body semantics is
// exactly the corruption RFC 9111, 3.2 warns about.
type Entry struct {
	// Key identifies the resource plus its vary-relevant request header
	// values.
	Key string `json:"key"`
	// ETag is the stored entity tag, zero when the response carried none.
	ETag headerval.ETag `json:"etag"`
	// LastModified is zero when the response carried no validator
	// timestamp.
	LastModified time.Time `json:"lastModified"`
	// CacheControl holds the raw response directives; they are reparsed on
	// every evaluation so a malformed directive can never poison the
	// stored form.
	CacheControl []string `json:"cacheControl"`
	// Expires and Date back the freshness fallback when max-age is absent.
	Expires time.Time `json:"expires"`
	Date    time.Time `json:"date"`
	// StoredAt is the local clock when the entry was created or last
	// successfully revalidated.
	StoredAt time.Time `json:"storedAt"`
	// Vary lists the request field names the stored response varies on.
	Vary []string `json:"vary"`
}

// Directives parses the stored Cache-Control lines.
func (e Entry) Directives() headerval.Directives {
	return headerval.ParseCacheControl(e.CacheControl)
}

// Storable reports whether a response with the given status and headers may
// be stored by a shared cache at all. Callers must not create an Entry when
// this reports false; no-store means no entry, not an entry that is always
// stale.
//
// §  RFC 9111, 3: the no-store and (for shared caches) private directives
// §  forbid storage outright.
func Storable(status int, headers headerval.HeaderMap) bool {
	switch status {
	case 200, 203, 204, 300, 301, 304, 308, 404, 405, 410, 414, 501:
	default:
		return false
	}
	cc := headerval.ParseCacheControl(headers.Values("Cache-Control"))
	if cc.Has("no-store") || cc.Has("private") {
		return false
	}
	return true
}

// NewEntry builds an Entry from response metadata received at the given
// time. It reports false when the response must not be stored.
func NewEntry(key string, status int, headers headerval.HeaderMap, now time.Time) (Entry, bool) {
	if !Storable(status, headers) {
		return Entry{}, false
	}
	e := Entry{
		Key:          key,
		CacheControl: headers.Values("Cache-Control"),
		StoredAt:     now,
	}
	if raw := headers.Get("ETag"); raw != "" {
		if tag, err := headerval.ParseETag(raw); err == nil {
			e.ETag = tag
		}
	}
	if raw := headers.Get("Last-Modified"); raw != "" {
		if t, err := headerval.ParseHTTPDate(raw); err == nil {
			e.LastModified = t
		}
	}
	if raw := headers.Get("Expires"); raw != "" {
		if t, err := headerval.ParseHTTPDate(raw); err == nil {
			e.Expires = t
		}
	}
	if raw := headers.Get("Date"); raw != "" {
		if t, err := headerval.ParseHTTPDate(raw); err == nil {
			e.Date = t
		}
	}
	for _, line := range headers.Values("Vary") {
		for _, name := range strings.Split(line, ",") {
			if name = strings.TrimSpace(name); name != "" {
				e.Vary = append(e.Vary, strings.ToLower(name))
			}
		}
	}
	return e, true
}

// VariesOnAll reports whether the entry's vary list contains "*", which
// always fails to match (RFC 9111, 4.1).
func (e Entry) VariesOnAll() bool {
	for _, name := range e.Vary {
		if name == "*" {
			return true
		}
	}
	return false
}
