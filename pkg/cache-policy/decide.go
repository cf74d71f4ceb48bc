package cachepolicy

import (
	"time"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// Decision tells the caller what to do with a stored entry for one request.
type Decision int

const (
	// UseCache: the entry is fresh and the request allows reuse; serve
	// without contacting the origin.
	UseCache Decision = iota
	// Revalidate: forward a conditional request built from the entry's
	// validators before reuse.
	Revalidate
	// Bypass: the request forbids any cache participation; forward it
	// unconditionally.
	Bypass
)

func (d Decision) String() string {
	switch d {
	case UseCache:
		return "use-cache"
	case Revalidate:
		return "revalidate"
	default:
		return "bypass"
	}
}

// Conditional carries the precondition fields to attach to an upstream
// validation request.
type Conditional struct {
	IfNoneMatch     string
	IfModifiedSince string
}

// IsZero reports whether the entry had no validators to offer.
func (c Conditional) IsZero() bool {
	return c.IfNoneMatch == "" && c.IfModifiedSince == ""
}

// Conditional builds the precondition fields for revalidating the entry.
//
// §  RFC 9111, 4.3.1: a cache MUST send the entity tag if one was stored
// §  and SHOULD send the Last-Modified value; in most cases both validators
// §  are generated, even when entity tags are clearly superior, for the
// §  benefit of old intermediaries.
func (e Entry) Conditional() Conditional {
	var c Conditional
	if !e.ETag.IsZero() {
		c.IfNoneMatch = e.ETag.String()
	}
	if !e.LastModified.IsZero() {
		c.IfModifiedSince = headerval.FormatHTTPDate(e.LastModified)
	}
	return c
}

// Decide computes the cache decision for one request against a stored
// entry. Request cache directives are honored even though RFC 9111 makes
// them advisory: no-store and no-cache are exactly the client's explicit
// bypass signals.
//
// Evaluation is total: malformed request directives parse to nothing and
// the decision degrades toward revalidation, never toward serving a stale
// entry.
func Decide(e Entry, requestHeaders headerval.HeaderMap, now time.Time) (Decision, Conditional) {
	reqCC := headerval.ParseCacheControl(requestHeaders.Values("Cache-Control"))
	if reqCC.Has("no-store") {
		return Bypass, Conditional{}
	}
	if reqCC.Has("no-cache") {
		return Revalidate, e.Conditional()
	}
	if e.Evaluate(now) == Fresh {
		return UseCache, Conditional{}
	}
	return Revalidate, e.Conditional()
}
