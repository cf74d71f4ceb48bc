package cachepolicy

import (
	"time"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// Outcome is the result of handling a revalidation response.
type Outcome int

const (
	// Keep: the stored entry is still current; its freshness window has
	// been restarted.
	Keep Outcome = iota
	// Replace: the origin sent a new representation; the caller must build
	// a fresh entry from the full response and discard the old one.
	Replace
)

func (o Outcome) String() string {
	if o == Keep {
		return "keep"
	}
	return "replace"
}

// Revalidated applies an upstream validation response to a stored entry.
//
// A 304 confirms the stored representation: the entry is returned with its
// StoredAt refreshed and any validators the 304 carried folded in
// (RFC 9111, 4.3.4 allows a 304 to update stored metadata). Any other
// status, in particular a new 200, replaces the entry wholesale; the
// returned entry is then meaningless and the caller must construct a new
// one from the full response.
//
// When both validators are present and disagree, the entity tag is
// authoritative: a 304 carrying a different strong tag than the one stored
// means the origin validated a sibling variant, and reusing the stored
// entry would pin the wrong representation, so the outcome is Replace.
func Revalidated(e Entry, status int, etag, lastModified string, now time.Time) (Entry, Outcome) {
	if status != 304 {
		return Entry{}, Replace
	}
	if etag != "" {
		tag, err := headerval.ParseETag(etag)
		if err == nil && !e.ETag.IsZero() && !tag.WeakMatch(e.ETag) {
			return Entry{}, Replace
		}
		if err == nil {
			e.ETag = tag
		}
	}
	if lastModified != "" {
		if t, err := headerval.ParseHTTPDate(lastModified); err == nil {
			e.LastModified = t
		}
	}
	e.StoredAt = now
	return e, Keep
}
