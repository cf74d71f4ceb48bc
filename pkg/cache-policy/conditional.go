package cachepolicy

import (
	"strings"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// ClientConditionalMatch reports whether the client's own precondition
// fields confirm the stored entry, meaning a 304 may be generated without
// contacting the origin.
//
// §  RFC 9110, 13.1.3: a recipient MUST ignore If-Modified-Since when the
// §  request contains an If-None-Match header field. The entity tag is the
// §  authoritative validator whenever both are available.
func ClientConditionalMatch(e Entry, requestHeaders headerval.HeaderMap) bool {
	if requestHeaders.Has("If-None-Match") {
		if e.ETag.IsZero() {
			return false
		}
		for _, line := range requestHeaders.Values("If-None-Match") {
			for _, member := range strings.Split(line, ",") {
				member = strings.TrimSpace(member)
				if member == "*" {
					return true
				}
				tag, err := headerval.ParseETag(member)
				if err != nil {
					continue
				}
				// weak comparison, as required for If-None-Match
				if tag.WeakMatch(e.ETag) {
					return true
				}
			}
		}
		return false
	}
	if ims := requestHeaders.Get("If-Modified-Since"); ims != "" && !e.LastModified.IsZero() {
		t, err := headerval.ParseHTTPDate(ims)
		if err != nil {
			return false
		}
		return !e.LastModified.After(t)
	}
	return false
}
