package headerval

import (
	"strconv"
	"strings"
	"time"
)

// Directives holds the parsed members of a Cache-Control field.
//
// §  RFC 9111, 5.2: cache-directive = token [ "=" ( token / quoted-string ) ]
// §  Cache directives are identified by a token, to be compared
// §  case-insensitively, and have an optional argument.
//
// Unknown directives are preserved so they can be forwarded; a cache MUST
// ignore unrecognized cache directives but not drop them.
type Directives struct {
	m map[string]string
}

// ParseCacheControl parses the Cache-Control field lines of a message.
// Parsing is total: a malformed member is skipped, never an error, because
// caching must degrade to "uncacheable" rather than fail the request.
// When a directive appears more than once, the last occurrence wins.
func ParseCacheControl(values []string) Directives {
	m := make(map[string]string)
	for _, value := range values {
		for _, member := range strings.Split(value, ",") {
			member = strings.TrimSpace(member)
			if member == "" {
				continue
			}
			name, arg, _ := strings.Cut(member, "=")
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			// arguments may use token or quoted-string form
			m[name] = strings.Trim(strings.TrimSpace(arg), `"`)
		}
	}
	return Directives{m}
}

// Get returns the argument of the named directive and whether it is present.
func (d Directives) Get(name string) (string, bool) {
	val, ok := d.m[name]
	return val, ok
}

// Has reports whether the named directive is present.
func (d Directives) Has(name string) bool {
	_, ok := d.m[name]
	return ok
}

// Len returns the number of distinct directives.
func (d Directives) Len() int {
	return len(d.m)
}

// MaxAge returns the max-age directive as a duration and whether it is
// present with a valid delta-seconds argument.
func (d Directives) MaxAge() (time.Duration, bool) {
	return d.deltaSeconds("max-age")
}

// SMaxAge returns the s-maxage directive; for a shared cache it overrides
// max-age and Expires.
func (d Directives) SMaxAge() (time.Duration, bool) {
	return d.deltaSeconds("s-maxage")
}

// deltaSeconds parses the argument of the named directive as delta-seconds.
// A directive that is present with a malformed argument reports false, which
// makes the response stale per RFC 9111, 4.2.1 ("responses that have invalid
// freshness information" are to be considered stale).
func (d Directives) deltaSeconds(name string) (time.Duration, bool) {
	arg, ok := d.Get(name)
	if !ok || arg == "" {
		return 0, false
	}
	seconds, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
