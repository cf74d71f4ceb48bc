// Package corspolicy computes CORS decisions: whether a request is simple
// or needs a preflight, whether a preflight succeeds, and which headers the
// actual response must carry for the browser to expose it. All decisions
// are pure and total; malformed input biases toward denial.
package corspolicy

import (
	"sort"
	"strings"
	"time"
)

// Wildcard is the origin value that allows any origin.
const Wildcard = "*"

// Policy is the server-declared allow-policy. It is immutable once built;
// construct instances with NewPolicy so the lookup sets exist.
type Policy struct {
	allowAnyOrigin   bool
	allowedOrigins   map[string]struct{}
	allowedMethods   map[string]struct{}
	allowedHeaders   map[string]struct{}
	allowCredentials bool
	maxAge           time.Duration

	// precomputed header values
	methodsValue string
	headersValue string
}

// NewPolicy builds a Policy from configuration. Origins are compared
// byte-exactly after lowercasing the scheme/host part; methods are
// uppercased; header names are lowercased. An origin entry "*" allows any
// origin, subject to the credentials rule enforced at decision time.
func NewPolicy(origins, methods, headers []string, allowCredentials bool, maxAge time.Duration) Policy {
	p := Policy{
		allowedOrigins:   make(map[string]struct{}),
		allowedMethods:   make(map[string]struct{}),
		allowedHeaders:   make(map[string]struct{}),
		allowCredentials: allowCredentials,
		maxAge:           maxAge,
	}
	for _, o := range origins {
		if o == Wildcard {
			p.allowAnyOrigin = true
			continue
		}
		p.allowedOrigins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	ms := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, dup := p.allowedMethods[m]; !dup {
			p.allowedMethods[m] = struct{}{}
			ms = append(ms, m)
		}
	}
	hs := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := p.allowedHeaders[h]; !dup {
			p.allowedHeaders[h] = struct{}{}
			hs = append(hs, h)
		}
	}
	sort.Strings(hs)
	p.methodsValue = strings.Join(ms, ", ")
	p.headersValue = strings.Join(hs, ", ")
	return p
}

// MaxAge returns how long a successful preflight may be cached. Zero means
// "do not cache", forcing a preflight every time.
func (p Policy) MaxAge() time.Duration {
	return p.maxAge
}

// AllowCredentials reports whether the policy permits credentialed
// requests.
func (p Policy) AllowCredentials() bool {
	return p.allowCredentials
}

// allowOrigin is the single origin check shared by the simple flow, the
// preflight flow and response annotation; keeping one code path is what
// guarantees a preflight and its actual response can never disagree.
//
// The wildcard-with-credentials combination is a permanent deny, matching
// the browser-enforced rule: a credentialed response must never carry
// Access-Control-Allow-Origin: *.
func (p Policy) allowOrigin(origin string) (echo string, ok bool) {
	if origin == "" {
		return "", false
	}
	if p.allowAnyOrigin {
		if p.allowCredentials {
			return "", false
		}
		return Wildcard, true
	}
	if _, ok := p.allowedOrigins[strings.ToLower(strings.TrimRight(origin, "/"))]; ok {
		return origin, true
	}
	return "", false
}

func (p Policy) allowsMethod(method string) bool {
	_, ok := p.allowedMethods[strings.ToUpper(method)]
	return ok
}

func (p Policy) allowsHeader(name string) bool {
	_, ok := p.allowedHeaders[strings.ToLower(name)]
	return ok
}
