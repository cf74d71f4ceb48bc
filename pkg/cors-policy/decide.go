package corspolicy

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Decision is the outcome of a CORS evaluation: whether the request is
// allowed and, when it is, the headers the caller must merge into the
// response. A denied decision carries no headers; the browser blocks the
// response on their absence.
type Decision struct {
	Allowed bool
	Headers map[string]string
}

func deny() Decision {
	return Decision{}
}

// DecideSimple evaluates a simple cross-origin request against the policy.
func DecideSimple(origin string, p Policy) Decision {
	echo, ok := p.allowOrigin(origin)
	if !ok {
		return deny()
	}
	d := Decision{Allowed: true, Headers: map[string]string{
		"Access-Control-Allow-Origin": echo,
	}}
	if p.allowCredentials && echo != Wildcard {
		d.Headers["Access-Control-Allow-Credentials"] = "true"
	}
	if echo != Wildcard {
		d.Headers["Vary"] = "Origin"
	}
	return d
}

// AnnotateResponse computes the headers to attach to the actual response of
// a cross-origin request. It mirrors DecideSimple deliberately: both derive
// from the same origin check, so the preflight answer and the actual
// response can never drift apart.
func AnnotateResponse(origin string, p Policy) Decision {
	return DecideSimple(origin, p)
}

// PreflightRequest is the parsed content of an incoming OPTIONS preflight.
type PreflightRequest struct {
	Origin  string
	Method  string   // Access-Control-Request-Method
	Headers []string // Access-Control-Request-Headers, split on commas
}

// CacheKey returns the preflight cache key for this request: origin,
// method and the sorted, lowercased requested header names. Sorting keeps
// equivalent requests from splitting into distinct cache entries.
func (r PreflightRequest) CacheKey() string {
	names := make([]string, 0, len(r.Headers))
	for _, h := range r.Headers {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			names = append(names, h)
		}
	}
	sort.Strings(names)
	return r.Origin + "\t" + strings.ToUpper(r.Method) + "\t" + strings.Join(names, ",")
}

// PreflightCacheEntry records one cached preflight verdict.
type PreflightCacheEntry struct {
	Allowed   bool      `json:"allowed"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PreflightCache is the injected store for preflight verdicts. Writes to a
// given key must be atomic; reads may be freely concurrent. An absent or
// expired entry always forces a fresh computation.
type PreflightCache interface {
	Get(key string) (PreflightCacheEntry, bool)
	Put(key string, entry PreflightCacheEntry) error
}

// Preflight evaluates a preflight request against the policy, consulting
// and maintaining the given cache. A nil cache disables caching entirely.
//
// Check order follows the Fetch preflight algorithm: origin, then method,
// then headers; the first failure denies. Only allows are cached, and only
// when the policy's max-age is positive.
func Preflight(req PreflightRequest, p Policy, cache PreflightCache, now time.Time) Decision {
	key := req.CacheKey()
	if cache != nil {
		if entry, ok := cache.Get(key); ok && now.Before(entry.ExpiresAt) {
			if entry.Allowed {
				return allowPreflight(req, p)
			}
			return deny()
		}
	}

	if _, ok := p.allowOrigin(req.Origin); !ok {
		return deny()
	}
	if req.Method == "" || !p.allowsMethod(req.Method) {
		return deny()
	}
	for _, name := range req.Headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, safelisted := safelistedHeaders[strings.ToLower(name)]; safelisted {
			continue
		}
		if !p.allowsHeader(name) {
			return deny()
		}
	}

	if cache != nil && p.maxAge > 0 {
		// best-effort: a failed cache write only costs a future preflight
		_ = cache.Put(key, PreflightCacheEntry{
			Allowed:   true,
			ExpiresAt: now.Add(p.maxAge),
		})
	}
	return allowPreflight(req, p)
}

// allowPreflight renders the successful preflight response descriptor.
func allowPreflight(req PreflightRequest, p Policy) Decision {
	echo, ok := p.allowOrigin(req.Origin)
	if !ok {
		return deny()
	}
	d := Decision{Allowed: true, Headers: map[string]string{
		"Access-Control-Allow-Origin":  echo,
		"Access-Control-Allow-Methods": p.methodsValue,
	}}
	if p.headersValue != "" {
		d.Headers["Access-Control-Allow-Headers"] = p.headersValue
	}
	if p.maxAge > 0 {
		d.Headers["Access-Control-Max-Age"] = strconv.Itoa(int(p.maxAge.Seconds()))
	}
	if p.allowCredentials && echo != Wildcard {
		d.Headers["Access-Control-Allow-Credentials"] = "true"
	}
	if echo != Wildcard {
		d.Headers["Vary"] = "Origin"
	}
	return d
}
