package cachepolicy

import "time"

// Freshness is the result of evaluating an entry against the clock.
type Freshness int

const (
	Stale Freshness = iota
	Fresh
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Lifetime computes the entry's freshness lifetime by the first matching
// rule of RFC 9111, 4.2.1: s-maxage (shared cache), then max-age, then
// Expires minus Date. With no explicit expiration the lifetime is zero,
// i.e. always stale without validation; this engine applies no heuristic
// freshness.
func (e Entry) Lifetime() time.Duration {
	cc := e.Directives()
	if d, ok := cc.SMaxAge(); ok {
		return d
	}
	if d, ok := cc.MaxAge(); ok {
		return d
	}
	if !e.Expires.IsZero() && !e.Date.IsZero() {
		if d := e.Expires.Sub(e.Date); d > 0 {
			return d
		}
	}
	return 0
}

// Age is the time the entry has been resident since it was stored or last
// validated.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Evaluate reports whether the entry may satisfy a request without
// revalidation at the given instant.
//
// §  RFC 9111, 4.2: response_is_fresh = (freshness_lifetime > current_age)
//
// A no-cache directive makes the entry permanently stale-until-validated
// regardless of its lifetime.
func (e Entry) Evaluate(now time.Time) Freshness {
	if e.Directives().Has("no-cache") {
		return Stale
	}
	if e.Age(now) < e.Lifetime() {
		return Fresh
	}
	return Stale
}

// TimeToLive is the remaining freshness lifetime, negative once stale. It
// feeds the ttl parameter of the Cache-Status field.
func (e Entry) TimeToLive(now time.Time) time.Duration {
	return e.Lifetime() - e.Age(now)
}
