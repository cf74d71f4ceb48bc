// Package policygate composes the three HTTP policy concerns an
// intermediary has to get right: cross-origin access control, response
// cacheability, and content negotiation. The Engine is the single entry
// point the surrounding server or proxy consumes; the transport, message
// parsing and body storage all stay on the caller's side of the line.
package policygate

import (
	"encoding/json"
	"time"

	cachepolicy "github.com/policy-gate/policy-gate/pkg/cache-policy"
	corspolicy "github.com/policy-gate/policy-gate/pkg/cors-policy"
	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
	"github.com/policy-gate/policy-gate/pkg/metrics"
	"github.com/policy-gate/policy-gate/pkg/negotiate"
	"github.com/policy-gate/policy-gate/pkg/store"

	"github.com/rs/zerolog"
)

// Config assembles an Engine.
type Config struct {
	// CORS is the server-declared allow-policy.
	CORS corspolicy.Policy
	// CacheStore holds response cache metadata. Required for cache
	// decisions; a nil store turns every cache lookup into a miss.
	CacheStore store.Store
	// PreflightStore holds preflight verdicts. Optional; nil disables
	// preflight caching.
	PreflightStore store.Store
	// Offers lists the media types the origin can produce, in server
	// preference order. Optional; empty disables media negotiation in the
	// gate.
	Offers []negotiate.Variant
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Metrics to record decisions with. Optional.
	Metrics *metrics.Metrics
}

// Engine computes policy decisions. All methods are safe for concurrent
// use provided the injected stores are; the engine itself holds no mutable
// state beyond them.
type Engine struct {
	cors       corspolicy.Policy
	entries    store.Store
	preflights corspolicy.PreflightCache
	offers     []negotiate.Variant
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// New assembles an Engine from the given configuration.
func New(config Config) *Engine {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	if config.Logger != nil {
		logger = *config.Logger
	}
	e := &Engine{
		cors:    config.CORS,
		entries: config.CacheStore,
		offers:  config.Offers,
		log:     logger,
		metrics: config.Metrics,
	}
	if config.PreflightStore != nil {
		e.preflights = &preflightCache{
			store:   config.PreflightStore,
			metrics: config.Metrics,
		}
	}
	return e
}

// Classify reports whether a cross-origin request is simple or requires a
// preflight.
func (e *Engine) Classify(method string, headers headerval.HeaderMap) corspolicy.Class {
	return corspolicy.Classify(method, headers)
}

// SimpleCORS decides a simple cross-origin request.
func (e *Engine) SimpleCORS(origin string) corspolicy.Decision {
	start := time.Now()
	d := corspolicy.DecideSimple(origin, e.cors)
	e.metrics.Observe("cors", outcome(d.Allowed), time.Since(start))
	return d
}

// Preflight decides an OPTIONS preflight, consulting the preflight cache
// first.
func (e *Engine) Preflight(req corspolicy.PreflightRequest) corspolicy.Decision {
	start := time.Now()
	d := corspolicy.Preflight(req, e.cors, e.preflights, time.Now())
	e.metrics.Observe("cors", outcome(d.Allowed), time.Since(start))
	e.log.Debug().
		Str("origin", req.Origin).
		Str("method", req.Method).
		Strs("headers", req.Headers).
		Bool("allowed", d.Allowed).
		Msg("Preflight decision")
	return d
}

// AnnotateCORS computes the headers to attach to the actual response of a
// cross-origin request, mirroring the preflight decision.
func (e *Engine) AnnotateCORS(origin string) corspolicy.Decision {
	return corspolicy.AnnotateResponse(origin, e.cors)
}

// NegotiateMedia selects the best configured media type for the given
// Accept value. It reports false only when the engine has offers and none
// is acceptable; with no configured offers everything passes.
func (e *Engine) NegotiateMedia(accept string) (negotiate.Variant, bool) {
	if len(e.offers) == 0 {
		return "", true
	}
	start := time.Now()
	v, ok := negotiate.Media(e.offers, accept)
	result := "acceptable"
	if !ok {
		result = "not-acceptable"
	}
	e.metrics.Observe("negotiate", result, time.Since(start))
	return v, ok
}

// LookupEntry finds the stored entry matching the request, honoring the
// entries' Vary lists: the candidate whose vary-augmented key reproduces
// under this request's header values wins.
func (e *Engine) LookupEntry(method, uri string, requestHeaders headerval.HeaderMap) (cachepolicy.Entry, bool) {
	if e.entries == nil {
		return cachepolicy.Entry{}, false
	}
	prefix := cachepolicy.KeyPrefix(method, uri)
	candidates, err := e.entries.All(prefix)
	if err != nil {
		e.log.Error().Err(err).Str("key", prefix).Msg("Could not read from cache store")
		return cachepolicy.Entry{}, false
	}
	for key, raw := range candidates {
		var entry cachepolicy.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable cache entry")
			continue
		}
		if entry.VariesOnAll() {
			continue
		}
		if cachepolicy.AddVaryKeys(prefix, entry.Vary, requestHeaders) == entry.Key {
			return entry, true
		}
	}
	return cachepolicy.Entry{}, false
}

// DecideCache computes the cache decision for the request against a stored
// entry.
func (e *Engine) DecideCache(entry cachepolicy.Entry, requestHeaders headerval.HeaderMap) (cachepolicy.Decision, cachepolicy.Conditional) {
	start := time.Now()
	d, cond := cachepolicy.Decide(entry, requestHeaders, time.Now())
	e.metrics.Observe("cache", d.String(), time.Since(start))
	return d, cond
}

// StoreResponse records the cache-relevant metadata of an origin response.
// It reports false when the response is not storable; no entry is written
// in that case, per the no-store contract.
func (e *Engine) StoreResponse(method, uri string, requestHeaders headerval.HeaderMap, status int, responseHeaders headerval.HeaderMap) (cachepolicy.Entry, bool) {
	if e.entries == nil {
		return cachepolicy.Entry{}, false
	}
	prefix := cachepolicy.KeyPrefix(method, uri)
	entry, ok := cachepolicy.NewEntry(prefix, status, responseHeaders, time.Now())
	if !ok {
		return cachepolicy.Entry{}, false
	}
	entry.Key = cachepolicy.AddVaryKeys(prefix, entry.Vary, requestHeaders)
	if err := e.putEntry(entry); err != nil {
		e.log.Error().Err(err).Str("key", entry.Key).Msg("Could not write to cache store")
		return cachepolicy.Entry{}, false
	}
	e.log.Trace().Str("key", entry.Key).Msg("Stored cache entry")
	return entry, true
}

// Revalidated applies an upstream validation response: a 304 refreshes the
// stored entry in place, anything else purges it so the caller can store
// the replacement wholesale.
func (e *Engine) Revalidated(entry cachepolicy.Entry, status int, etag, lastModified string) cachepolicy.Outcome {
	refreshed, result := cachepolicy.Revalidated(entry, status, etag, lastModified, time.Now())
	if e.entries == nil {
		return result
	}
	switch result {
	case cachepolicy.Keep:
		if err := e.putEntry(refreshed); err != nil {
			e.log.Error().Err(err).Str("key", entry.Key).Msg("Could not refresh cache entry")
		}
	case cachepolicy.Replace:
		if err := e.entries.Purge(entry.Key); err != nil {
			e.log.Error().Err(err).Str("key", entry.Key).Msg("Could not purge cache entry")
		}
	}
	return result
}

func (e *Engine) putEntry(entry cachepolicy.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// no store expiry: staleness is computed at read time, and a stale
	// entry must stay resident so its validators can drive revalidation.
	// Entries leave the store through Invalidate or a Replace outcome.
	return e.entries.Put(entry.Key, time.Time{}, raw)
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// preflightCache adapts a store.Store to the corspolicy.PreflightCache
// contract, serializing entries as JSON. The store's per-key atomic write
// guarantee is what keeps concurrent preflight insertions from tearing.
type preflightCache struct {
	store   store.Store
	metrics *metrics.Metrics
}

func (c *preflightCache) Get(key string) (corspolicy.PreflightCacheEntry, bool) {
	raw, ok, err := c.store.Get(key)
	if err != nil || !ok {
		c.metrics.PreflightLookup(false)
		return corspolicy.PreflightCacheEntry{}, false
	}
	var entry corspolicy.PreflightCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.metrics.PreflightLookup(false)
		return corspolicy.PreflightCacheEntry{}, false
	}
	c.metrics.PreflightLookup(true)
	return entry, true
}

func (c *preflightCache) Put(key string, entry corspolicy.PreflightCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Put(key, entry.ExpiresAt, raw)
}
