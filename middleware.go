package policygate

import (
	"net/http"
	"strings"
	"time"

	cachepolicy "github.com/policy-gate/policy-gate/pkg/cache-policy"
	corspolicy "github.com/policy-gate/policy-gate/pkg/cors-policy"
	headerval "github.com/policy-gate/policy-gate/pkg/header-value"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Wrap applies the policy gate to the given handler. The gate enforces
// CORS (including short-circuiting preflights), rejects requests no
// configured variant can satisfy with a 406, annotates responses with a
// Cache-Status field reflecting the cache decision, and maintains the
// cache-metadata store from the responses that pass through it.
//
// The gate stores metadata only, never bodies; a fresh entry can therefore
// satisfy a request directly only when the client's own conditionals match
// the stored validators, in which case the gate answers 304 without
// contacting upstream. Everything else is forwarded, with the decision
// exposed in Cache-Status.
func (e *Engine) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := e.log.With().
			Str("req", uuid.NewString()).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Logger()
		headers := headerval.FromHTTP(r.Header)
		origin := r.Header.Get("Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" && origin != "" {
			e.servePreflight(w, r, origin, log)
			return
		}

		if origin != "" {
			d := e.AnnotateCORS(origin)
			if d.Allowed {
				applyDecision(w.Header(), d)
			} else {
				// forward without CORS headers; the browser blocks the
				// response on their absence
				log.Debug().Str("origin", origin).Msg("Origin not allowed, response will not carry CORS headers")
			}
		}

		if _, ok := e.NegotiateMedia(r.Header.Get("Accept")); !ok {
			log.Debug().Str("accept", r.Header.Get("Accept")).Msg("No acceptable variant")
			http.Error(w, "Not Acceptable", http.StatusNotAcceptable)
			return
		}

		e.serveWithCacheStatus(w, r, headers, log, next)
	})
}

func (e *Engine) servePreflight(w http.ResponseWriter, r *http.Request, origin string, log zerolog.Logger) {
	req := corspolicy.PreflightRequest{
		Origin: origin,
		Method: r.Header.Get("Access-Control-Request-Method"),
	}
	for _, line := range r.Header.Values("Access-Control-Request-Headers") {
		for _, name := range strings.Split(line, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.Headers = append(req.Headers, name)
			}
		}
	}
	d := e.Preflight(req)
	if !d.Allowed {
		log.Debug().Str("origin", origin).Str("acrm", req.Method).Msg("Preflight denied")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	applyDecision(w.Header(), d)
	w.WriteHeader(http.StatusNoContent)
}

func (e *Engine) serveWithCacheStatus(w http.ResponseWriter, r *http.Request, headers headerval.HeaderMap, log zerolog.Logger, next http.Handler) {
	var cs CacheStatus
	var entry cachepolicy.Entry
	var found bool

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		entry, found = e.LookupEntry(r.Method, r.URL.RequestURI(), headers)
		if !found {
			cs.Forward(FwdReasonUriMiss)
			break
		}
		decision, _ := e.DecideCache(entry, headers)
		switch decision {
		case cachepolicy.UseCache:
			if cachepolicy.ClientConditionalMatch(entry, headers) {
				cs.Hit(int(entry.TimeToLive(time.Now()).Seconds()))
				w.Header().Set("Cache-Status", cs.String())
				if !entry.ETag.IsZero() {
					w.Header().Set("ETag", entry.ETag.String())
				}
				w.WriteHeader(http.StatusNotModified)
				log.Debug().Str("cache-status", cs.String()).Msg("Served from cache metadata")
				return
			}
			// fresh, but this gate stores no bodies to serve from
			cs.Forward(FwdReasonMiss)
		case cachepolicy.Revalidate:
			cs.Forward(FwdReasonStale)
		case cachepolicy.Bypass:
			cs.Forward(FwdReasonBypass)
		}
	default:
		cs.Forward(FwdReasonMethod)
	}

	gw := &gateWriter{ResponseWriter: w, finalize: func(status int, h http.Header) {
		cs.ForwardStatus(status)
		// a 304 stores nothing on its own; it can only refresh an entry
		// that was already found
		if cachepolicy.Storable(status, headerval.FromHTTP(h)) &&
			(status != http.StatusNotModified || found) {
			cs.Stored()
		}
		h.Set("Cache-Status", cs.String())
	}}
	next.ServeHTTP(gw, r)

	resHeaders := headerval.FromHTTP(gw.Header())
	switch {
	case r.Method != http.MethodGet && r.Method != http.MethodHead:
		if gw.status >= 200 && gw.status < 400 {
			e.Invalidate(r.URL.RequestURI())
		}
	case gw.status == http.StatusNotModified:
		// a 304 carries no representation to build an entry from
		// (RFC 9111, 4.3.3); without a stored entry it changes nothing
		if found {
			e.Revalidated(entry, gw.status, gw.Header().Get("ETag"), gw.Header().Get("Last-Modified"))
		}
	default:
		e.StoreResponse(r.Method, r.URL.RequestURI(), headers, gw.status, resHeaders)
	}
	log.Debug().Str("cache-status", cs.String()).Int("status", gw.status).Msg("Forwarded to handler")
}

// Invalidate purges all stored entries for the given URI. Unsafe methods
// that succeed invalidate the resource they touched (RFC 9111, 4.4).
func (e *Engine) Invalidate(uri string) {
	if e.entries == nil {
		return
	}
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		prefix := cachepolicy.KeyPrefix(method, uri)
		all, err := e.entries.All(prefix)
		if err != nil {
			e.log.Error().Err(err).Str("key", prefix).Msg("Could not list entries for invalidation")
			continue
		}
		for key := range all {
			if err := e.entries.Purge(key); err != nil {
				e.log.Error().Err(err).Str("key", key).Msg("Could not invalidate entry")
			}
		}
	}
}

func applyDecision(dst http.Header, d corspolicy.Decision) {
	for name, value := range d.Headers {
		if name == "Vary" {
			// outer middleware may already have set Vary; never clobber it
			dst.Add(name, value)
			continue
		}
		dst.Set(name, value)
	}
}

// gateWriter finalizes the Cache-Status field at the moment response
// headers are committed, since the forward status and storability are not
// known before the wrapped handler responds.
type gateWriter struct {
	http.ResponseWriter
	status   int
	finalize func(status int, h http.Header)
	done     bool
}

func (w *gateWriter) WriteHeader(code int) {
	if !w.done {
		w.done = true
		w.status = code
		w.finalize(code, w.Header())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *gateWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
