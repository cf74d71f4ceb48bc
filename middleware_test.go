package policygate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cachepolicy "github.com/policy-gate/policy-gate/pkg/cache-policy"
	corspolicy "github.com/policy-gate/policy-gate/pkg/cors-policy"
	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
	"github.com/policy-gate/policy-gate/pkg/negotiate"
	"github.com/policy-gate/policy-gate/pkg/store"

	"github.com/rs/zerolog"
)

func testEngine(t *testing.T, config Config) *Engine {
	t.Helper()
	if config.CacheStore == nil {
		config.CacheStore = store.NewMemStore()
	}
	logger := zerolog.Nop()
	config.Logger = &logger
	return New(config)
}

func originHandler(headers map[string]string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range headers {
			w.Header().Set(name, value)
		}
		w.WriteHeader(status)
		w.Write([]byte("hello"))
	})
}

func TestWrapPreflight(t *testing.T) {
	e := testEngine(t, Config{
		CORS: corspolicy.NewPolicy(
			[]string{"https://a.com"}, []string{"GET", "DELETE"}, []string{"X-Token"},
			false, time.Minute),
		PreflightStore: store.NewMemStore(),
	})
	h := e.Wrap(originHandler(nil, 200))

	r := httptest.NewRequest("OPTIONS", "/resource", nil)
	r.Header.Set("Origin", "https://a.com")
	r.Header.Set("Access-Control-Request-Method", "DELETE")
	r.Header.Set("Access-Control-Request-Headers", "X-Token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://a.com" {
		t.Errorf("unexpected allow-origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Errorf("expected DELETE in allow-methods, got %q", got)
	}
	if w.Body.Len() != 0 {
		t.Error("preflight response must not reach the handler")
	}
}

func TestWrapPreflightDenied(t *testing.T) {
	e := testEngine(t, Config{
		CORS: corspolicy.NewPolicy([]string{"https://a.com"}, []string{"GET"}, nil, false, 0),
	})
	h := e.Wrap(originHandler(nil, 200))

	r := httptest.NewRequest("OPTIONS", "/resource", nil)
	r.Header.Set("Origin", "https://a.com")
	r.Header.Set("Access-Control-Request-Method", "DELETE")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("denied preflight must not carry CORS headers")
	}
}

func TestWrapAnnotatesSimpleRequests(t *testing.T) {
	e := testEngine(t, Config{
		CORS: corspolicy.NewPolicy([]string{"https://a.com"}, []string{"GET"}, nil, false, 0),
	})
	h := e.Wrap(originHandler(nil, 200))

	r := httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Origin", "https://a.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://a.com" {
		t.Errorf("expected annotated response, got allow-origin %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("expected Vary: Origin, got %q", got)
	}
}

func TestWrapDisallowedOriginPassesWithoutHeaders(t *testing.T) {
	e := testEngine(t, Config{
		CORS: corspolicy.NewPolicy([]string{"https://a.com"}, []string{"GET"}, nil, false, 0),
	})
	h := e.Wrap(originHandler(nil, 200))

	r := httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Origin", "https://evil.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != 200 {
		t.Fatalf("expected the request to be forwarded, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin must not produce CORS headers")
	}
}

func TestWrapNotAcceptable(t *testing.T) {
	e := testEngine(t, Config{
		Offers: []negotiate.Variant{"application/json"},
	})
	h := e.Wrap(originHandler(nil, 200))

	r := httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Accept", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %d", w.Code)
	}

	// an acceptable request passes through
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Accept", "application/*")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200 for acceptable request, got %d", w.Code)
	}
}

func TestWrapCacheStatusMissThenHit(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(originHandler(map[string]string{
		"Cache-Control": "max-age=60",
		"ETag":          `"v1"`,
	}, 200))

	// first request: nothing stored yet
	r := httptest.NewRequest("GET", "/resource", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); got != "Policy-Gate; fwd=uri-miss; fwd-status=200; stored" {
		t.Fatalf("unexpected Cache-Status %q", got)
	}

	// the entry is now stored; a conditional request is answered locally
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); !strings.HasPrefix(got, "Policy-Gate; hit") {
		t.Errorf("expected a hit, got %q", got)
	}
	if got := w.Header().Get("ETag"); got != `"v1"` {
		t.Errorf("304 must carry the stored tag, got %q", got)
	}
	if w.Body.Len() != 0 {
		t.Error("304 must not carry a body")
	}

	// without conditionals the gate has no body to serve, so it forwards
	r = httptest.NewRequest("GET", "/resource", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=miss") {
		t.Errorf("expected fwd=miss for bodiless fresh entry, got %q", got)
	}
}

func TestWrapNoStoreIsNeverStored(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(originHandler(map[string]string{
		"Cache-Control": "no-store",
	}, 200))

	r := httptest.NewRequest("GET", "/resource", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); strings.Contains(got, "stored") {
		t.Fatalf("no-store response must not be marked stored, got %q", got)
	}

	r = httptest.NewRequest("GET", "/resource", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=uri-miss") {
		t.Errorf("expected a miss on the second request, got %q", got)
	}
}

func TestWrapRequestNoStoreBypasses(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(originHandler(map[string]string{
		"Cache-Control": "max-age=60",
	}, 200))

	r := httptest.NewRequest("GET", "/resource", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Cache-Control", "no-store")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=bypass") {
		t.Errorf("expected fwd=bypass, got %q", got)
	}
}

func TestWrapUnsafeMethodInvalidates(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(originHandler(map[string]string{
		"Cache-Control": "max-age=60",
		"ETag":          `"v1"`,
	}, 200))

	// seed the entry
	r := httptest.NewRequest("GET", "/resource", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	// a successful POST invalidates it
	r = httptest.NewRequest("POST", "/resource", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=method") {
		t.Fatalf("expected fwd=method, got %q", got)
	}

	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Errorf("expected the invalidated entry to be gone, got %d", w.Code)
	}
}

func TestStoredEntryOutlivesFreshness(t *testing.T) {
	e := testEngine(t, Config{})
	res := headerval.NewHeaderMap()
	res.Set("Cache-Control", "max-age=1")
	res.Set("ETag", `"v1"`)
	req := headerval.NewHeaderMap()

	if _, ok := e.StoreResponse("GET", "/resource", req, 200, res); !ok {
		t.Fatal("expected the response to be stored")
	}
	time.Sleep(1100 * time.Millisecond)

	// past its freshness lifetime the entry must still be resident so its
	// validators can drive revalidation
	entry, found := e.LookupEntry("GET", "/resource", req)
	if !found {
		t.Fatal("stale entry is gone from the store")
	}
	if d, c := e.DecideCache(entry, req); d != cachepolicy.Revalidate || c.IfNoneMatch != `"v1"` {
		t.Errorf("expected revalidation with the stored tag, got %v %+v", d, c)
	}
}

func TestWrapStaleEntryRevalidates(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "max-age=1")
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(200)
		w.Write([]byte("hello"))
	}))

	// seed the entry
	r := httptest.NewRequest("GET", "/resource", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "stored") {
		t.Fatalf("expected the seed response to be stored, got %q", got)
	}

	time.Sleep(1100 * time.Millisecond)

	// stale: the request is forwarded and the upstream 304 refreshes the
	// entry in place
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected the upstream 304 to pass through, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=stale") {
		t.Fatalf("expected fwd=stale, got %q", got)
	}

	// the freshness window restarted: the gate answers the conditional
	// itself now
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); !strings.HasPrefix(got, "Policy-Gate; hit") {
		t.Errorf("expected a hit after revalidation, got %q", got)
	}
}

func TestWrapUpstream304WithoutEntryStoresNothing(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusNotModified)
	}))

	r := httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected the 304 to pass through, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Status"); strings.Contains(got, "stored") {
		t.Errorf("a 304 with no prior entry must not be marked stored, got %q", got)
	}

	// no entry was created from the 304's metadata: still a miss
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("If-None-Match", `"v1"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Cache-Status"); !strings.Contains(got, "fwd=uri-miss") {
		t.Errorf("expected a miss on the follow-up request, got %q", got)
	}
}

func TestWrapVarySplitsEntries(t *testing.T) {
	e := testEngine(t, Config{})
	h := e.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Vary", "Accept-Language")
		if r.Header.Get("Accept-Language") == "fi" {
			w.Header().Set("ETag", `"fi"`)
		} else {
			w.Header().Set("ETag", `"en"`)
		}
		w.WriteHeader(200)
	}))

	r := httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Accept-Language", "fi")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	// same URI, different nominated header value: separate entry, miss
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Accept-Language", "en")
	r.Header.Set("If-None-Match", `"fi"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("expected a vary miss to forward, got %d", w.Code)
	}

	// matching nominated value finds the stored variant
	r = httptest.NewRequest("GET", "/resource", nil)
	r.Header.Set("Accept-Language", "fi")
	r.Header.Set("If-None-Match", `"fi"`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304 for the matching variant, got %d", w.Code)
	}
}
