package corspolicy

import (
	"strings"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// Class is the CORS classification of a request.
type Class int

const (
	Simple Class = iota
	PreflightRequired
)

func (c Class) String() string {
	if c == Simple {
		return "simple"
	}
	return "preflight-required"
}

// safelisted request headers that never trigger a preflight; see the Fetch
// standard's CORS-safelisted request-header list.
var safelistedHeaders = map[string]struct{}{
	"accept":           {},
	"accept-language":  {},
	"content-language": {},
	"content-type":     {},
}

// headers the browser controls itself; their presence says nothing about
// the script's intent, so they are ignored during classification.
var forbiddenHeaders = map[string]struct{}{
	"origin":          {},
	"host":            {},
	"referer":         {},
	"user-agent":      {},
	"connection":      {},
	"content-length":  {},
	"accept-encoding": {},
	"cookie":          {},
}

var simpleContentTypes = map[string]struct{}{
	"application/x-www-form-urlencoded": {},
	"multipart/form-data":               {},
	"text/plain":                        {},
}

// Classify reports whether a cross-origin request may be sent directly or
// must be preceded by a preflight. A request is simple iff its method is
// GET, HEAD or POST, every author-controlled header is safelisted, and any
// Content-Type is one of the three form-compatible types.
func Classify(method string, headers headerval.HeaderMap) Class {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "POST":
	default:
		return PreflightRequired
	}
	for _, name := range headers.Names() {
		if _, ok := forbiddenHeaders[name]; ok {
			continue
		}
		if _, ok := safelistedHeaders[name]; !ok {
			return PreflightRequired
		}
	}
	if ct := headers.Get("Content-Type"); ct != "" {
		mediaType := strings.ToLower(strings.TrimSpace(ct))
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = strings.TrimSpace(mediaType[:i])
		}
		if _, ok := simpleContentTypes[mediaType]; !ok {
			return PreflightRequired
		}
	}
	return Simple
}
