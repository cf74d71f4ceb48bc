package policygate

import "fmt"

// FwdReason is the fwd parameter of the Cache-Status field (RFC 9211,
// 2.2): why a request was forwarded instead of served from cache.
type FwdReason string

const (
	// FwdReasonBypass: the cache was configured or instructed not to
	// handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// FwdReasonMethod: the request method's semantics require forwarding.
	FwdReasonMethod FwdReason = "method"
	// FwdReasonUriMiss: no stored entry matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// FwdReasonVaryMiss: an entry matched the URI but not the nominated
	// request header fields.
	FwdReasonVaryMiss FwdReason = "vary-miss"
	// FwdReasonMiss: no stored response could satisfy the request, for
	// caches that cannot be more specific. This gate uses it when an entry
	// is fresh but no body is stored to serve.
	FwdReasonMiss FwdReason = "miss"
	// FwdReasonStale: an entry matched but was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus accumulates the Cache-Status parameters for one request and
// renders the field value (RFC 9211).
type CacheStatus struct {
	hit        bool
	fwdReason  FwdReason
	fwdStatus  int
	stored     bool
	timeToLive int
}

// Hit marks the request as served from cache.
func (cs *CacheStatus) Hit(ttlSeconds int) {
	cs.hit = true
	cs.timeToLive = ttlSeconds
}

// Forward marks the request as forwarded for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.fwdReason = reason
}

// ForwardStatus records the status code received from upstream.
func (cs *CacheStatus) ForwardStatus(status int) {
	cs.fwdStatus = status
}

// Stored marks the forwarded response as stored.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

func (cs CacheStatus) String() string {
	s := "Policy-Gate"
	if cs.hit {
		s += "; hit"
		if cs.timeToLive != 0 {
			s += fmt.Sprintf("; ttl=%d", cs.timeToLive)
		}
		return s
	}
	if cs.fwdReason != "" {
		s += fmt.Sprintf("; fwd=%s", cs.fwdReason)
	}
	if cs.fwdStatus != 0 {
		s += fmt.Sprintf("; fwd-status=%d", cs.fwdStatus)
	}
	if cs.stored {
		s += "; stored"
	}
	return s
}
