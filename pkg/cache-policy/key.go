package cachepolicy

import (
	"strings"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// KeyPrefix returns the resource part of a cache key: enough to find all
// stored variants of one resource. The trailing tab separates it from the
// vary-relevant suffix so prefixes never collide with longer URIs.
func KeyPrefix(method, uri string) string {
	return strings.ToUpper(method) + ":" + uri + "\t"
}

// AddVaryKeys extends a key prefix with the request's values for the
// nominated field names, producing the full entry key. An absent field is
// encoded as absent, not as empty: per RFC 9111, 4.1 an absent field only
// matches another request where it is also absent.
func AddVaryKeys(prefix string, vary []string, requestHeaders headerval.HeaderMap) string {
	key := prefix
	for _, name := range vary {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || !requestHeaders.Has(name) {
			continue
		}
		key += "\n" + name + ": " + strings.Join(requestHeaders.Values(name), ",")
	}
	return key
}
