// Package negotiate implements proactive content negotiation over media
// types, languages and content codings (RFC 9110, 12).
//
// One algorithm serves all three axes: each offered variant is scored
// against the client's quality-valued list by the most specific matching
// member, and the winner is the variant with the highest quality, ties
// broken by the server's own preference order. The server decides ties, not
// the client; the stable ordering of the parsed list exists precisely so
// this contract holds.
package negotiate

import (
	"strings"

	headerval "github.com/policy-gate/policy-gate/pkg/header-value"
)

// Variant is one representation a server can produce on a negotiation axis:
// a media type such as "application/json", a language tag such as "en-US",
// or a content coding such as "gzip". Offered variants are listed in server
// preference order.
type Variant string

// matchFunc scores one requested token against an offered variant.
// Higher specificity wins over quality when choosing which member of the
// requested list applies to a variant (exact > subtype wildcard > full
// wildcard).
type matchFunc func(offered Variant, token string) (specificity int, ok bool)

// Negotiate selects the best variant for the given requested list.
// It reports false when no offered variant has positive quality: the caller
// turns that into a 406.
//
// A requested member with q=0 excludes the variants it matches, but only at
// its own specificity: "text/*;q=0, text/html" still allows text/html.
func Negotiate(offered []Variant, requested headerval.NegotiableList, match matchFunc) (Variant, bool) {
	var (
		best        Variant
		bestQuality float64
		found       bool
	)
	for _, v := range offered {
		q, matched := variantQuality(v, requested, match)
		if !matched || q == 0 {
			continue
		}
		// strictly greater: equal quality keeps the earlier (more
		// preferred by the server) variant
		if !found || q > bestQuality {
			best = v
			bestQuality = q
			found = true
		}
	}
	return best, found
}

// variantQuality returns the quality assigned to a variant by the most
// specific matching member of the requested list. Among members of equal
// specificity the first one in the (quality-sorted, stable) list wins.
func variantQuality(v Variant, requested headerval.NegotiableList, match matchFunc) (float64, bool) {
	var (
		bestSpec int
		quality  float64
		found    bool
	)
	for _, qv := range requested {
		spec, ok := match(v, qv.Token)
		if !ok {
			continue
		}
		if !found || spec > bestSpec {
			bestSpec = spec
			quality = qv.Quality
			found = true
		}
	}
	return quality, found
}

// MatchMedia scores a requested media range against an offered media type:
// exact match (3) > type wildcard such as "text/*" (2) > "*/*" (1).
func MatchMedia(offered Variant, token string) (int, bool) {
	if token == "*/*" {
		return 1, true
	}
	offer := strings.ToLower(string(offered))
	token = strings.ToLower(token)
	if reqType, ok := strings.CutSuffix(token, "/*"); ok {
		offerType, _, _ := strings.Cut(offer, "/")
		if offerType == reqType {
			return 2, true
		}
		return 0, false
	}
	if offer == token {
		return 3, true
	}
	return 0, false
}

// MatchLanguage scores a requested language range against an offered tag.
// A range matches a tag whose subtag prefix it equals: "en" matches "en-US"
// but not "enx". Comparison is case-insensitive (RFC 4647, 3.3.1).
func MatchLanguage(offered Variant, token string) (int, bool) {
	if token == "*" {
		return 1, true
	}
	offer := strings.ToLower(string(offered))
	token = strings.ToLower(token)
	if offer == token {
		return 3, true
	}
	if strings.HasPrefix(offer, token) && offer[len(token)] == '-' {
		return 2, true
	}
	return 0, false
}

// MatchEncoding scores a requested coding against an offered one. Codings
// have no subtype structure, so only exact and full wildcard apply.
func MatchEncoding(offered Variant, token string) (int, bool) {
	if token == "*" {
		return 1, true
	}
	if strings.EqualFold(string(offered), token) {
		return 2, true
	}
	return 0, false
}

// Media negotiates the Accept header against offered media types.
// An absent Accept header means the client accepts anything; a malformed
// one degrades the same way rather than failing the request.
func Media(offered []Variant, accept string) (Variant, bool) {
	if accept == "" {
		accept = "*/*"
	}
	requested, err := headerval.ParseQualityList(accept)
	if err != nil {
		requested = headerval.NegotiableList{{Token: "*/*", Quality: 1}}
	}
	return Negotiate(offered, requested, MatchMedia)
}

// Language negotiates the Accept-Language header against offered tags.
// Absence means any language is acceptable.
func Language(offered []Variant, acceptLanguage string) (Variant, bool) {
	if acceptLanguage == "" {
		acceptLanguage = "*"
	}
	requested, err := headerval.ParseQualityList(acceptLanguage)
	if err != nil {
		requested = headerval.NegotiableList{{Token: "*", Quality: 1}}
	}
	return Negotiate(offered, requested, MatchLanguage)
}

// Identity is the coding meaning "no transformation".
const Identity Variant = "identity"

// Encoding negotiates the Accept-Encoding header against offered codings.
//
// §  RFC 9110, 12.5.3: if the field is absent, only identity is acceptable.
// §  An explicit "identity;q=0" (or "*;q=0" without a more specific member)
// §  forbids the uncompressed fallback.
func Encoding(offered []Variant, acceptEncoding string) (Variant, bool) {
	if acceptEncoding == "" {
		for _, v := range offered {
			if strings.EqualFold(string(v), string(Identity)) {
				return v, true
			}
		}
		return "", false
	}
	requested, err := headerval.ParseQualityList(acceptEncoding)
	if err != nil {
		requested = headerval.NegotiableList{{Token: string(Identity), Quality: 1}}
	}
	if v, ok := Negotiate(offered, requested, MatchEncoding); ok {
		return v, true
	}
	// identity is acceptable by default unless explicitly excluded
	// (RFC 9110, 12.5.3, item 3)
	if q, matched := variantQuality(Identity, requested, MatchEncoding); matched && q == 0 {
		return "", false
	}
	for _, v := range offered {
		if strings.EqualFold(string(v), string(Identity)) {
			return v, true
		}
	}
	return "", false
}
