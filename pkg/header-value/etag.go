package headerval

import "strings"

// ETag is an entity tag validator. The payload is opaque to the protocol
// and compared byte for byte; only the weakness marker is interpreted.
//
// §  RFC 9110, 8.8.3: entity-tag = [ weak ] opaque-tag
// §  weak = %s"W/"
type ETag struct {
	Value string
	Weak  bool
}

// ParseETag parses an ETag or If-None-Match member such as `"abc"` or
// `W/"abc"`. The surrounding quotes are required by the grammar.
func ParseETag(raw string) (ETag, error) {
	raw = strings.TrimSpace(raw)
	var tag ETag
	if strings.HasPrefix(raw, "W/") || strings.HasPrefix(raw, "w/") {
		tag.Weak = true
		raw = raw[2:]
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return ETag{}, &ParseError{Header: "ETag", Reason: "opaque-tag must be quoted: " + raw}
	}
	tag.Value = raw[1 : len(raw)-1]
	return tag, nil
}

// IsZero reports whether the tag is absent.
func (t ETag) IsZero() bool {
	return t.Value == "" && !t.Weak
}

// String renders the tag in wire form.
func (t ETag) String() string {
	if t.Weak {
		return `W/"` + t.Value + `"`
	}
	return `"` + t.Value + `"`
}

// WeakMatch compares two tags ignoring weakness, as used for If-None-Match
// and cache revalidation (RFC 9110, 8.8.3.2).
func (t ETag) WeakMatch(other ETag) bool {
	return t.Value == other.Value
}

// StrongMatch compares two tags requiring both to be strong.
func (t ETag) StrongMatch(other ETag) bool {
	return !t.Weak && !other.Weak && t.Value == other.Value
}
