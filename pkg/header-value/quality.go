package headerval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseError is returned when a header value does not follow its grammar.
// Callers are expected to recover by falling back to a safe default; no
// parse failure in this package is fatal.
type ParseError struct {
	Header string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s value: %s", e.Header, e.Reason)
}

// QualityValue is one member of a quality-valued list such as Accept or
// Accept-Encoding: a token plus its weight.
//
// §  RFC 9110, 12.4.2: weight = OWS ";" OWS "q=" qvalue
// §  qvalue = ( "0" [ "." 0*3DIGIT ] ) / ( "1" [ "." 0*3("0") ] )
type QualityValue struct {
	Token   string
	Quality float64
}

// NegotiableList is a quality-valued list sorted by quality descending.
// Members with equal quality keep their original relative order; servers
// rely on this when breaking ties.
type NegotiableList []QualityValue

// ParseQualityList parses a quality-valued list header such as
// "text/html, application/xml;q=0.9, */*;q=0.1".
//
// The default quality is 1 when no q parameter is given. A quality outside
// [0,1], an unparseable q parameter, or an empty member is a *ParseError.
// Parameters other than q are ignored.
func ParseQualityList(raw string) (NegotiableList, error) {
	var list NegotiableList
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Header: "quality list", Reason: "empty value"}
	}
	for _, member := range strings.Split(raw, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			return nil, &ParseError{Header: "quality list", Reason: "empty list member"}
		}
		qv := QualityValue{Quality: 1}
		parts := strings.Split(member, ";")
		qv.Token = strings.TrimSpace(parts[0])
		if qv.Token == "" {
			return nil, &ParseError{Header: "quality list", Reason: "member without token"}
		}
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			name, value, found := strings.Cut(param, "=")
			if !strings.EqualFold(strings.TrimSpace(name), "q") {
				continue
			}
			if !found {
				return nil, &ParseError{Header: "quality list", Reason: "q parameter without value"}
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, &ParseError{Header: "quality list", Reason: "q is not a number: " + value}
			}
			if q < 0 || q > 1 {
				return nil, &ParseError{Header: "quality list", Reason: "q outside [0,1]: " + value}
			}
			qv.Quality = q
		}
		list = append(list, qv)
	}
	// stable: equal qualities keep receipt order
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Quality > list[j].Quality
	})
	return list, nil
}
