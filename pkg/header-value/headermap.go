package headerval

import (
	"net/http"
	"strings"
)

// HeaderMap is an ordered, case-insensitive mapping from field name to
// field values. Multiple values for the same name keep their receipt order.
//
// The zero value is not usable; create instances with NewHeaderMap or
// FromHTTP.
type HeaderMap struct {
	names  []string
	values map[string][]string
}

func NewHeaderMap() HeaderMap {
	return HeaderMap{values: make(map[string][]string)}
}

// FromHTTP copies the given http.Header into a HeaderMap.
// Name order follows Go's map iteration and is therefore unspecified,
// but per-name value order is preserved, which is all the engine relies on.
func FromHTTP(h http.Header) HeaderMap {
	m := NewHeaderMap()
	for name, values := range h {
		for _, v := range values {
			m.Add(name, v)
		}
	}
	return m
}

// Add appends a value for the given field name.
func (m *HeaderMap) Add(name, value string) {
	key := strings.ToLower(name)
	if _, ok := m.values[key]; !ok {
		m.names = append(m.names, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Set replaces all values for the given field name.
func (m *HeaderMap) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := m.values[key]; !ok {
		m.names = append(m.names, key)
	}
	m.values[key] = []string{value}
}

// Get returns the first value for the given field name, or "" if absent.
func (m HeaderMap) Get(name string) string {
	if vv := m.values[strings.ToLower(name)]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// Values returns all values for the given field name in receipt order.
func (m HeaderMap) Values(name string) []string {
	return m.values[strings.ToLower(name)]
}

// Has reports whether the field is present at all.
// A field that is present with an empty value still counts as present;
// vary matching depends on this distinction.
func (m HeaderMap) Has(name string) bool {
	_, ok := m.values[strings.ToLower(name)]
	return ok
}

// Names returns the field names in first-receipt order, lowercased.
func (m HeaderMap) Names() []string {
	return m.names
}

// Len returns the number of distinct field names.
func (m HeaderMap) Len() int {
	return len(m.names)
}
