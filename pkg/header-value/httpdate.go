package headerval

import (
	"net/http"
	"strings"
	"time"
)

// §  RFC 9110, 5.6.7: HTTP-date = IMF-fixdate / obs-date
// §  An example of the preferred format is
// §    Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// ParseHTTPDate parses an HTTP-date field value. Recipients must accept the
// IMF-fixdate format as well as both obsolete formats (RFC 850 and asctime).
// Matching is case-insensitive per the caching spec's relaxation (RFC 9111,
// 4.2).
func ParseHTTPDate(raw string) (time.Time, error) {
	str := strings.ToUpper(strings.TrimSpace(raw))
	if date, err := time.Parse(imfDateLayout, str); err == nil {
		return date, nil
	}
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, nil
	}
	return time.Parse(time.ANSIC, str)
}

// FormatHTTPDate renders a timestamp in IMF-fixdate form, the only format a
// sender may generate. http.TimeFormat spells GMT literally, which the
// parsing layout's MST token would not.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
