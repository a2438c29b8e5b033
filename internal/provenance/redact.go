package provenance

import "regexp"

// maxStoredContent caps the reply text kept in a record. Everything past
// the cap is audit noise, not evidence.
const maxStoredContent = 16 << 10

var reDataURL = regexp.MustCompile(`(?is)\bdata:(image|video|audio)/[a-z0-9+.-]+;base64,[a-z0-9+/=\r\n]+`)

const redactedMarker = "[redacted media]"
const truncatedMarker = "... [truncated]"

// Sanitize scrubs embedded media payloads and caps oversized text before
// the record reaches any sink. Numeric fields are untouched.
func (r *Record) Sanitize() {
	r.Scenario = redactMedia(r.Scenario)
	r.BestContent = capText(redactMedia(r.BestContent), maxStoredContent)
}

func redactMedia(s string) string {
	if s == "" {
		return s
	}
	return reDataURL.ReplaceAllString(s, redactedMarker)
}

func capText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + truncatedMarker
}
