package decoder

import "strings"

// Class is the classification of a response body, based on its declared content type.
type Class string

const (
	ClassRaw  Class = "raw"
	ClassJSON Class = "json"
	ClassXML  Class = "xml"
)

// Classify classifies a Content-Type header value.
// It uses case-insensitive substring matching, so e.g. `application/vnd.api+json` is JSON.
// JSON is checked before XML.
func Classify(contentType string) Class {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return ClassJSON
	case strings.Contains(ct, "xml"):
		return ClassXML
	default:
		return ClassRaw
	}
}

// ParseClass parses a stored classification.
// Unknown values are treated as raw.
func ParseClass(s string) Class {
	switch c := Class(strings.ToLower(s)); c {
	case ClassJSON, ClassXML:
		return c
	default:
		return ClassRaw
	}
}
