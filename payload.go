package restclient

import (
	"net/url"
	"strings"
)

const formContentType = "application/x-www-form-urlencoded"

type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadQuery
	payloadForm
	payloadRaw
)

// Payload is the data sent with a request.
// Use Form or Raw to create one.
type Payload struct {
	kind   payloadKind
	values url.Values
	raw    string
}

// Form creates a form-encoded payload.
func Form(values url.Values) Payload {
	return Payload{kind: payloadForm, values: values}
}

// Raw creates a payload sent verbatim as the request body.
func Raw(body string) Payload {
	return Payload{kind: payloadRaw, raw: body}
}

func queryPayload(values url.Values) Payload {
	return Payload{kind: payloadQuery, values: values}
}

// apply returns the request URL, body and content type for the payload.
func (p Payload) apply(u string) (string, []byte, string) {
	switch p.kind {
	case payloadQuery:
		return withQuery(u, p.values), nil, ""
	case payloadForm:
		return u, []byte(p.values.Encode()), formContentType
	case payloadRaw:
		return u, []byte(p.raw), ""
	default:
		return u, nil, ""
	}
}

// JoinURL joins a base URL and a path.
// If base ends with a slash and path starts with one, one slash is dropped from the path.
// Otherwise the two are concatenated as they are.
func JoinURL(base, path string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	return base + path
}

// withQuery appends the encoded query to the URL.
func withQuery(u string, query url.Values) string {
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}
