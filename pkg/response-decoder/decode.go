package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// OutputMode controls how response bodies are turned into results.
type OutputMode int

const (
	// ModeRecognize decodes according to the response classification.
	// Bodies that fail to decode are returned raw.
	ModeRecognize OutputMode = iota
	// ModeRaw always returns the raw body.
	ModeRaw
	// ModeJSON decodes every successful body as JSON and fails if it cannot.
	ModeJSON
	// ModeXML decodes every successful body as XML and fails if it cannot.
	ModeXML
)

var modeNames = map[OutputMode]string{
	ModeRecognize: "recognize",
	ModeRaw:       "raw",
	ModeJSON:      "json",
	ModeXML:       "xml",
}

func (m OutputMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("OutputMode(%d)", int(m))
}

// ParseOutputMode parses a mode name (case-insensitive).
// An empty string is ModeRecognize.
func ParseOutputMode(s string) (OutputMode, error) {
	if s == "" {
		return ModeRecognize, nil
	}
	for mode, name := range modeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown output mode %q", s)
}

// Kind tells which field of a Result holds the value.
type Kind int

const (
	KindRaw Kind = iota
	KindJSON
	KindXML
)

// Result is the outcome of a REST call.
type Result struct {
	StatusCode int
	// Classification of the response. Always ClassRaw for non-200 responses.
	Class Class
	Kind  Kind
	// The response body, always set.
	Raw string
	// Decoded JSON value, for KindJSON.
	JSON any
	// Parsed XML document, for KindXML.
	XML *Node
	// If decoding was attempted and failed, Fallback holds the *DecodeError
	// and the result is raw.
	Fallback error
	// Whether the result was served from the response cache.
	FromCache bool
}

// Value returns the decoded value, or the raw body for raw results.
func (r Result) Value() any {
	switch r.Kind {
	case KindJSON:
		return r.JSON
	case KindXML:
		return r.XML
	default:
		return r.Raw
	}
}

// DecodeError reports a body that could not be parsed as its expected format.
type DecodeError struct {
	Class Class
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s body: %v", e.Class, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Raw returns a raw result for the body.
func Raw(body []byte) Result {
	return Result{Class: ClassRaw, Kind: KindRaw, Raw: string(body)}
}

// Decode turns a successful response body into a result according to the output mode.
// An error is only returned by the strict modes (ModeJSON and ModeXML).
func Decode(mode OutputMode, class Class, body []byte) (Result, error) {
	res := Raw(body)
	res.Class = class

	switch mode {
	case ModeRaw:
		return res, nil
	case ModeJSON:
		class = ClassJSON
	case ModeXML:
		class = ClassXML
	}

	var err error
	switch class {
	case ClassJSON:
		if res.JSON, err = parseJSON(body); err == nil {
			res.Kind = KindJSON
		}
	case ClassXML:
		if res.XML, err = ParseXML(body); err == nil {
			res.Kind = KindXML
		}
	default:
		return res, nil
	}
	if err == nil {
		return res, nil
	}

	decodeErr := &DecodeError{Class: class, Err: err}
	if mode == ModeJSON || mode == ModeXML {
		return res, decodeErr
	}
	res.JSON, res.XML = nil, nil
	res.Fallback = decodeErr
	return res, nil
}

// parseJSON decodes a single JSON value, keeping numbers as json.Number.
func parseJSON(body []byte) (any, error) {
	d := json.NewDecoder(bytes.NewReader(body))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := d.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
