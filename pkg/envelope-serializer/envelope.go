package serializer

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"

	decoder "github.com/always-cache/restclient/pkg/response-decoder"
)

const classHeaderName = "Restclient-Content-Class"

// Envelope is a classified but undecoded response.
// It is the unit stored in the response cache.
type Envelope struct {
	StatusCode int
	Class      decoder.Class
	Body       []byte
}

// EnvelopeToBytes returns the HTTP/1.1 representation of the envelope.
// If compress is set, the body is gzipped and marked with `Content-Encoding: gzip`.
func EnvelopeToBytes(env Envelope, compress bool) ([]byte, error) {
	header := make(http.Header)
	header.Set(classHeaderName, string(env.Class))
	body := env.Body
	if compress {
		zipped, err := gzipBytes(body)
		if err != nil {
			return nil, err
		}
		body = zipped
		header.Set("Content-Encoding", "gzip")
	}

	res := &http.Response{
		StatusCode:    env.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToEnvelope reads an envelope written by EnvelopeToBytes.
func BytesToEnvelope(b []byte) (Envelope, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return Envelope{}, err
	}
	defer res.Body.Close()

	if res.Header.Get(classHeaderName) == "" {
		return Envelope{}, fmt.Errorf("missing %s header", classHeaderName)
	}
	var body io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			return Envelope{}, err
		}
		defer zr.Close()
		body = zr
	}
	bts, err := io.ReadAll(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		StatusCode: res.StatusCode,
		Class:      decoder.ParseClass(res.Header.Get(classHeaderName)),
		Body:       bts,
	}, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
