package restclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// DefaultMaxRedirects is the number of redirects followed before the last response is returned.
const DefaultMaxRedirects = 10

// TransportResponse is what a transport returns for a completed call.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs the actual network call.
// Implementations must be safe for concurrent use.
type Transport interface {
	Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error)

func (f TransportFunc) Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error) {
	return f(ctx, method, url, header, body)
}

// HTTPTransport is a Transport using net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport that follows at most maxRedirects redirects.
// When the limit is reached, the redirect response itself is returned.
func NewHTTPTransport(maxRedirects int) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (t *HTTPTransport) Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error) {
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &TransportResponse{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       resBody,
	}, nil
}
