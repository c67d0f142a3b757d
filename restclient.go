package restclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/always-cache/restclient/cache"
	cachekey "github.com/always-cache/restclient/pkg/cache-key"
	serializer "github.com/always-cache/restclient/pkg/envelope-serializer"
	decoder "github.com/always-cache/restclient/pkg/response-decoder"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/always-cache/restclient"

type (
	Result     = decoder.Result
	OutputMode = decoder.OutputMode
)

const (
	ModeRecognize = decoder.ModeRecognize
	ModeRaw       = decoder.ModeRaw
	ModeJSON      = decoder.ModeJSON
	ModeXML       = decoder.ModeXML
)

type Config struct {
	// All request paths are resolved relative to this URL.
	BaseURL string
	// How response bodies are returned. Defaults to ModeRecognize.
	OutputMode OutputMode
	// Storage for cached GET responses.
	// Caching is disabled if nil or if the provider cannot be pinged.
	Cache cache.CacheProvider
	// Turn off the response cache even if a provider is given.
	DisableCache bool
	// Prefix for all cache keys of this client.
	CacheKeyPrefix string
	// Stop writing new cache entries once the entries under CacheKeyPrefix
	// use more than this many bytes. Zero means unlimited.
	CacheMemoryLimit int64
	// Time-to-live of cache entries. Zero means entries do not expire.
	CacheTTL time.Duration
	// Gzip cached bodies.
	CacheCompression bool
	// Redirects to follow with the default transport.
	// Zero means DefaultMaxRedirects, negative means do not follow redirects.
	MaxRedirects int
	// Transport to use. A net/http based transport is used if nil.
	Transport Transport
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Optional Prometheus metrics.
	Metrics *Metrics
	// Tracer to use. The global OpenTelemetry tracer provider is used if nil.
	Tracer trace.Tracer
}

// Client is a REST client bound to a base URL.
// Its configuration is fixed at creation time, so it is safe for concurrent use.
type Client struct {
	baseURL   string
	mode      OutputMode
	cache     *responseCache
	transport Transport
	log       zerolog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// New creates a client from the config.
func New(config Config) *Client {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("base", config.BaseURL).
		Logger()

	c := &Client{
		baseURL:   config.BaseURL,
		mode:      config.OutputMode,
		transport: config.Transport,
		log:       logger,
		metrics:   config.Metrics,
		tracer:    config.Tracer,
	}

	if c.transport == nil {
		maxRedirects := config.MaxRedirects
		if maxRedirects == 0 {
			maxRedirects = DefaultMaxRedirects
		} else if maxRedirects < 0 {
			maxRedirects = 0
		}
		c.transport = NewHTTPTransport(maxRedirects)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	if cacheAllowed(config, logger) {
		c.cache = &responseCache{
			provider:    config.Cache,
			keyer:       cachekey.NewCacheKeyer(config.CacheKeyPrefix),
			memoryLimit: config.CacheMemoryLimit,
			ttl:         config.CacheTTL,
			compress:    config.CacheCompression,
			log:         logger,
			metrics:     config.Metrics,
		}
	}

	return c
}

// cacheAllowed decides whether the response cache is used at all.
func cacheAllowed(config Config, log zerolog.Logger) bool {
	if config.DisableCache {
		return false
	}
	if config.Cache == nil {
		log.Debug().Msg("No cache provider, caching disabled")
		return false
	}
	if err := config.Cache.Ping(); err != nil {
		log.Warn().Err(err).Msg("Cache provider unavailable, caching disabled")
		return false
	}
	// calls to a local development service should always be live
	if strings.Contains(config.BaseURL, "localhost/") {
		log.Info().Msg("Local base URL, caching disabled")
		return false
	}
	return true
}

// CacheEnabled reports whether GET responses may be served from and stored in the cache.
func (c *Client) CacheEnabled() bool {
	return c.cache != nil
}

type request struct {
	method      string
	url         string
	payload     Payload
	contentType string
}

type getOptions struct {
	noCache bool
}

// GetOption configures a single GET call.
type GetOption func(*getOptions)

// WithoutCache makes a GET call bypass the response cache, both for reading and writing.
func WithoutCache() GetOption {
	return func(o *getOptions) {
		o.noCache = true
	}
}

// Get fetches path with the query parameters added to the URL.
// Successful responses are served from and stored in the response cache, if enabled.
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts ...GetOption) (Result, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	req := request{
		method:  http.MethodGet,
		url:     JoinURL(c.baseURL, path),
		payload: queryPayload(query),
	}
	if c.cache == nil || o.noCache {
		return c.do(ctx, req)
	}

	key := c.cache.keyer.Key(req.url, query)
	if env, ok := c.cache.lookup(key); ok {
		res, err := c.decode(env)
		res.FromCache = true
		return res, err
	}

	env, err := c.fetch(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if env.StatusCode == http.StatusOK {
		if err := c.cache.store(key, env); errors.Is(err, ErrCacheWriteRefused) {
			c.log.Debug().Err(err).Str("key", key).Msg("Cache full, not storing")
		} else if err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		}
	}
	return c.decode(env)
}

// Post sends the form fields as a form-encoded body.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (Result, error) {
	return c.do(ctx, request{
		method:  http.MethodPost,
		url:     JoinURL(c.baseURL, path),
		payload: Form(form),
	})
}

// Put sends the payload, which is either Form or Raw.
// The content type is always application/x-www-form-urlencoded.
func (c *Client) Put(ctx context.Context, path string, body Payload) (Result, error) {
	return c.do(ctx, request{
		method:      http.MethodPut,
		url:         JoinURL(c.baseURL, path),
		payload:     body,
		contentType: formContentType,
	})
}

// Delete deletes path. No body is sent.
func (c *Client) Delete(ctx context.Context, path string) (Result, error) {
	return c.do(ctx, request{
		method: http.MethodDelete,
		url:    JoinURL(c.baseURL, path),
	})
}

// do fetches without touching the cache.
func (c *Client) do(ctx context.Context, req request) (Result, error) {
	env, err := c.fetch(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return c.decode(env)
}

// fetch executes the request and classifies the response.
// Only successful (200) responses are classified; everything else is raw.
func (c *Client) fetch(ctx context.Context, req request) (serializer.Envelope, error) {
	u, body, contentType := req.payload.apply(req.url)
	if req.contentType != "" {
		contentType = req.contentType
	}
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	ctx, span := c.tracer.Start(ctx, "restclient.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("http.url", u),
		))
	defer span.End()

	c.log.Trace().Str("method", req.method).Str("url", u).Int("body", len(body)).Msg("Executing request")
	res, err := c.transport.Execute(ctx, req.method, u, header, body)
	if err != nil {
		c.metrics.recordRequest(req.method, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error().Err(err).Str("method", req.method).Str("url", u).Msg("Could not fetch response")
		return serializer.Envelope{}, &TransportError{Method: req.method, URL: u, Err: err}
	}
	c.metrics.recordRequest(req.method, res.StatusCode)

	env := serializer.Envelope{
		StatusCode: res.StatusCode,
		Class:      decoder.ClassRaw,
		Body:       res.Body,
	}
	if res.StatusCode == http.StatusOK {
		env.Class = decoder.Classify(res.Header.Get("Content-Type"))
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.String("restclient.class", string(env.Class)),
	)
	c.log.Debug().
		Str("method", req.method).
		Str("url", u).
		Int("status", res.StatusCode).
		Str("class", string(env.Class)).
		Msg("Got response")
	return env, nil
}

// decode turns an envelope into a result according to the output mode.
// Non-200 responses are always returned raw.
func (c *Client) decode(env serializer.Envelope) (Result, error) {
	if env.StatusCode != http.StatusOK {
		res := decoder.Raw(env.Body)
		res.StatusCode = env.StatusCode
		return res, nil
	}
	res, err := decoder.Decode(c.mode, env.Class, env.Body)
	res.StatusCode = env.StatusCode
	if res.Fallback != nil {
		c.metrics.recordFallback(string(env.Class))
		c.log.Debug().Err(res.Fallback).Msg("Returning raw body")
	}
	return res, err
}
