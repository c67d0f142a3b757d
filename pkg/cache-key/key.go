package cachekey

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	methodSeparator = ":"
	querySeparator  = "\t"
	// only GET responses are ever cached
	method = "GET"
)

type CacheKeyer struct {
	// Prefix shared by all keys of a client.
	// Memory limits are enforced over all entries with this prefix.
	Prefix string
}

func NewCacheKeyer(prefix string) CacheKeyer {
	return CacheKeyer{Prefix: prefix}
}

// Key returns the cache key for a GET of the final (composed) URL with the given query.
// The query is serialized with url.Values.Encode, which sorts by parameter name,
// so the same parameters in a different order give the same key.
func (c CacheKeyer) Key(finalURL string, query url.Values) string {
	return c.Prefix + method + methodSeparator + finalURL + querySeparator + query.Encode()
}

// ParseKey returns the URL and query a key was created from.
// It returns an error if the key does not belong to this keyer.
func (c CacheKeyer) ParseKey(key string) (string, url.Values, error) {
	if !strings.HasPrefix(key, c.Prefix+method+methodSeparator) {
		return "", nil, fmt.Errorf("key and prefix do not match: %s", key)
	}
	rest := strings.TrimPrefix(key, c.Prefix+method+methodSeparator)
	finalURL, encodedQuery, found := strings.Cut(rest, querySeparator)
	if !found {
		return "", nil, fmt.Errorf("malformed key: %s", key)
	}
	query, err := url.ParseQuery(encodedQuery)
	if err != nil {
		return "", nil, fmt.Errorf("malformed key query: %w", err)
	}
	return finalURL, query, nil
}
