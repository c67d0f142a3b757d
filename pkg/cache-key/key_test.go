package cachekey

import (
	"net/url"
	"strings"
	"testing"
)

func TestKeyIncludesPrefixAndURL(t *testing.T) {
	keyer := NewCacheKeyer("api-v1:")
	key := keyer.Key("http://example.com/users", url.Values{"page": {"2"}})
	if !strings.HasPrefix(key, "api-v1:") || !strings.Contains(key, "http://example.com/users") {
		t.Fatalf("Key is %s", key)
	}
}

func TestKeyIgnoresParameterOrder(t *testing.T) {
	keyer := NewCacheKeyer("")
	a := keyer.Key("http://x/y", url.Values{"a": {"1"}, "b": {"2"}})
	b := keyer.Key("http://x/y", url.Values{"b": {"2"}, "a": {"1"}})
	if a != b {
		t.Fatalf("Keys differ: %q %q", a, b)
	}
	if c := keyer.Key("http://x/y", url.Values{"a": {"2"}}); c == a {
		t.Fatalf("Different query gave same key %q", c)
	}
}

func TestParseKey(t *testing.T) {
	keyer := NewCacheKeyer("this-is-the-prefix:")
	key := keyer.Key("http://dev.local/page", url.Values{"q": {"a b"}})
	u, query, err := keyer.ParseKey(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if u != "http://dev.local/page" || query.Get("q") != "a b" {
		t.Fatalf("Parsed key %s as %s %v", key, u, query)
	}
	if _, _, err := NewCacheKeyer("other:").ParseKey(key); err == nil {
		t.Fatal("Expected prefix mismatch")
	}
	if _, _, err := keyer.ParseKey("this-is-the-prefix:GET:no-separator"); err == nil {
		t.Fatal("Expected malformed key error")
	}
}
