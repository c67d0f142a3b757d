package restclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/always-cache/restclient/cache"
	decoder "github.com/always-cache/restclient/pkg/response-decoder"

	"github.com/go-chi/chi/v5"
)

func startTestServer(t *testing.T) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&hits, 1)
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, `{"id":%q,"q":%q}`, chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	})
	r.Get("/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<feed><entry>one</entry></feed>`))
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "%s %s", r.Header.Get("Content-Type"), r.PostForm.Encode())
	})
	r.Put("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s", r.Header.Get("Content-Type"), body)
	})
	r.Delete("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	r.Get("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/users/7", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, &hits
}

func TestHTTPRoundTrip(t *testing.T) {
	server, hits := startTestServer(t)
	client := New(Config{BaseURL: server.URL + "/", Logger: nopLogger(), Cache: cache.NewMemCache()})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := client.Get(ctx, "/users/42", url.Values{"q": {"x y"}})
		if err != nil {
			t.Fatal(err)
		}
		obj, ok := res.JSON.(map[string]any)
		if !ok || obj["id"] != "42" || obj["q"] != "x y" {
			t.Fatalf("Result is %+v", res)
		}
	}
	if h := atomic.LoadInt64(hits); h != 1 {
		t.Fatalf("Server hit %d times", h)
	}

	res, err := client.Get(ctx, "feed", nil)
	if err != nil || res.Kind != decoder.KindXML || res.XML.Find("entry").Text != "one" {
		t.Fatalf("Feed result is %+v, %v", res, err)
	}
}

func TestHTTPVerbs(t *testing.T) {
	server, _ := startTestServer(t)
	client := New(Config{BaseURL: server.URL, Logger: nopLogger()})
	ctx := context.Background()

	res, err := client.Post(ctx, "/echo", url.Values{"name": {"a&b"}})
	if err != nil || res.Raw != "application/x-www-form-urlencoded name=a%26b" {
		t.Fatalf("POST result is %q, %v", res.Raw, err)
	}
	res, err = client.Put(ctx, "/echo", Raw("plain"))
	if err != nil || res.Raw != "application/x-www-form-urlencoded plain" {
		t.Fatalf("PUT result is %q, %v", res.Raw, err)
	}
	res, err = client.Delete(ctx, "/echo")
	if err != nil || res.StatusCode != http.StatusNoContent || res.Raw != "" {
		t.Fatalf("DELETE result is %+v, %v", res, err)
	}
}

func TestRedirectsAreCapped(t *testing.T) {
	server, hits := startTestServer(t)
	client := New(Config{BaseURL: server.URL, Logger: nopLogger()})

	res, err := client.Get(context.Background(), "/loop", nil)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if res.StatusCode != http.StatusFound {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	// the original request plus the followed redirects
	if h := atomic.LoadInt64(hits); h != DefaultMaxRedirects+1 {
		t.Fatalf("Server hit %d times", h)
	}
}

func TestRedirectIsFollowed(t *testing.T) {
	server, _ := startTestServer(t)
	client := New(Config{BaseURL: server.URL, Logger: nopLogger()})

	res, err := client.Get(context.Background(), "/moved", nil)
	if err != nil || res.StatusCode != http.StatusOK || res.Kind != decoder.KindJSON {
		t.Fatalf("Result is %+v, %v", res, err)
	}

	noFollow := New(Config{BaseURL: server.URL, Logger: nopLogger(), MaxRedirects: -1})
	res, err = noFollow.Get(context.Background(), "/moved", nil)
	if err != nil || res.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("Result is %+v, %v", res, err)
	}
}

func TestConnectionFailure(t *testing.T) {
	server, _ := startTestServer(t)
	base := server.URL
	server.Close()
	client := New(Config{BaseURL: base, Logger: nopLogger()})

	if _, err := client.Get(context.Background(), "/users/1", nil); err == nil {
		t.Fatal("Expected transport error")
	}
}

func TestSQLiteCacheSharedBetweenClients(t *testing.T) {
	server, hits := startTestServer(t)
	filename := filepath.Join(t.TempDir(), "cache.db")
	newClient := func() *Client {
		provider, err := cache.NewSQLiteCache(filename)
		if err != nil {
			t.Fatalf("Could not open cache: %v", err)
		}
		t.Cleanup(func() { provider.Close() })
		return New(Config{
			BaseURL:          server.URL,
			Logger:           nopLogger(),
			Cache:            provider,
			CacheKeyPrefix:   "shared:",
			CacheCompression: true,
		})
	}
	first, second := newClient(), newClient()

	a, err := first.Get(context.Background(), "/users/1", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.Get(context.Background(), "/users/1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !b.FromCache || a.Raw != b.Raw {
		t.Fatalf("Second client got %+v", b)
	}
	if h := atomic.LoadInt64(hits); h != 1 {
		t.Fatalf("Server hit %d times", h)
	}
}
