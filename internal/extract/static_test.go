package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newStaticForTest() *StaticPage {
	return NewStaticPage(StaticPageOptions{
		Timeout:        time.Second,
		UserAgent:      "test-agent",
		AcceptLanguage: "ru-RU",
	}, noopLogger())
}

func TestStaticPageJSONLD(t *testing.T) {
	page := `<html><head>
		<script type="application/ld+json">{"@type":"Product","name":"Widget Pro","offers":{"price":"850.00"}}</script>
	</head><body><h1>ignored</h1></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing browser-like User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	result, err := newStaticForTest().Extract(context.Background(), "123456", srv.URL+"/product/123456/")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Name != "Widget Pro" {
		t.Fatalf("name = %q", result.Name)
	}
	if !result.HasPrice() || result.Price.String() != "850" {
		t.Fatalf("price = %v, want 850", result.Price)
	}
	if result.Source != "static-page" {
		t.Fatalf("source = %q", result.Source)
	}
}

func TestStaticPageHTMLFallback(t *testing.T) {
	page := `<html><head><title>store</title></head><body>
		<h1>  Smart   Kettle </h1>
		<div data-price="4990">4 990 ₽</div>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	result, err := newStaticForTest().Extract(context.Background(), "1", srv.URL)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Name != "Smart Kettle" {
		t.Fatalf("name = %q, want whitespace-normalized heading", result.Name)
	}
	if !result.HasPrice() || result.Price.String() != "4990" {
		t.Fatalf("price = %v, want 4990", result.Price)
	}
}

func TestStaticPageNameOnlyIsNotAnError(t *testing.T) {
	page := `<html><body><h1>Nameless Gadget</h1><p>price hidden behind script</p></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	result, err := newStaticForTest().Extract(context.Background(), "1", srv.URL)
	if err != nil {
		t.Fatalf("partial result must not be an error: %v", err)
	}
	if result.Name != "Nameless Gadget" {
		t.Fatalf("name = %q", result.Name)
	}
	if result.HasPrice() {
		t.Fatalf("unexpected price %v", result.Price)
	}
}

func TestStaticPageBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newStaticForTest().Extract(context.Background(), "1", srv.URL)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("error = %v, want ErrBlocked", err)
	}
}

func TestStaticPageBlockedMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div>Antibot challenge: подтвердите, что вы не робот</div></body></html>`))
	}))
	defer srv.Close()

	_, err := newStaticForTest().Extract(context.Background(), "1", srv.URL)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("error = %v, want ErrBlocked", err)
	}
}

func TestStaticPageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newStaticForTest().Extract(context.Background(), "1", srv.URL)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
}
