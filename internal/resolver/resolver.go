package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnresolvable indicates no product id could be extracted from a URL.
var ErrUnresolvable = errors.New("resolver: product id not found in url")

// Ordered most specific first; the first match wins.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/product/(\d+)/`),
	regexp.MustCompile(`-(\d+)/?$`),
	regexp.MustCompile(`[?&]productId=(\d+)`),
	regexp.MustCompile(`[?&]id=(\d+)`),
	regexp.MustCompile(`/(\d+)/?$`),
}

// Options parameterise the resolver.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Resolver normalises raw product URLs into canonical product ids.
type Resolver struct {
	opts    Options
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// New constructs a Resolver.
func New(opts Options, logger zerolog.Logger) *Resolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.ozon.ru"
	}

	client := &http.Client{
		Timeout: timeout,
		// Short links resolve in a single hop; anything deeper is not worth waiting for.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 1 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Resolver{
		opts:    opts,
		client:  client,
		logger:  logger.With().Str("component", "resolver").Logger(),
		baseURL: baseURL,
	}
}

// Resolve returns the canonical product id and URL for a raw product link.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, string, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return "", "", ErrUnresolvable
	}

	if isShortLink(url) {
		resolved, err := r.followShortLink(ctx, url)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", url).Msg("short link redirect failed")
		} else {
			r.logger.Debug().Str("from", url).Str("to", resolved).Msg("short link resolved")
			url = resolved
		}
	}

	for _, pattern := range idPatterns {
		match := pattern.FindStringSubmatch(url)
		if match == nil {
			continue
		}
		id := match[1]
		return id, r.CanonicalURL(id), nil
	}

	return "", "", fmt.Errorf("%w: %s", ErrUnresolvable, url)
}

// CanonicalURL builds the full product page URL for an id.
func (r *Resolver) CanonicalURL(id string) string {
	return fmt.Sprintf("%s/product/%s/", r.baseURL, id)
}

// Short-link endpoints routinely reject HEAD, so the hop is a GET with the
// body thrown away.
func (r *Resolver) followShortLink(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Request.URL.String(), nil
}

func isShortLink(url string) bool {
	return strings.Contains(url, "/t/")
}
