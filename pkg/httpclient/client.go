package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Provide a custom Transport, e.g. for proxies or uTLS fingerprinting
	Transport http.RoundTripper
}

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policies and a cookie store that can be wiped between requests.
//
// The cookie store is shared by every request made through the client, so a
// Client that calls ResetCookies must not serve concurrent request flows.
type Client struct {
	*http.Client
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	switch {
	case cfg.MaxRedirects > 0:
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("context: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	case cfg.MaxRedirects < 0:
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	// MaxRedirects == 0 keeps net/http's default of 10.

	if cfg.UseCookieJar {
		jar, err := newJar()
		if err != nil {
			return nil, fmt.Errorf("context: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c}, nil
}

func newJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// ResetCookies discards every stored cookie and seeds the fresh store with
// the given cookies as if they had been set by a response from u.
func (c *Client) ResetCookies(u *url.URL, cookies ...*http.Cookie) error {
	if u == nil {
		return errors.New("context: cookie url cannot be nil")
	}
	jar, err := newJar()
	if err != nil {
		return fmt.Errorf("context: %w", err)
	}
	if len(cookies) > 0 {
		jar.SetCookies(u, cookies)
	}
	c.Client.Jar = jar
	return nil
}

// Cookies returns the cookies the client would send to u.
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	if c.Client.Jar == nil || u == nil {
		return nil
	}
	return c.Client.Jar.Cookies(u)
}

// Do executes an HTTP request. The provided context.Context should control
// the overarching request timeout/cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("context: context cannot be nil")
	}

	// Always clone the request with the provided context
	reqWithCtx := req.Clone(ctx)

	resp, err := c.Client.Do(reqWithCtx)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	return resp, nil
}
