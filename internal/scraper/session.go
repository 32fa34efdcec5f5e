package scraper

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/serper/pkg/httpclient"
	"golang.org/x/net/publicsuffix"
)

// ConsentCookieName is the cookie that lets requests skip the consent interstitial.
const ConsentCookieName = "CONSENT"

var consentExpiry = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

// Session owns the cookie state of one scraper. It is not safe for
// concurrent use: Reset swaps the whole cookie store.
type Session struct {
	client *httpclient.Client
	origin *url.URL
	domain string
	suffix func() string
}

// NewSession binds a session to client for the engine at engineURL.
func NewSession(client *httpclient.Client, engineURL string) (*Session, error) {
	u, err := url.Parse(engineURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid engine url %q: missing host", engineURL)
	}
	return &Session{
		client: client,
		origin: &url.URL{Scheme: "https", Host: u.Host, Path: "/"},
		domain: ConsentDomain(u.Hostname()),
		suffix: randomSuffix,
	}, nil
}

// Reset drops every cookie and installs a fresh CONSENT cookie.
func (s *Session) Reset() error {
	consent := &http.Cookie{
		Name:    ConsentCookieName,
		Value:   "YES+" + s.suffix(),
		Path:    "/",
		Domain:  s.domain,
		Expires: consentExpiry,
		Secure:  true,
	}
	return s.client.ResetCookies(s.origin, consent)
}

// Cookies returns what the session would send to the engine origin.
func (s *Session) Cookies() []*http.Cookie {
	return s.client.Cookies(s.origin)
}

// ConsentDomain returns the cookie domain covering every subdomain of the
// registrable domain of host, e.g. ".google.com" for "www.google.com".
// IP addresses and single-label hosts get a host-only domain.
func ConsentDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return "." + etld1
}

func randomSuffix() string {
	b := make([]byte, 3)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return string(b)
}
