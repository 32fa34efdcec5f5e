package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a config value onto a Profile. The empty string selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("context: unknown profile %q", s)
	}
}

// Options tune the transport built by Transport.
type Options struct {
	// Proxy routes every request through a single outbound proxy when set.
	// CONNECT tunnels are negotiated by net/http, so the uTLS handshake only
	// applies to direct connections.
	Proxy *url.URL
	// RootCAs overrides the system roots for certificate verification.
	RootCAs *x509.CertPool
}

// Transport returns an http.RoundTripper configured with the specified
// TLS fingerprint profile. ProfileGo yields a plain http.Transport; the other
// profiles perform the handshake with utls.UClient.
//
// Browser profiles are pinned to HTTP/1.1 through ALPN because the returned
// transport does not speak HTTP/2 over a custom dialer.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	} else {
		transport.Proxy = nil
	}

	if p == ProfileGo {
		if opts.RootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return transport, nil
	}

	hello, err := clientHello(p)
	if err != nil {
		return nil, err
	}

	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host, RootCAs: opts.RootCAs}, hello.id)
		if hello.spec != nil {
			if err := uConn.ApplyPreset(hello.spec); err != nil {
				_ = tcpConn.Close()
				return nil, fmt.Errorf("context: utls preset failed: %w", err)
			}
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("context: utls handshake failed: %w", err)
		}

		return uConn, nil
	}

	return transport, nil
}

type helloConfig struct {
	id   utls.ClientHelloID
	spec *utls.ClientHelloSpec
}

func clientHello(p Profile) (helloConfig, error) {
	var id utls.ClientHelloID
	switch p {
	case ProfileChrome:
		id = utls.HelloChrome_Auto
	case ProfileFirefox:
		id = utls.HelloFirefox_Auto
	case ProfileSafari:
		id = utls.HelloIOS_Auto
	case ProfileRandom:
		return helloConfig{id: utls.HelloRandomizedNoALPN}, nil
	default:
		return helloConfig{}, fmt.Errorf("context: unknown profile %q", p)
	}

	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return helloConfig{}, fmt.Errorf("context: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return helloConfig{id: utls.HelloCustom, spec: &spec}, nil
}
