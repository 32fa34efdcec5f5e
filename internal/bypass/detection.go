package bypass

import (
	"net/http"
	"strings"
)

// DefaultBlockPhrases are the verbatim sentences Google prints on its
// "unusual traffic" interstitial. They are specific enough that a regular
// result page never contains them.
var DefaultBlockPhrases = []string{
	"Onze systemen hebben ongebruikelijk verkeer van uw computernetwerk vastgesteld.",
	"Our systems have detected unusual traffic from your computer network.",
}

// SourceGoogle labels detections made by the phrase filter.
const SourceGoogle = "Google"

// Response is the part of an HTTP exchange the detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       string
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// LooksBlocked reports whether html contains any of the block phrases.
func LooksBlocked(html string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(html, p) {
			return true
		}
	}
	return false
}

// PhraseDetector wraps LooksBlocked as a Detector. It fires regardless of the
// status code.
func PhraseDetector(phrases []string) Detector {
	return func(res *Response) (bool, string) {
		if LooksBlocked(res.Body, phrases) {
			return true, SourceGoogle
		}
		return false, ""
	}
}

// DefaultDetectors returns the phrase filter for the given phrases followed by
// the vendor signatures. An empty phrase list selects DefaultBlockPhrases.
func DefaultDetectors(phrases []string) []Detector {
	if len(phrases) == 0 {
		phrases = DefaultBlockPhrases
	}
	detectors := []Detector{PhraseDetector(phrases)}
	for _, sig := range signatures {
		detectors = append(detectors, sig.detect)
	}
	return detectors
}

// Analyze runs the response through the detectors and returns the first hit.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

// signature describes a vendor block page. It only applies to the listed
// status codes; any single header or body marker is enough.
type signature struct {
	source   string
	statuses []int
	// header name -> lowercase substring of its value ("" means presence)
	headers map[string]string
	body    []string
}

var signatures = []signature{
	{
		// Rate-limited clients are redirected to /sorry/index and get a 429.
		source:   "GoogleSorry",
		statuses: []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
		body:     []string{"/sorry/index", "g-recaptcha", "captcha-form"},
	},
	{
		source:   "Cloudflare",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		headers:  map[string]string{"Server": "cloudflare"},
		body:     []string{"cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare"},
	},
	{
		source:   "DataDome",
		statuses: []int{http.StatusForbidden},
		headers:  map[string]string{"Server": "datadome", "X-DataDome": ""},
		body:     []string{"geo.captcha-delivery.com"},
	},
}

func (s signature) detect(res *Response) (bool, string) {
	if !s.appliesTo(res.StatusCode) {
		return false, ""
	}
	for name, want := range s.headers {
		vals, ok := res.Headers[http.CanonicalHeaderKey(name)]
		if !ok || len(vals) == 0 {
			continue
		}
		if want == "" || strings.Contains(strings.ToLower(vals[0]), want) {
			return true, s.source
		}
	}
	for _, marker := range s.body {
		if strings.Contains(res.Body, marker) {
			return true, s.source
		}
	}
	return false, ""
}

func (s signature) appliesTo(status int) bool {
	for _, st := range s.statuses {
		if st == status {
			return true
		}
	}
	return false
}
