package useragent

import (
	"strings"
	"sync/atomic"
)

// Default is the desktop browser User-Agent sent when no override is configured.
// Search engines serve the full desktop result markup to it.
const Default = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Pool hands out User-Agents round-robin. A pool built without overrides
// always returns Default.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. Blank entries are dropped; if nothing
// is left the pool falls back to Default.
func NewPool(uas []string) *Pool {
	copied := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua = strings.TrimSpace(ua); ua != "" {
			copied = append(copied, ua)
		}
	}
	if len(copied) == 0 {
		copied = append(copied, Default)
	}
	return &Pool{uas: copied}
}

// Next returns the next User-Agent in the pool. It is safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// All returns a copy of the configured User-Agents.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
