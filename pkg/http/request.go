package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
)

// IPConfig lists the proxies whose forwarding headers are believed.
// Client IPs key the login rate limit and are stored with every attempt, so
// forwarded headers from anyone else are ignored.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges

	once     sync.Once
	prefixes []netip.Prefix
}

func (c *IPConfig) trusted(addr netip.Addr) bool {
	c.once.Do(func() {
		for _, cidr := range c.TrustedProxies {
			if p, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
				c.prefixes = append(c.prefixes, p.Masked())
			}
		}
	})

	addr = addr.Unmap()
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address of the client that sent the request.
// When the peer is a trusted proxy, X-Forwarded-For is walked from the right
// and the first hop that is not itself a trusted proxy wins; X-Real-IP is the
// fallback. Otherwise the peer address is used as is.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := remoteAddr(r)

	peer, err := netip.ParseAddr(remote)
	if config == nil || err != nil || !config.trusted(peer) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				continue
			}
			if !config.trusted(hop) {
				return hop.String()
			}
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.String()
	}

	return remote
}

// remoteAddr strips the port from RemoteAddr
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
