package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/stretchr/testify/assert"
)

// Forwarded headers feed lockout audit records and the per-IP rate limit,
// so they may only be honored from configured proxies.
func TestExtractClientIP(t *testing.T) {
	proxies := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "fd00::/8"}}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		config     *pkghttp.IPConfig
		want       string
	}{
		{"direct client ignores headers", "203.0.113.10:54321", "1.2.3.4, 5.6.7.8", "192.168.1.1", proxies, "203.0.113.10"},
		{"trusted proxy uses first forwarded ip", "10.0.0.5:443", "198.51.100.7, 10.0.0.5", "", proxies, "198.51.100.7"},
		{"trusted proxy skips invalid entries", "10.0.0.5:443", "garbage, 198.51.100.8", "", proxies, "198.51.100.8"},
		{"client supplied prefix is not believed", "10.0.0.5:443", "1.1.1.1, 198.51.100.7", "", proxies, "198.51.100.7"},
		{"chain of trusted proxies", "10.0.0.5:443", "198.51.100.7, 172.16.0.2, 10.0.0.9", "", proxies, "198.51.100.7"},
		{"all hops trusted falls back to peer", "10.0.0.5:443", "10.0.0.7", "", proxies, "10.0.0.5"},
		{"trusted proxy falls back to x-real-ip", "172.16.4.4:443", "", "198.51.100.9", proxies, "198.51.100.9"},
		{"ipv6 trusted proxy", "[fd00::1]:443", "2001:db8::7", "", proxies, "2001:db8::7"},
		{"nil config", "203.0.113.10:1", "1.2.3.4", "", nil, "203.0.113.10"},
		{"empty config", "10.0.0.5:1", "1.2.3.4", "", &pkghttp.IPConfig{}, "10.0.0.5"},
		{"invalid cidr ignored", "10.0.0.5:1", "1.2.3.4", "", &pkghttp.IPConfig{TrustedProxies: []string{"not-a-cidr"}}, "10.0.0.5"},
		{"localhost is not implicitly trusted", "127.0.0.1:1", "1.2.3.4", "", proxies, "127.0.0.1"},
		{"remote addr without port", "203.0.113.11", "", "", proxies, "203.0.113.11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}
