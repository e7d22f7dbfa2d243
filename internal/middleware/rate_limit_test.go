package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_BlocksAfterLimit(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})(okHandler())

	assert.Equal(t, http.StatusOK, send(h, "192.168.1.1:8080", "").Code)
	assert.Equal(t, http.StatusOK, send(h, "192.168.1.1:8080", "").Code)

	w := send(h, "192.168.1.1:8080", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, send(h, "192.168.1.2:8080", "").Code)
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	assert.Equal(t, http.StatusOK, send(h, "203.0.113.9:4000", "10.0.0.1").Code)
	// a new header value from an untrusted peer does not buy a fresh bucket
	assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.9:4000", "10.0.0.2").Code)
}

func TestRateLimitByIP_TrustedProxyKeysOnClient(t *testing.T) {
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	h := RateLimitByIP(DefaultAuthRateLimit(ipConfig))(okHandler())

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, send(h, "10.0.0.5:443", "198.51.100.7").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.5:443", "198.51.100.7").Code)
	assert.Equal(t, http.StatusOK, send(h, "10.0.0.5:443", "198.51.100.8").Code)
}
