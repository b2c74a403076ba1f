package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/niktheblak/web-common/pkg/auth"
)

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})
	t.Run("Unauthenticated", func(t *testing.T) {
		t.Parallel()

		a := Authenticator(handler, auth.Static("relay_token_5e21c"))
		req := httptest.NewRequest("POST", "/relay/relay1_on", nil)
		w := httptest.NewRecorder()
		a.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})
	t.Run("Authenticated", func(t *testing.T) {
		t.Parallel()

		a := Authenticator(handler, auth.Static("relay_token_5e21c"))
		req := httptest.NewRequest("POST", "/relay/relay1_on", nil)
		req.Header.Set("Authorization", "Bearer relay_token_5e21c")
		w := httptest.NewRecorder()
		a.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})
	t.Run("Invalid token", func(t *testing.T) {
		t.Parallel()

		a := Authenticator(handler, auth.Static("relay_token_5e21c"))
		req := httptest.NewRequest("POST", "/relay/relay1_on", nil)
		req.Header.Set("Authorization", "Bearer other_token_7a3b1")
		w := httptest.NewRecorder()
		a.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Result().StatusCode)
	})
	t.Run("Always allow", func(t *testing.T) {
		t.Parallel()

		a := Authenticator(handler, auth.AlwaysAllow())
		req := httptest.NewRequest("PUT", "/notifications", nil)
		w := httptest.NewRecorder()
		a.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1234")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-1234", seen)
	assert.Equal(t, "req-1234", w.Header().Get(RequestIDHeader))
}
