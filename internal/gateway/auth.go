package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// webhookAuthorized checks the shared webhook secret, accepted either
// as the x-bot-secret header or a ?token= query parameter (some
// gateway UIs cannot set custom headers).
func webhookAuthorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	provided := r.Header.Get("x-bot-secret")
	if provided == "" {
		provided = r.URL.Query().Get("token")
	}
	return safeEqual(provided, secret)
}

// adminAuthorized checks the admin token, as a Bearer token or the
// x-admin-token header. ?token= is accepted for the websocket feed.
func adminAuthorized(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if provided == "" || provided == r.Header.Get("Authorization") {
		provided = r.Header.Get("x-admin-token")
	}
	if provided == "" {
		provided = r.URL.Query().Get("token")
	}
	return safeEqual(provided, token)
}

// safeEqual compares secrets in constant time, without an early
// return on length mismatch.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
