package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	authCookieName = "auth"
	authTokenTTL   = 12 * time.Hour
)

// generateAuthToken signs username and an expiry with secretKey. The token is
// base64(username|expiry) + "|" + base64(hmac).
func generateAuthToken(username, secretKey string, expires time.Time) string {
	payload := username + "|" + strconv.FormatInt(expires.Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "|" +
		base64.RawURLEncoding.EncodeToString(sign(payload, secretKey))
}

// parseAuthToken returns the operator name carried by a valid, unexpired token.
func parseAuthToken(token, secretKey string, now time.Time) (string, bool) {
	parts := strings.Split(token, "|")
	if len(parts) != 2 {
		return "", false
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	expectedMac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	payload := string(payloadBytes)
	if !hmac.Equal(expectedMac, sign(payload, secretKey)) {
		return "", false
	}

	i := strings.LastIndex(payload, "|")
	if i <= 0 {
		return "", false
	}
	expires, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil || !now.Before(time.Unix(expires, 0)) {
		return "", false
	}
	return payload[:i], true
}

func sign(payload, secretKey string) []byte {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// requestToken reads the operator token from the auth cookie or a bearer header.
func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(authCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
