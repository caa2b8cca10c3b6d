package web

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthToken_RoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token := generateAuthToken("ops|team", "key", now.Add(time.Hour))

	name, ok := parseAuthToken(token, "key", now)
	assert.True(t, ok)
	assert.Equal(t, "ops|team", name)
}

func TestAuthToken_Rejects(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	valid := generateAuthToken("ops", "key", now.Add(time.Hour))

	tests := []struct {
		name  string
		token string
		key   string
		at    time.Time
	}{
		{"wrong key", valid, "other", now},
		{"expired", valid, "key", now.Add(2 * time.Hour)},
		{"malformed", "garbage", "key", now},
		{"tampered", "b3Bz|" + valid[len(valid)-10:], "key", now},
		{"empty", "", "key", now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseAuthToken(tt.token, tt.key, tt.at)
			assert.False(t, ok)
		})
	}
}

func TestRequestToken_PrefersCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", requestToken(req))

	req.Header.Set("Cookie", authCookieName+"=from-cookie")
	assert.Equal(t, "from-cookie", requestToken(req))
}
