package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.5:51234", nil, "192.168.1.5"},
		{"ipv6 remote addr", "[::1]:51234", nil, "::1"},
		{"real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=-3", 50},
		{"?limit=abc", 50},
		{"?limit=1000", 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/history"+tt.query, nil)
			assert.Equal(t, tt.want, parseLimit(r, 50, 100))
		})
	}
}
