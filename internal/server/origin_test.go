package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"HTTP://LocalHost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"https://chat.example.com/app"}, origin: "https://chat.example.com", want: true},
		{name: "different port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090", want: false},
		{name: "different scheme", allowed: []string{"http://localhost:8080"}, origin: "https://localhost:8080", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.example.com", want: true},
		{name: "missing origin", allowed: []string{"*"}, origin: "", want: false},
		{name: "malformed origin", allowed: []string{"*"}, origin: "not a url", want: false},
		{name: "invalid config ignored", allowed: []string{"localhost", " "}, origin: "http://localhost", want: false},
		{name: "nothing configured", allowed: nil, origin: "http://localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewOriginPolicy(tt.allowed, zerolog.Nop())
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.Allowed(r))
			assert.Equal(t, tt.want, policy.Check(r))
		})
	}
}
