package main

import (
	"testing"
	"time"

	"tokopos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", AllowedOrigin: "http://127.0.0.1:3000"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "kasir.local"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "https://kasir.tokopos.id"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestJanitorInterval(t *testing.T) {
	if got := janitorInterval(time.Hour); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
	if got := janitorInterval(20 * time.Second); got != 10*time.Second {
		t.Fatalf("expected floor of 10s, got %s", got)
	}
}
