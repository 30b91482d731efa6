package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":4001" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":4001")
	}
	if cfg.SessionExpiry != 2*time.Hour {
		t.Fatalf("SessionExpiry = %v, want %v", cfg.SessionExpiry, 2*time.Hour)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("SweepInterval = %v, want %v", cfg.SweepInterval, 30*time.Second)
	}
	if cfg.CompletionDelay != 60*time.Second {
		t.Fatalf("CompletionDelay = %v, want %v", cfg.CompletionDelay, 60*time.Second)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DUOMINT_BIND_ADDR", ":9999")
	t.Setenv("DUOMINT_SESSION_EXPIRY", "45m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9999")
	}
	if cfg.SessionExpiry != 45*time.Minute {
		t.Fatalf("SessionExpiry = %v, want %v", cfg.SessionExpiry, 45*time.Minute)
	}
}

func TestLoadRejectsTinyExpiry(t *testing.T) {
	t.Setenv("DUOMINT_SESSION_EXPIRY", "5s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted a sub-minute expiry")
	}
}
