package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.MaxBackups != 10 {
		t.Errorf("MaxBackups = %d, want 10", cfg.MaxBackups)
	}
	if cfg.RefreshEvery != 5*time.Second {
		t.Errorf("RefreshEvery = %v, want 5s", cfg.RefreshEvery)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("MAX_BACKUPS", "3")
	t.Setenv("REFRESH_INTERVAL", "10s")
	t.Setenv("ADMIN_PASSWORD", "hunter2")

	cfg := Load()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", cfg.MaxBackups)
	}
	if cfg.RefreshEvery != 10*time.Second {
		t.Errorf("RefreshEvery = %v, want 10s", cfg.RefreshEvery)
	}
	if cfg.AdminPassword != "hunter2" {
		t.Errorf("AdminPassword = %q, want hunter2", cfg.AdminPassword)
	}
}

func TestLoad_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("MAX_BACKUPS", "zero")
	t.Setenv("REFRESH_INTERVAL", "soon")

	cfg := Load()
	if cfg.MaxBackups != 10 {
		t.Errorf("invalid MAX_BACKUPS should keep default, got %d", cfg.MaxBackups)
	}
	if cfg.RefreshEvery != 5*time.Second {
		t.Errorf("invalid REFRESH_INTERVAL should keep default, got %v", cfg.RefreshEvery)
	}
}
