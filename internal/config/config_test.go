package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APPROVAL_LINK_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("HTTP_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Links.MaxAge != 14*24*time.Hour {
		t.Errorf("Links.MaxAge = %v, want 336h", cfg.Links.MaxAge)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APPROVAL_LINK_SECRET="+testSecret+"\nSERVICE_NAME=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set, so make sure
	// the ones under test are absent.
	os.Unsetenv("SERVICE_NAME")
	t.Cleanup(func() {
		os.Unsetenv("SERVICE_NAME")
		os.Unsetenv("APPROVAL_LINK_SECRET")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "from-dotenv" {
		t.Errorf("Service.Name = %q, want from-dotenv", cfg.Service.Name)
	}
}

func TestValidateRejectsShortSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APPROVAL_LINK_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret, got nil")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APPROVAL_LINK_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver, got nil")
	}
}
