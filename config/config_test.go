package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
db:
  url: postgres://file-user@localhost/gigflow
server:
  addr: ":9090"
fees:
  platform_rate: "0.15"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env-user@localhost/gigflow")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.URL != "postgres://env-user@localhost/gigflow" {
		t.Errorf("DB.URL = %q, env override lost", cfg.DB.URL)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("JWT.Secret = %q", cfg.JWT.Secret)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, file value lost", cfg.Server.Addr)
	}
	if cfg.Fees.PlatformRate != "0.15" {
		t.Errorf("Fees.PlatformRate = %q", cfg.Fees.PlatformRate)
	}
	if cfg.AMQP.Exchange != "events" {
		t.Errorf("AMQP.Exchange = %q, default lost", cfg.AMQP.Exchange)
	}
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-only@localhost/gigflow")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.URL != "postgres://env-only@localhost/gigflow" {
		t.Errorf("DB.URL = %q", cfg.DB.URL)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatal("Load without database url succeeded")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("db: [broken"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load on malformed yaml succeeded")
	}
}
