package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "STORE_DRIVER", "DATABASE_URL",
		"MONGO_URI", "MONGO_DATABASE", "SQLITE_PATH", "S3_BUCKET_NAME", "S3_ENDPOINT",
		"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PUBLIC_BASE_URL", "PUSH_TIMEOUT",
		"CONNECTION_REQUEST_DAILY_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("driver = %q, want memory", cfg.StoreDriver)
	}
	if cfg.PushTimeout != 2*time.Second {
		t.Fatalf("push timeout = %s", cfg.PushTimeout)
	}
	if cfg.MediaEnabled() {
		t.Fatal("media should be disabled without a bucket")
	}
	if cfg.JWTSecret == "" {
		t.Fatal("development should fall back to a default secret")
	}
}

func TestLoadConfigProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://x")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Fatalf("driver = %q, want postgres", cfg.StoreDriver)
	}
}

func TestLoadConfigRejectsMemoryInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected memory driver to be rejected")
	}
}

func TestLoadConfigBucketRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET_NAME", "media")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without S3_ENDPOINT")
	}

	t.Setenv("S3_ENDPOINT", "https://s3.example.com")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example.com/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.S3PublicBaseURL != "https://cdn.example.com" {
		t.Fatalf("public base = %q", cfg.S3PublicBaseURL)
	}
}

func TestLoadConfigParsesLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CONNECTION_REQUEST_DAILY_LIMIT", "20")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.ConnectionRequestDailyLimit != 20 {
		t.Fatalf("limit = %d", cfg.ConnectionRequestDailyLimit)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("PORT")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=9090\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PORT") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Port)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
