package config

import (
	"os"
	"testing"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	setEnv(t, "DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is empty")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/lumera")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("default port = %s, want 8000", cfg.Port)
	}
	if cfg.UploadURLTTL != 900 {
		t.Errorf("default upload ttl = %d, want 900", cfg.UploadURLTTL)
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
}

func TestResolvedAuthMode(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Env: "development"}, "development"},
		{Config{Env: "production", AuthIssuer: "https://auth.example.com"}, "external"},
		{Config{Env: "production"}, "standalone"},
		{Config{Env: "production", AuthMode: "external"}, "external"},
	}
	for _, tc := range cases {
		if got := tc.cfg.ResolvedAuthMode(); got != tc.want {
			t.Errorf("ResolvedAuthMode(%+v) = %s, want %s", tc.cfg, got, tc.want)
		}
	}
}

func TestValidate_StandaloneNeedsKey(t *testing.T) {
	cfg := Config{Env: "production", UploadURLTTL: 900, S3Bucket: "lumera-files"}
	if err := cfg.Validate(); err == nil {
		t.Error("standalone mode without signing key should fail validation")
	}

	cfg.AuthSigningKey = "zz"
	if err := cfg.Validate(); err == nil {
		t.Error("non-hex signing key should fail validation")
	}

	cfg.AuthSigningKey = "00112233445566778899aabbccddeeff"
	if err := cfg.Validate(); err == nil {
		t.Error("16-byte signing key should fail validation")
	}

	cfg.AuthSigningKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid standalone config rejected: %v", err)
	}
}

func TestValidate_ProductionNeedsBucket(t *testing.T) {
	cfg := Config{
		Env:            "production",
		UploadURLTTL:   900,
		AuthSigningKey: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("production without S3_BUCKET should fail validation")
	}
}
