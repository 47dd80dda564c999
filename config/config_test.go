package config

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"15m", 15 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{" 1h30m ", 90 * time.Minute, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "access-secret-access-secret-access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-refresh-secret-refresh-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v", cfg.RefreshTokenTTL)
	}
	if cfg.ConfirmationWindow != 30*24*time.Hour {
		t.Errorf("ConfirmationWindow = %v", cfg.ConfirmationWindow)
	}
	if cfg.MinWithdrawal.StringFixed(2) != "10.00" {
		t.Errorf("MinWithdrawal = %s", cfg.MinWithdrawal)
	}
	if cfg.PageLimitMax != 100 || cfg.SweepBatchSize != 500 {
		t.Errorf("PageLimitMax = %d, SweepBatchSize = %d", cfg.PageLimitMax, cfg.SweepBatchSize)
	}
	if cfg.BlacklistBackend != "memory" {
		t.Errorf("BlacklistBackend = %q", cfg.BlacklistBackend)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-refresh-secret-refresh-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestLoadConfigRedisRequiresURL(t *testing.T) {
	setSecrets(t)
	t.Setenv("BLACKLIST_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when redis backend has no URL")
	}
}

func TestLoadConfigKafkaBrokers(t *testing.T) {
	setSecrets(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestClickSecret(t *testing.T) {
	cfg := &Config{JWTSecret: "access-secret-access-secret-access-secret"}

	derived, err := cfg.ClickSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(derived) != 32 || derived == cfg.JWTSecret {
		t.Fatalf("derived click secret must be a separate 32-byte key, got %d bytes", len(derived))
	}
	again, _ := cfg.ClickSecret()
	if again != derived {
		t.Fatal("derived click secret is not stable")
	}

	cfg.ClickRefSecret = "dedicated-click-secret"
	if got, _ := cfg.ClickSecret(); got != "dedicated-click-secret" {
		t.Errorf("ClickSecret() = %q, want the dedicated secret", got)
	}
}
