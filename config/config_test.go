package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("PAYMENT_PROVIDER", "stub")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_x")
	t.Setenv("CRON_SECRET", "c")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "memory" || cfg.Payment.Provider != "stub" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Payment.WebhookSecret() != "sk_test_x" {
		t.Errorf("webhook secret = %q", cfg.Payment.WebhookSecret())
	}
	if cfg.Cron.ExpiryWindow != 24*time.Hour || cfg.Cron.BatchSize != 500 {
		t.Errorf("cron defaults = %+v", cfg.Cron)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "reservation-events" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "database:\n  driver: memory\npayment:\n  provider: stub\n  currency: GHS\ncron:\n  expiry_window: 12h\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payment.Currency != "GHS" || cfg.Cron.ExpiryWindow != 12*time.Hour {
		t.Errorf("file values not applied: %+v %+v", cfg.Payment, cfg.Cron)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_DRIVER", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
