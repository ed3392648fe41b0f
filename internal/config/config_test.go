package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	cfg, err := Load(true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OrderStore != StoreDynamoDB || cfg.EventsBackend != EventsNone {
		t.Fatalf("unexpected backends %q %q", cfg.OrderStore, cfg.EventsBackend)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Currency != "INR" || cfg.GatewayTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.FreeShippingThreshold.String() != "999" || cfg.ShippingFee.String() != "99" || !cfg.TaxRate.IsZero() {
		t.Fatalf("unexpected pricing defaults")
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(true); !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}
	if _, err := Load(false); err != nil {
		t.Fatalf("worker config must not need a JWT secret: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("ORDER_STORE", "Mongo")
	t.Setenv("EVENTS_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TAX_RATE", "0.18")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	cfg, err := Load(true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RunLocal || cfg.OrderStore != StoreMongo || cfg.GatewayTimeout != 3*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.TaxRate.String() != "0.18" {
		t.Fatalf("unexpected tax rate %s", cfg.TaxRate)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"store":    {"ORDER_STORE", "postgres"},
		"events":   {"EVENTS_BACKEND", "rabbit"},
		"duration": {"IDEMPOTENCY_TTL", "two days"},
		"decimal":  {"SHIPPING_FEE", "ninety"},
		"negative": {"TAX_RATE", "-0.1"},
		"bool":     {"RUN_LOCAL", "yes please"},
		"sqs":      {"EVENTS_BACKEND", "sqs"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(true); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
