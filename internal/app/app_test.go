package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-orders/internal/config"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

func memoryConfig() config.Config {
	return config.Config{
		OrderStore:            config.StoreMemory,
		EventsBackend:         config.EventsNone,
		Currency:              "INR",
		RazorpayKeySecret:     "secret",
		FreeShippingThreshold: decimal.NewFromInt(999),
		ShippingFee:           decimal.NewFromInt(99),
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	var buf bytes.Buffer
	a, err := New(context.Background(), memoryConfig(), slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close(context.Background())

	if _, ok := a.Repo.(*orders.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", a.Repo)
	}
	if a.Idempotency != nil {
		t.Fatal("idempotency must stay off without a table")
	}
	if !bytes.Contains(buf.Bytes(), []byte("gateway payments disabled")) {
		t.Fatal("expected a warning for the missing gateway key")
	}

	o, err := a.Orders.CreateOrder(context.Background(), "u1", orders.CreateInput{
		ShippingAddress: orders.ShippingAddress{Name: "Asha", Street: "12 MG Road"},
		Items:           []orders.LineItem{{ProductID: "p1", Name: "Tee", Price: 500, Quantity: 1}},
		PaymentMethod:   orders.MethodCOD,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ShippingCost != orders.MoneyOf(99) || o.TotalAmount != orders.MoneyOf(599) {
		t.Fatalf("configured pricing not applied: %+v", o)
	}
}

func TestNew_KafkaPublisherClosed(t *testing.T) {
	cfg := memoryConfig()
	cfg.EventsBackend = config.EventsKafka
	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.KafkaTopic = "order-events"

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(a.closers) != 1 {
		t.Fatalf("expected the kafka writer to be registered for close, got %d closers", len(a.closers))
	}
	a.Close(context.Background())
	if a.closers != nil {
		t.Fatal("closers must be released")
	}
}
