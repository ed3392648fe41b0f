// Package config reads service settings from the environment, after loading an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store backends.
const (
	StoreDynamoDB = "dynamodb"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Event backends.
const (
	EventsNone  = "none"
	EventsSQS   = "sqs"
	EventsKafka = "kafka"
)

var ErrMissingSetting = errors.New("missing required setting")

// Config holds every setting the binaries read.
type Config struct {
	RunLocal bool
	HTTPAddr string
	LogLevel string

	JWTSecret string

	OrderStore       string
	OrdersTable      string
	IdempotencyTable string
	IdempotencyTTL   time.Duration
	MongoURI         string
	MongoDatabase    string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration
	Currency              string

	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal

	EventsBackend   string
	EventsQueueURL  string
	KafkaBrokers    []string
	KafkaTopic      string
	WebhookQueueURL string

	MetricsNamespace string

	AWSRegion   string
	AWSEndpoint string
}

// Load reads .env (when present) and the environment. JWT_SECRET is required
// for the API; worker callers pass requireJWT=false.
func Load(requireJWT bool) (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		RunLocal: getBool("RUN_LOCAL", &errs),
		HTTPAddr: getString("HTTP_ADDR", ":8080"),
		LogLevel: getString("LOG_LEVEL", "info"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		OrderStore:       strings.ToLower(getString("ORDER_STORE", StoreDynamoDB)),
		OrdersTable:      getString("ORDERS_TABLE", "orders"),
		IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
		IdempotencyTTL:   getDuration("IDEMPOTENCY_TTL", 48*time.Hour, &errs),
		MongoURI:         getString("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getString("MONGODB_DATABASE", "storefront"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       os.Getenv("RAZORPAY_BASE_URL"),
		GatewayTimeout:        getDuration("GATEWAY_TIMEOUT", 10*time.Second, &errs),
		Currency:              getString("CURRENCY", "INR"),

		TaxRate:               getDecimal("TAX_RATE", "0", &errs),
		FreeShippingThreshold: getDecimal("FREE_SHIPPING_THRESHOLD", "999", &errs),
		ShippingFee:           getDecimal("SHIPPING_FEE", "99", &errs),

		EventsBackend:   strings.ToLower(getString("EVENTS_BACKEND", EventsNone)),
		EventsQueueURL:  os.Getenv("EVENTS_QUEUE_URL"),
		KafkaBrokers:    getList("KAFKA_BROKERS"),
		KafkaTopic:      getString("KAFKA_TOPIC", "order-events"),
		WebhookQueueURL: os.Getenv("WEBHOOK_QUEUE_URL"),

		MetricsNamespace: os.Getenv("METRICS_NAMESPACE"),

		AWSRegion:   getString("AWS_REGION", "us-east-1"),
		AWSEndpoint: os.Getenv("AWS_ENDPOINT_OVERRIDE"),
	}

	if requireJWT && cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%w: JWT_SECRET", ErrMissingSetting))
	}
	switch cfg.OrderStore {
	case StoreDynamoDB, StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("ORDER_STORE: unknown backend %q", cfg.OrderStore))
	}
	switch cfg.EventsBackend {
	case EventsNone:
	case EventsSQS:
		if cfg.EventsQueueURL == "" {
			errs = append(errs, fmt.Errorf("%w: EVENTS_QUEUE_URL for sqs events", ErrMissingSetting))
		}
	case EventsKafka:
		if len(cfg.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("%w: KAFKA_BROKERS for kafka events", ErrMissingSetting))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND: unknown backend %q", cfg.EventsBackend))
	}

	return cfg, errors.Join(errs...)
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBool(key string, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getDecimal(key, def string, errs *[]error) decimal.Decimal {
	v := getString(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return decimal.RequireFromString(def)
	}
	if d.IsNegative() {
		*errs = append(*errs, fmt.Errorf("%s: must not be negative", key))
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
