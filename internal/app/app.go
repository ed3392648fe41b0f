// Package app wires configuration into the stores, services and publishers
// shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/go-storefront-orders/internal/aws"
	"github.com/imrishuroy/go-storefront-orders/internal/config"
	"github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/mongostore"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/payments"
)

// App holds the wired components.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Repo        orders.Repository
	Orders      *orders.Service
	Payments    *payments.Reconciler
	Idempotency *idempotency.Store

	aws     *aws.AWSClients
	closers []func(context.Context) error
}

// New builds every component cfg asks for. Call Close when done.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	var catalog orders.PriceBook
	switch cfg.OrderStore {
	case config.StoreMemory:
		a.Repo = orders.NewMemoryStore()
	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		db := client.Database(cfg.MongoDatabase)
		store := mongostore.NewOrderStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		a.Repo = store
		catalog = mongostore.NewCatalog(db)
	default:
		clients, err := a.awsClients(ctx)
		if err != nil {
			return err
		}
		a.Repo = orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	}

	if cfg.IdempotencyTable != "" {
		clients, err := a.awsClients(ctx)
		if err != nil {
			return err
		}
		a.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	publisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}

	a.Orders = orders.NewService(a.Repo, orders.ServiceConfig{
		Pricing: orders.Pricing{
			TaxRate:               cfg.TaxRate,
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			ShippingFee:           cfg.ShippingFee,
			Tolerance:             orders.DefaultPricing().Tolerance,
		},
		Catalog:   catalog,
		Publisher: publisher,
		Logger:    a.Logger,
	})

	pcfg := payments.Config{
		Signer:    payments.NewSigner(cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret),
		Currency:  cfg.Currency,
		Publisher: publisher,
		Logger:    a.Logger,
	}
	if cfg.RazorpayKeyID != "" {
		pcfg.Gateway = payments.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, cfg.GatewayTimeout)
	} else {
		a.Logger.Warn("RAZORPAY_KEY_ID not set; gateway payments disabled")
	}
	if a.Idempotency != nil {
		pcfg.Ledger = a.Idempotency
	}
	if cfg.WebhookQueueURL != "" {
		clients, err := a.awsClients(ctx)
		if err != nil {
			return err
		}
		pcfg.Queue = aws.NewPublisher(clients.SQS, cfg.WebhookQueueURL)
	}
	if cfg.MetricsNamespace != "" {
		clients, err := a.awsClients(ctx)
		if err != nil {
			return err
		}
		pcfg.Metrics = aws.NewMetricsRecorder(clients.CloudWatch, cfg.MetricsNamespace, a.Logger)
	}
	a.Payments = payments.NewReconciler(a.Repo, pcfg)

	a.Logger.Info("components wired",
		"order_store", cfg.OrderStore,
		"events", cfg.EventsBackend,
		"idempotency", a.Idempotency != nil,
		"webhook_queue", cfg.WebhookQueueURL != "",
		"metrics", cfg.MetricsNamespace != "")
	return nil
}

func (a *App) publisher(ctx context.Context) (events.Publisher, error) {
	switch a.Config.EventsBackend {
	case config.EventsSQS:
		clients, err := a.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return events.NewSQSPublisher(aws.NewPublisher(clients.SQS, a.Config.EventsQueueURL)), nil
	case config.EventsKafka:
		p := events.NewKafkaPublisher(a.Config.KafkaBrokers, a.Config.KafkaTopic)
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		return p, nil
	default:
		return events.Nop{}, nil
	}
}

func (a *App) awsClients(ctx context.Context) (*aws.AWSClients, error) {
	if a.aws != nil {
		return a.aws, nil
	}
	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:   a.Config.AWSRegion,
		Endpoint: a.Config.AWSEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	a.aws = clients
	return clients, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
