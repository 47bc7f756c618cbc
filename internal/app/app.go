// Package app connects the configured backends and assembles the ledger
// services shared by the HTTP server and the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/congo-pay/accountledger/internal/account"
	"github.com/congo-pay/accountledger/internal/client"
	"github.com/congo-pay/accountledger/internal/config"
	"github.com/congo-pay/accountledger/internal/events"
	"github.com/congo-pay/accountledger/internal/infra"
	"github.com/congo-pay/accountledger/internal/ledger"
	"github.com/congo-pay/accountledger/internal/statement"
)

// Backends holds the external connections opened for a configuration. Fields
// are nil when the configuration does not use them.
type Backends struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Dynamo *dynamodb.Client
	Kafka  *kafka.Writer
}

// Connect opens every backend the configuration asks for and applies the
// Postgres schema.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	fail := func(err error) (*Backends, error) {
		if cerr := b.Close(); cerr != nil {
			logger.Warn("close backends", slog.Any("error", cerr))
		}
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PostgresOptions{
			AppName:  cfg.AppName,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			return fail(err)
		}
		b.DB = db
		if err := infra.Migrate(ctx, db); err != nil {
			return fail(err)
		}
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return fail(err)
		}
		b.Cache = cache
	}

	if cfg.StoreBackend == config.StoreDynamoDB {
		dyn, err := infra.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return fail(err)
		}
		b.Dynamo = dyn
	}

	if cfg.EventsBackend == config.EventsKafka {
		w, err := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return fail(err)
		}
		b.Kafka = w
	}

	return b, nil
}

// Close releases every open backend.
func (b *Backends) Close() error {
	var errs []error
	if b.Kafka != nil {
		errs = append(errs, b.Kafka.Close())
	}
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	if b.DB != nil {
		b.DB.Close()
	}
	return errors.Join(errs...)
}

// Services are the assembled domain services.
type Services struct {
	Engine     *ledger.Engine
	Accounts   *account.Service
	Clients    *client.Service
	Statements *statement.Builder
}

// Build wires repositories, the movement store and the event publisher
// selected by cfg on top of the connected backends.
func Build(cfg config.Config, b *Backends, logger *slog.Logger) (*Services, error) {
	var (
		accountRepo account.Repository
		clientRepo  client.Repository
	)
	if b.DB != nil {
		accountRepo = account.NewPostgresRepository(b.DB)
		clientRepo = client.NewPostgresRepository(b.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
		clientRepo = client.NewMemoryRepository()
	}

	store, err := movementStore(cfg, b)
	if err != nil {
		return nil, err
	}
	publisher, err := publisher(cfg, b, logger)
	if err != nil {
		return nil, err
	}

	accounts := account.NewDirectory(accountRepo)
	clients := client.NewDirectory(clientRepo)
	engine := ledger.NewEngine(store, accounts, ledger.EngineConfig{
		MaxRetries: cfg.WriteRetries,
		Clients:    clients,
		Publisher:  publisher,
		Logger:     logger,
	})
	accountSvc := account.NewService(accountRepo, clients, engine)

	return &Services{
		Engine:     engine,
		Accounts:   accountSvc,
		Clients:    client.NewService(clientRepo, accountSvc),
		Statements: statement.NewBuilder(accounts, clients, engine),
	}, nil
}

func movementStore(cfg config.Config, b *Backends) (ledger.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("%s store requires a database connection", config.StorePostgres)
		}
		return ledger.NewPostgresStore(b.DB), nil
	case config.StoreDynamoDB:
		if b.Dynamo == nil {
			return nil, fmt.Errorf("%s store requires a dynamodb client", config.StoreDynamoDB)
		}
		return ledger.NewDynamoStore(b.Dynamo, cfg.DynamoTable), nil
	default:
		return ledger.NewInMemory(), nil
	}
}

func publisher(cfg config.Config, b *Backends, logger *slog.Logger) (ledger.Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsRedis:
		if b.Cache == nil {
			return nil, fmt.Errorf("%s events require a redis connection", config.EventsRedis)
		}
		return events.NewRedisPublisher(b.Cache, cfg.RedisChannel), nil
	case config.EventsKafka:
		if b.Kafka == nil {
			return nil, fmt.Errorf("%s events require a kafka writer", config.EventsKafka)
		}
		return events.NewKafkaPublisher(b.Kafka), nil
	default:
		return events.NewLogPublisher(logger), nil
	}
}
