package container

import (
	"context"
	"fmt"
	"net/http"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"organoid-qc/internal/analyzer"
	"organoid-qc/internal/config"
	"organoid-qc/internal/factory"
	"organoid-qc/internal/logger"
	"organoid-qc/internal/observer"
	"organoid-qc/internal/repository"
	"organoid-qc/internal/service"
	"organoid-qc/internal/storage"
	"organoid-qc/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config        *config.Config
	repository    *repository.SQLStore
	blobStore     storage.BlobStore
	scorer        analyzer.QualityScorer
	publisher     *observer.EventPublisher
	metrics       *observer.MetricsObserver
	amqpConn      *amqp.Connection
	amqpObserver  *observer.AMQPObserver
	redisClient   *redis.Client
	qcService     service.QCService
	reportService service.ReportService
	handler       http.Handler
}

// NewContainer creates a new dependency injection container. Optional
// integrations (AMQP, redis) are only connected when configured.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{config: cfg}

	repo, err := repository.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.repository = repo

	components := factory.NewComponentFactory(cfg.Storage)
	blobs, err := components.StorageFactory.CreateStorage(ctx, factory.StorageType(cfg.Storage.Backend))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	c.blobStore = blobs
	c.scorer = components.ScorerFactory.CreateScorer(cfg.ScoringWorkers)

	c.publisher = observer.NewEventPublisher()
	c.metrics = observer.NewMetricsObserver()
	c.publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	c.publisher.Subscribe(c.metrics)

	if cfg.Events.AMQPURL != "" {
		if err := c.connectAMQP(); err != nil {
			c.Close()
			return nil, err
		}
	}

	if cfg.Limit.RedisAddr != "" {
		c.redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Limit.RedisAddr,
			DB:   cfg.Limit.RedisDB,
		})
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
	}

	c.qcService = service.NewQCService(c.repository, c.blobStore, c.scorer, c.publisher)
	c.reportService = service.NewReportService(c.repository)

	deps := transport.Dependencies{
		QC:      c.qcService,
		Reports: c.reportService,
		Metrics: c.metrics,
		Scorer:  c.scorer,
	}
	if c.redisClient != nil {
		deps.RateLimit = c.redisClient
	}
	c.handler = transport.NewHandler(deps, cfg)

	logger.WithFields(map[string]interface{}{
		"db_driver":       cfg.DBDriver,
		"storage_backend": c.blobStore.Backend(),
		"scoring_workers": c.scorer.Stats().Workers,
		"amqp":            c.amqpObserver != nil,
		"rate_limit":      c.redisClient != nil,
	}).Info("Container initialized")

	return c, nil
}

func (c *Container) connectAMQP() error {
	conn, err := amqp.Dial(c.config.Events.AMQPURL)
	if err != nil {
		return fmt.Errorf("amqp connection failed: %w", err)
	}
	obs, err := observer.NewAMQPObserver(conn, c.config.Events.Exchange, c.config.Events.RoutingKey)
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp setup failed: %w", err)
	}
	c.amqpConn = conn
	c.amqpObserver = obs
	c.publisher.Subscribe(obs)
	return nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Close drains pending events and releases every connection.
func (c *Container) Close() error {
	if c.publisher != nil {
		c.publisher.Wait()
	}
	if c.scorer != nil {
		c.scorer.Close()
	}
	if c.amqpObserver != nil {
		c.amqpObserver.Close()
	}
	if c.amqpConn != nil {
		c.amqpConn.Close()
	}
	if c.redisClient != nil {
		c.redisClient.Close()
	}
	if c.repository != nil {
		return c.repository.Close()
	}
	return nil
}
