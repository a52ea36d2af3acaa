package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/importbatch"
	"github.com/Ramsey-B/clover/internal/repositories/testcase"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/importer"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the command that runs the HTTP API and the Kafka intake
func NewServeCommand(rootOpts *RootOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, version)
		},
	}
}

// server holds the components started by runServe
type server struct {
	cfg     *config.Config
	logger  ectologger.Logger
	checker *health.Checker

	db         *database.DatabaseInstance
	redis      *redis.Client
	graph      *graph.Client
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	service    *importer.Service
	httpServer *http.Server
}

func runServe(ctx context.Context, cfg *config.Config, version string) error {
	logger, flush, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	defer flush()

	shutdownTracing, err := tracing.Init(ctx, cfg.TracingOptions())
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	s := &server{cfg: cfg, logger: logger, checker: health.NewChecker(version)}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	for _, dep := range s.dependencies() {
		boot.AddDependency(dep)
	}
	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start dependencies")
		_ = boot.Stop(context.Background())
		return err
	}
	s.checker.SetReady(true)

	logger.WithFields(map[string]any{
		"port":    cfg.Port,
		"version": version,
	}).Info("Clover is running")

	<-ctx.Done()
	logger.Info("Shutting down")
	s.checker.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return boot.Stop(stopCtx)
}

func (s *server) dependencies() []startup.StartupDependency {
	deps := []startup.StartupDependency{
		&startup.Dependency{Name: "database", StartFunc: s.startDatabase, StopFunc: s.stopDatabase},
		&startup.Dependency{Name: "redis", StartFunc: s.startRedis, StopFunc: s.stopRedis},
	}
	importerRequires := []string{"database", "redis"}

	if s.cfg.Graph.Enabled {
		deps = append(deps, &startup.Dependency{Name: "graph", StartFunc: s.startGraph, StopFunc: s.stopGraph})
		importerRequires = append(importerRequires, "graph")
	}
	if s.cfg.Kafka.OutputTopic != "" {
		deps = append(deps, &startup.Dependency{Name: "kafka-producer", StartFunc: s.startProducer, StopFunc: s.stopProducer})
		importerRequires = append(importerRequires, "kafka-producer")
	}

	deps = append(deps, &startup.Dependency{Name: "importer", Requires: importerRequires, StartFunc: s.startImporter})
	if s.cfg.Kafka.ConsumerEnabled {
		deps = append(deps, &startup.Dependency{Name: "kafka-consumer", Requires: []string{"importer"}, StartFunc: s.startConsumer, StopFunc: s.stopConsumer})
	}
	deps = append(deps, &startup.Dependency{Name: "http", Requires: []string{"importer"}, StartFunc: s.startHTTP, StopFunc: s.stopHTTP})

	return deps
}

func (s *server) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, s.cfg.Database.Driver, s.cfg.Database.DSN(), database.PoolConfig{
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime(),
	}, s.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(s.logger, database.MigrationConfig{
		MigrationFolderPath: s.cfg.Database.MigrationFolderPath,
		DatabaseName:        s.cfg.Database.Name,
		Version:             uint(s.cfg.Database.MigrationVersion),
		Force:               s.cfg.Database.MigrationForce,
		AutoRollback:        s.cfg.Database.MigrationAutoRollback,
	})
	if err := migrations.Migrate(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.checker.Register("database", true, db.PingContext)
	return nil
}

func (s *server) stopDatabase(context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *server) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     s.cfg.Redis.Host,
		Port:     s.cfg.Redis.Port,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	}, s.logger)
	if err != nil {
		return err
	}
	s.redis = client
	s.checker.Register("redis", true, client.Ping)
	return nil
}

func (s *server) stopRedis(context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func (s *server) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     s.cfg.Graph.Host,
		Port:     s.cfg.Graph.Port,
		Username: s.cfg.Graph.User,
		Password: s.cfg.Graph.Password,
	}, s.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("failed to reach graph database: %w", err)
	}
	s.graph = client
	s.checker.Register("graph", false, client.VerifyConnectivity)
	return nil
}

func (s *server) stopGraph(ctx context.Context) error {
	if s.graph == nil {
		return nil
	}
	return s.graph.Close(ctx)
}

func (s *server) startProducer(context.Context) error {
	s.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      s.cfg.Kafka.Brokers,
		Topic:        s.cfg.Kafka.OutputTopic,
		BatchSize:    s.cfg.Kafka.BatchSize,
		BatchTimeout: time.Duration(s.cfg.Kafka.BatchTimeoutMs) * time.Millisecond,
		RequiredAcks: s.cfg.Kafka.RequiredAcks,
		Compression:  s.cfg.Kafka.Compression,
	}, s.logger)
	return nil
}

func (s *server) stopProducer(context.Context) error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Close()
}

func (s *server) startImporter(context.Context) error {
	pipeline, err := dedupe.NewPipeline(s.cfg.Dedupe, s.logger)
	if err != nil {
		return err
	}

	deps := importer.Dependencies{
		Pipeline: pipeline,
		Records:  testcase.NewRepository(s.db, s.logger),
		Batches:  importbatch.NewRepository(s.db, s.logger),
		Staging:  redis.NewStager(s.redis, "", s.cfg.Import.StagingTTL()),
		Locker:   redis.NewLocker(s.redis, ""),
		Tx:       s.db,
	}
	// Optional collaborators stay nil interfaces when disabled
	if s.producer != nil {
		deps.Emitter = events.NewEmitter(s.producer, s.logger)
	}
	if s.graph != nil {
		deps.Provenance = graph.NewProvenanceWriter(s.graph, s.logger)
	}

	s.service = importer.NewService(deps, importer.Config{
		DefaultMode:   models.Mode(s.cfg.Import.DefaultMode),
		MaxBatchSize:  s.cfg.Import.MaxBatchSize,
		ReviewLockTTL: s.cfg.Import.ReviewLockTTL(),
	}, s.logger)
	return nil
}

func (s *server) startConsumer(ctx context.Context) error {
	s.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       s.cfg.Kafka.Brokers,
		Topic:         s.cfg.Kafka.InputTopic,
		ConsumerGroup: s.cfg.Kafka.ConsumerGroup,
	}, s.logger, s.service.HandleImportRequest)

	s.checker.Register("kafka-consumer", false, func(context.Context) error {
		if !s.consumer.Health() {
			return errors.New("consumer is not running")
		}
		return nil
	})
	// The consume loop outlives the startup context
	return s.consumer.Start(context.WithoutCancel(ctx))
}

func (s *server) stopConsumer(context.Context) error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Stop()
}

func (s *server) startHTTP(context.Context) error {
	e := routes.New(routes.Options{
		ServiceName:  s.cfg.AppName,
		BodyLimit:    s.cfg.HTTP.BodyLimit,
		AllowOrigins: s.cfg.HTTP.AllowOrigins,
		AllowMethods: s.cfg.HTTP.AllowMethods,
	}, s.logger, s.service, s.checker)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(s.cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.HTTP.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.HTTP.IdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.HTTP.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    s.cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	return nil
}

func (s *server) stopHTTP(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
