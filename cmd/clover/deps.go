package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scoutalgo/clover/config"
	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/events"
	"github.com/scoutalgo/clover/pkg/kafka"
	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/merging"
	"github.com/scoutalgo/clover/pkg/oracle"
	"github.com/scoutalgo/clover/pkg/processor"
	"github.com/scoutalgo/clover/pkg/review"
	"github.com/scoutalgo/clover/pkg/synonyms"
	"github.com/scoutalgo/clover/pkg/tracing"
)

// deps holds everything a command needs. Optional backends are nil when
// not configured.
type deps struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       database.DB
	store    catalog.Store
	redis    *redis.Client
	producer *kafka.Producer
	emitter  *events.Emitter
	cache    *oracle.PebbleCache

	shutdownTracing func(context.Context) error
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger.With(zap.String("app", cfg.AppName)), nil), nil
}

// loadDeps connects the configured backends. With no database host the
// catalog lives in memory for the lifetime of the process.
func loadDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	d := &deps{cfg: cfg, logger: logger}

	d.shutdownTracing, err = tracing.Setup(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, err
	}

	if cfg.Database.Host != "" {
		d.db, err = database.Connect(ctx, cfg.DatabaseConfig(), logger)
		if err != nil {
			d.close(ctx)
			return nil, fmt.Errorf("connect database: %w", err)
		}
		d.store = catalog.NewPostgresStore(d.db, logger)
	} else {
		logger.Warn("No database configured, using the in-memory catalog")
		d.store = catalog.NewMemoryStore()
	}

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Kafka.Enabled {
		d.producer = kafka.NewProducer(cfg.ProducerConfig(), logger)
		d.emitter = events.NewEmitter(d.producer, logger)
	}

	if cfg.Oracle.Enabled && cfg.Cache.Dir != "" {
		d.cache, err = oracle.OpenPebbleCache(cfg.Cache.Dir)
		if err != nil {
			d.close(ctx)
			return nil, fmt.Errorf("open oracle cache: %w", err)
		}
	}

	return d, nil
}

func (d *deps) guard() processor.Guard {
	if d.redis == nil {
		return processor.NewLocalGuard()
	}
	return processor.NewRedisGuard(d.redis, d.logger, d.cfg.Redis.KeyPrefix, d.cfg.Redis.LockTTL)
}

func (d *deps) oracle() matching.Oracle {
	if !d.cfg.Oracle.Enabled {
		return nil
	}
	var o matching.Oracle = oracle.NewClient(d.cfg.OracleConfig(), d.logger)
	o = oracle.NewPaced(o, d.cfg.Oracle.Delay)
	if d.cache != nil {
		o = oracle.NewCached(o, d.cache, d.logger)
	}
	return o
}

func (d *deps) synonyms() (*synonyms.Resolver, error) {
	if d.cfg.Synonyms.Path != "" {
		return synonyms.Load(d.cfg.Synonyms.Path)
	}
	return synonyms.Default()
}

func (d *deps) processors(guard processor.Guard) (*processor.MatchProcessor, *processor.ReviewProcessor, error) {
	syn, err := d.synonyms()
	if err != nil {
		return nil, nil, fmt.Errorf("load synonyms: %w", err)
	}

	// a nil *events.Emitter must not become a non-nil interface
	var notifier merging.Notifier
	opts := []processor.Option{processor.WithSynonyms(syn)}
	if d.emitter != nil {
		notifier = d.emitter
		opts = append(opts, processor.WithDecisionNotifier(d.emitter))
	}
	if o := d.oracle(); o != nil {
		opts = append(opts, processor.WithOracle(o))
	}

	coordinator := merging.NewCoordinator(d.store, d.logger, notifier)
	matcher := processor.NewMatchProcessor(d.logger, d.store, coordinator, guard, processor.Config{
		Matching:       d.cfg.MatchingConfig(),
		OracleRequired: d.cfg.Oracle.Required,
		WriterBuffer:   d.cfg.Matching.WriterBuffer,
	}, opts...)

	reviewer := processor.NewReviewProcessor(d.logger, review.NewService(d.store, d.logger, d.cfg.Review), guard)
	return matcher, reviewer, nil
}

func (d *deps) close(ctx context.Context) {
	var errs []error
	if d.producer != nil {
		errs = append(errs, d.producer.Close())
	}
	if d.cache != nil {
		errs = append(errs, d.cache.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Raw().Close())
	}
	if d.shutdownTracing != nil {
		errs = append(errs, d.shutdownTracing(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.WithError(err).Warn("Failed to release resources")
	}
}
