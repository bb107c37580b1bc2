package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/kafka"
	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/oracle"
	"github.com/scoutalgo/clover/pkg/review"
	"github.com/scoutalgo/clover/pkg/server"
	"github.com/scoutalgo/clover/pkg/tracing"
	"github.com/scoutalgo/clover/pkg/tracing/exporters"
)

// ErrInvalid wraps every configuration validation failure
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	AppName            string `mapstructure:"app_name" validate:"required"`
	LogLevel           string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `mapstructure:"pretty_logs"`
	StartupMaxAttempts int    `mapstructure:"startup_max_attempts" validate:"gte=1"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Matching MatchingConfig `mapstructure:"matching"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Review   review.Config  `mapstructure:"review"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Synonyms SynonymsConfig `mapstructure:"synonyms"`
}

type HTTPConfig struct {
	Port              int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	// Empty Host selects the in-memory store
	Host                  string        `mapstructure:"host"`
	Port                  string        `mapstructure:"port"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Name                  string        `mapstructure:"name"`
	SSLMode               string        `mapstructure:"ssl_mode"`
	MaxOpenConns          int           `mapstructure:"max_open_conns"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime       time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationFolderPath   string        `mapstructure:"migration_folder_path"`
	MigrationVersion      uint          `mapstructure:"migration_version"`
	MigrationForce        int           `mapstructure:"migration_force"`
	MigrationAutoRollback bool          `mapstructure:"migration_auto_rollback"`
}

type RedisConfig struct {
	// Empty Addr selects the in-process job guard
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `mapstructure:"topic" validate:"required_if=Enabled true"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
}

type TracingConfig struct {
	Exporter     string            `mapstructure:"exporter" validate:"oneof=none console otlp"`
	SampleRatio  float64           `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	OTLPProtocol string            `mapstructure:"otlp_protocol" validate:"oneof=grpc http"`
	OTLPInsecure bool              `mapstructure:"otlp_insecure"`
	OTLPHeaders  map[string]string `mapstructure:"otlp_headers"`
	OTLPTimeout  time.Duration     `mapstructure:"otlp_timeout"`
}

type MatchingConfig struct {
	AutoAcceptThreshold     int     `mapstructure:"auto_accept_threshold"`
	AIMatchThreshold        int     `mapstructure:"ai_match_threshold"`
	AILeniencyMargin        int     `mapstructure:"ai_leniency_margin"`
	MinCandidateFloor       int     `mapstructure:"min_candidate_floor"`
	MaxCandidates           int     `mapstructure:"max_candidates"`
	MaxCandidatesToAI       int     `mapstructure:"max_candidates_to_ai"`
	WeightToleranceAbs      float64 `mapstructure:"weight_tolerance_abs"`
	WeightToleranceRatio    float64 `mapstructure:"weight_tolerance_ratio"`
	FuzzyBrandThreshold     float64 `mapstructure:"fuzzy_brand_threshold"`
	BrandSimilarThreshold   float64 `mapstructure:"brand_similar_threshold"`
	LongKeywordRunes        int     `mapstructure:"long_keyword_runes"`
	RareKeywordMaxPostings  int     `mapstructure:"rare_keyword_max_postings"`
	FallbackEnabled         bool    `mapstructure:"fallback_enabled"`
	FallbackPoolLimit       int     `mapstructure:"fallback_pool_limit"`
	FallbackSimilarityFloor float64 `mapstructure:"fallback_similarity_floor"`
	FallbackMaxCandidates   int     `mapstructure:"fallback_max_candidates"`
	EnforceMergeDirection   bool    `mapstructure:"enforce_merge_direction"`
	WriterBuffer            int     `mapstructure:"writer_buffer"`
}

type OracleConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Required    bool          `mapstructure:"required"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Delay       time.Duration `mapstructure:"delay"`
}

type CacheConfig struct {
	// Empty Dir disables the oracle verdict cache
	Dir string `mapstructure:"dir"`
}

type SynonymsConfig struct {
	// Empty Path uses the built-in table
	Path string `mapstructure:"path"`
}

// Load reads configuration from defaults, an optional config.yaml, a .env
// file and CLOVER_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/clover/")

	v.SetEnvPrefix("CLOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	m := matching.DefaultConfig()
	o := oracle.DefaultConfig()
	r := review.DefaultConfig()

	v.SetDefault("app_name", "clover")
	v.SetDefault("log_level", "info")
	v.SetDefault("pretty_logs", false)
	v.SetDefault("startup_max_attempts", 5)

	v.SetDefault("http.port", 3002)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.read_header_timeout", "10s")
	v.SetDefault("http.max_header_bytes", 64000)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "clover")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "10m")
	v.SetDefault("database.migration_folder_path", "db/pg")
	v.SetDefault("database.migration_version", 0)
	v.SetDefault("database.migration_force", 0)
	v.SetDefault("database.migration_auto_rollback", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "clover:lock:")
	v.SetDefault("redis.lock_ttl", "1m")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "clover-events")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "100ms")
	v.SetDefault("kafka.required_acks", 1)
	v.SetDefault("kafka.compression", "snappy")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp_protocol", "grpc")
	v.SetDefault("tracing.otlp_insecure", true)
	v.SetDefault("tracing.otlp_timeout", "10s")

	v.SetDefault("matching.auto_accept_threshold", m.AutoAcceptThreshold)
	v.SetDefault("matching.ai_match_threshold", m.OracleMatchThreshold)
	v.SetDefault("matching.ai_leniency_margin", m.OracleLeniencyMargin)
	v.SetDefault("matching.min_candidate_floor", m.MinCandidateFloor)
	v.SetDefault("matching.max_candidates", m.MaxCandidates)
	v.SetDefault("matching.max_candidates_to_ai", m.MaxCandidatesToOracle)
	v.SetDefault("matching.weight_tolerance_abs", m.WeightToleranceAbs)
	v.SetDefault("matching.weight_tolerance_ratio", m.WeightToleranceRatio)
	v.SetDefault("matching.fuzzy_brand_threshold", m.FuzzyBrandThreshold)
	v.SetDefault("matching.brand_similar_threshold", m.BrandSimilarThreshold)
	v.SetDefault("matching.long_keyword_runes", m.LongKeywordRunes)
	v.SetDefault("matching.rare_keyword_max_postings", m.RareKeywordMaxPostings)
	v.SetDefault("matching.fallback_enabled", m.FallbackEnabled)
	v.SetDefault("matching.fallback_pool_limit", m.FallbackPoolLimit)
	v.SetDefault("matching.fallback_similarity_floor", m.FallbackSimilarityFloor)
	v.SetDefault("matching.fallback_max_candidates", m.FallbackMaxCandidates)
	v.SetDefault("matching.enforce_merge_direction", m.EnforceMergeDirection)
	v.SetDefault("matching.writer_buffer", 64)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.required", false)
	v.SetDefault("oracle.base_url", o.BaseURL)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", o.Model)
	v.SetDefault("oracle.timeout", o.Timeout.String())
	v.SetDefault("oracle.max_attempts", o.MaxAttempts)
	v.SetDefault("oracle.backoff", o.Backoff.String())
	v.SetDefault("oracle.temperature", o.Temperature)
	v.SetDefault("oracle.max_tokens", o.MaxTokens)
	v.SetDefault("oracle.delay", "500ms")

	v.SetDefault("review.name_strict", r.NameStrictThreshold)
	v.SetDefault("review.name_ok", r.NameOKThreshold)
	v.SetDefault("review.name_low", r.NameLowThreshold)
	v.SetDefault("review.weight_tolerance_abs", r.WeightToleranceAbs)
	v.SetDefault("review.weight_tolerance_ratio", r.WeightToleranceRatio)
	v.SetDefault("review.require_brand_if_present", r.RequireBrandIfPresent)

	v.SetDefault("cache.dir", "")
	v.SetDefault("synonyms.path", "")
}

// Validate checks field constraints and the cross-field rules of each section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.MatchingConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Review.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Oracle.Required && !c.Oracle.Enabled {
		return fmt.Errorf("%w: oracle.required needs oracle.enabled", ErrInvalid)
	}
	if c.Oracle.Enabled && c.Oracle.APIKey == "" {
		return fmt.Errorf("%w: oracle.api_key is required when the oracle is enabled (set CLOVER_ORACLE_API_KEY)", ErrInvalid)
	}
	return nil
}

// MatchingConfig maps the matching section onto the engine's config
func (c *Config) MatchingConfig() matching.Config {
	m := c.Matching
	return matching.Config{
		AutoAcceptThreshold:     m.AutoAcceptThreshold,
		OracleMatchThreshold:    m.AIMatchThreshold,
		OracleLeniencyMargin:    m.AILeniencyMargin,
		MinCandidateFloor:       m.MinCandidateFloor,
		MaxCandidates:           m.MaxCandidates,
		MaxCandidatesToOracle:   m.MaxCandidatesToAI,
		WeightToleranceAbs:      m.WeightToleranceAbs,
		WeightToleranceRatio:    m.WeightToleranceRatio,
		FuzzyBrandThreshold:     m.FuzzyBrandThreshold,
		BrandSimilarThreshold:   m.BrandSimilarThreshold,
		LongKeywordRunes:        m.LongKeywordRunes,
		RareKeywordMaxPostings:  m.RareKeywordMaxPostings,
		FallbackEnabled:         m.FallbackEnabled,
		FallbackPoolLimit:       m.FallbackPoolLimit,
		FallbackSimilarityFloor: m.FallbackSimilarityFloor,
		FallbackMaxCandidates:   m.FallbackMaxCandidates,
		EnforceMergeDirection:   m.EnforceMergeDirection,
	}
}

func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		BaseURL:        c.Oracle.BaseURL,
		APIKey:         c.Oracle.APIKey,
		Model:          c.Oracle.Model,
		Timeout:        c.Oracle.Timeout,
		MaxAttempts:    c.Oracle.MaxAttempts,
		Backoff:        c.Oracle.Backoff,
		Temperature:    c.Oracle.Temperature,
		MaxTokens:      c.Oracle.MaxTokens,
		MatchThreshold: c.Matching.AIMatchThreshold,
	}
}

func (c *Config) DatabaseConfig() database.Config {
	d := c.Database
	return database.Config{
		Driver:          "postgres",
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Name:            d.Name,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}

func (c *Config) MigrationConfig() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.Database.MigrationFolderPath,
		Version:             c.Database.MigrationVersion,
		Force:               c.Database.MigrationForce,
		AutoRollback:        c.Database.MigrationAutoRollback,
	}
}

func (c *Config) ProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		BatchSize:    c.Kafka.BatchSize,
		BatchTimeout: c.Kafka.BatchTimeout,
		RequiredAcks: c.Kafka.RequiredAcks,
		Compression:  c.Kafka.Compression,
	}
}

func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Exporter:    c.Tracing.Exporter,
		ServiceName: c.AppName,
		SampleRatio: c.Tracing.SampleRatio,
		OTLP: exporters.OTLPConfig{
			Endpoint: c.Tracing.OTLPEndpoint,
			Protocol: c.Tracing.OTLPProtocol,
			Insecure: c.Tracing.OTLPInsecure,
			Headers:  c.Tracing.OTLPHeaders,
			Timeout:  c.Tracing.OTLPTimeout,
		},
	}
}

func (c *Config) ServerConfig() server.Config {
	return server.Config{
		ServiceName:       c.AppName,
		Port:              c.HTTP.Port,
		ReadTimeout:       c.HTTP.ReadTimeout,
		WriteTimeout:      c.HTTP.WriteTimeout,
		IdleTimeout:       c.HTTP.IdleTimeout,
		ReadHeaderTimeout: c.HTTP.ReadHeaderTimeout,
		MaxHeaderBytes:    c.HTTP.MaxHeaderBytes,
	}
}
