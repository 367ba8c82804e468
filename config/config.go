package config

import (
	"errors"
	"os"
	"time"

	postgres_wrapper "github.com/joripage/orderbook-sync/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/orderbook-sync/pkg/infra/redis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string            `yaml:"service_name"`
	LogLevel    string            `yaml:"log_level"`
	Sync        SyncConfig        `yaml:"sync"`
	Book        BookConfig        `yaml:"book"`
	Notify      NotifyConfig      `yaml:"notify"`
	ChainSource ChainSourceConfig `yaml:"chain_source"`
	Sinks       SinksConfig       `yaml:"sinks"`
	FIX         FIXConfig         `yaml:"fix"`

	OrderbookDB *postgres_wrapper.PostgresConfig `yaml:"orderbook_db"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
}

type SyncConfig struct {
	StartBlock           uint64        `yaml:"start_block"`
	BatchBlocks          uint64        `yaml:"batch_blocks"`
	MaxReconnectAttempts uint64        `yaml:"max_reconnect_attempts"`
	InitialBackoff       time.Duration `yaml:"initial_backoff"`
	MaxBackoff           time.Duration `yaml:"max_backoff"`
	QueueSize            int           `yaml:"queue_size"`
}

type BookConfig struct {
	DefaultLimit     int           `yaml:"default_limit"`
	MaxLimit         int           `yaml:"max_limit"`
	MinOrderLifetime time.Duration `yaml:"min_order_lifetime"`
	PriceBandsFile   string        `yaml:"price_bands_file"`
	JournalRetention time.Duration `yaml:"journal_retention"`
	CleanerInterval  time.Duration `yaml:"cleaner_interval"`
}

type NotifyConfig struct {
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
	FanoutRetries     uint64        `yaml:"fanout_retries"`
	FanoutRetryWait   time.Duration `yaml:"fanout_retry_wait"`
	FanoutBacklogWarn int           `yaml:"fanout_backlog_warn"`
}

// ChainSourceConfig is the Kafka topic the chain indexer writes logs to.
type ChainSourceConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Partition int      `yaml:"partition"`
}

type SinksConfig struct {
	NATS  NATSSinkConfig  `yaml:"nats"`
	Kafka KafkaSinkConfig `yaml:"kafka"`
	Redis RedisSinkConfig `yaml:"redis"`
}

type NATSSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

type KafkaSinkConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisSinkConfig struct {
	Enabled     bool          `yaml:"enabled"`
	KeyPrefix   string        `yaml:"key_prefix"`
	Channel     string        `yaml:"channel"`
	TerminalTTL time.Duration `yaml:"terminal_ttl"`
}

type FIXConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SettingsFile string `yaml:"settings_file"`
	NumShards    int    `yaml:"num_shards"`
	QueueSize    int    `yaml:"queue_size"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := Default()

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		sugar.Errorf("Invalid config: %v", err)
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}

func Default() *AppConfig {
	return &AppConfig{
		ServiceName: "orderbook-sync",
		LogLevel:    "info",
		Sync: SyncConfig{
			BatchBlocks:          1000,
			MaxReconnectAttempts: 10,
			InitialBackoff:       500 * time.Millisecond,
			MaxBackoff:           30 * time.Second,
			QueueSize:            4096,
		},
		Book: BookConfig{
			DefaultLimit:     100,
			MaxLimit:         1000,
			JournalRetention: time.Hour,
			CleanerInterval:  time.Minute,
		},
		Notify: NotifyConfig{
			SubscriberBuffer:  1024,
			FanoutRetries:     3,
			FanoutRetryWait:   100 * time.Millisecond,
			FanoutBacklogWarn: 10000,
		},
		Sinks: SinksConfig{
			NATS:  NATSSinkConfig{Stream: "ORDERBOOK", Subject: "ORDERBOOK.events", Durable: "orderbook_worker"},
			Kafka: KafkaSinkConfig{Topic: "orderbook.events"},
			Redis: RedisSinkConfig{KeyPrefix: "orderbook:", Channel: "orderbook:events", TerminalTTL: 24 * time.Hour},
		},
		FIX: FIXConfig{NumShards: 16, QueueSize: 100_000},
	}
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Sync.BatchBlocks == 0 {
		errs = append(errs, errors.New("sync.batch_blocks must be positive"))
	}
	if c.Book.MaxLimit < c.Book.DefaultLimit {
		errs = append(errs, errors.New("book.max_limit is below book.default_limit"))
	}
	if len(c.ChainSource.Brokers) == 0 || c.ChainSource.Topic == "" {
		errs = append(errs, errors.New("chain_source needs brokers and a topic"))
	}
	if c.Sinks.Redis.Enabled && c.Redis == nil {
		errs = append(errs, errors.New("sinks.redis is enabled without a redis section"))
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("sinks.kafka is enabled without brokers"))
	}
	if c.FIX.Enabled && c.FIX.SettingsFile == "" {
		errs = append(errs, errors.New("fix is enabled without settings_file"))
	}
	return errors.Join(errs...)
}
