package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Search     SearchConfig     `mapstructure:"search"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // mysql | postgres | sqlite
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	Path         string        `mapstructure:"path"` // sqlite file
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LogLevel     string        `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	SearchDocuments string `mapstructure:"search_documents"`
}

type SearchConfig struct {
	Driver    string   `mapstructure:"driver"` // elasticsearch | kafka | memory
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type DispatcherConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	ApplyTimeout time.Duration `mapstructure:"apply_timeout"`
	Retention    time.Duration `mapstructure:"retention"`
	PruneEvery   time.Duration `mapstructure:"prune_every"`
}

type CrawlerConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	RatePerHost      float64       `mapstructure:"rate_per_host"`
	Interval         time.Duration `mapstructure:"interval"`
	Feeds            []string      `mapstructure:"feeds"`
	Pages            []string      `mapstructure:"pages"`
	SummarySentences int           `mapstructure:"summary_sentences"`
	DedupPolicy      string        `mapstructure:"dedup_policy"` // content_hash | url_only
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var GlobalConfig *Config

// setDefaults 设置全部默认值，保证空配置文件也能启动
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "crawlsync")
	v.SetDefault("database.path", "crawlsync.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.timeout", 5*time.Second)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.search_documents", "search-documents")

	v.SetDefault("search.driver", "elasticsearch")
	v.SetDefault("search.addresses", []string{"http://127.0.0.1:9200"})
	v.SetDefault("search.index", "resources")

	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.batch_size", 100)
	v.SetDefault("dispatcher.poll_interval", 500*time.Millisecond)
	v.SetDefault("dispatcher.max_attempts", 5)
	v.SetDefault("dispatcher.backoff_base", time.Second)
	v.SetDefault("dispatcher.backoff_max", 5*time.Minute)
	v.SetDefault("dispatcher.claim_timeout", 2*time.Minute)
	v.SetDefault("dispatcher.apply_timeout", 10*time.Second)
	v.SetDefault("dispatcher.retention", 7*24*time.Hour)
	v.SetDefault("dispatcher.prune_every", time.Hour)

	v.SetDefault("crawler.user_agent", "crawlsync/1.0")
	v.SetDefault("crawler.fetch_timeout", 20*time.Second)
	v.SetDefault("crawler.rate_per_host", 1.0)
	v.SetDefault("crawler.interval", time.Hour)
	v.SetDefault("crawler.summary_sentences", 3)
	v.SetDefault("crawler.dedup_policy", "content_hash")
	v.SetDefault("crawler.lock_ttl", time.Minute)

	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件；configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRAWLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Search.Driver {
	case "elasticsearch", "kafka", "memory":
	default:
		return fmt.Errorf("unsupported search driver %q", c.Search.Driver)
	}
	switch c.Crawler.DedupPolicy {
	case "content_hash", "url_only":
	default:
		return fmt.Errorf("unsupported dedup policy %q", c.Crawler.DedupPolicy)
	}
	if c.Dispatcher.MaxAttempts < 1 {
		return fmt.Errorf("dispatcher.max_attempts must be >= 1, got %d", c.Dispatcher.MaxAttempts)
	}
	if c.Dispatcher.BatchSize < 1 {
		return fmt.Errorf("dispatcher.batch_size must be >= 1, got %d", c.Dispatcher.BatchSize)
	}
	if c.Dispatcher.ApplyTimeout <= 0 {
		return fmt.Errorf("dispatcher.apply_timeout must be > 0, got %s", c.Dispatcher.ApplyTimeout)
	}
	// 单个事件从续期到写回状态最多经历三次 apply_timeout（续期、写入、回写）
	if c.Dispatcher.ClaimTimeout > 0 && c.Dispatcher.ClaimTimeout <= 3*c.Dispatcher.ApplyTimeout {
		return fmt.Errorf("dispatcher.claim_timeout (%s) must exceed 3 x apply_timeout (%s)",
			c.Dispatcher.ClaimTimeout, c.Dispatcher.ApplyTimeout)
	}
	return nil
}
