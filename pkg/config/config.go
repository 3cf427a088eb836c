package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Slack     SlackConfig
	QABot     QABotConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SlackConfig struct {
	BotToken   string
	AppToken   string
	SocketMode SocketModeConfig
}

type SocketModeConfig struct {
	Enabled           bool
	ReconnectDelaySec int
}

type QABotConfig struct {
	Matching MatchingConfig
	Cache    CacheConfig
	Crawl    CrawlConfig
}

type MatchingConfig struct {
	SimilarityThreshold float64
}

type CacheConfig struct {
	Backend    string
	TTLSeconds int
}

type CrawlConfig struct {
	PageSize    int
	PageDelayMs int
	MaxHistory  int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	ReformatEnabled bool
	APIKey          string
	Model           string
	Temperature     float32
	MaxTokens       int
	TimeoutSec      int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/qabot")

	viper.SetEnvPrefix("QABOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// secrets have no default, so AutomaticEnv alone never surfaces them
	// into Unmarshal
	for _, key := range []string{"slack.botToken", "slack.appToken", "llm.apiKey"} {
		if err := viper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("slack.socketMode.enabled", true)
	viper.SetDefault("slack.socketMode.reconnectDelaySec", 5)

	viper.SetDefault("qabot.matching.similarityThreshold", 0.3)
	viper.SetDefault("qabot.cache.backend", "memory")
	viper.SetDefault("qabot.cache.ttlSeconds", 120)
	viper.SetDefault("qabot.crawl.pageSize", 200)
	viper.SetDefault("qabot.crawl.pageDelayMs", 100)
	viper.SetDefault("qabot.crawl.maxHistory", 1000)

	viper.SetDefault("sqlite.path", "./data/qabot.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.reformatEnabled", false)
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 512)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
