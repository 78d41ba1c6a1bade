package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    HTTPServerConfig `mapstructure:"server"`
	Log       LogConfig        `mapstructure:"log"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Chain     ChainConfig      `mapstructure:"chain"`
	Mongo     MongoConfig      `mapstructure:"mongo"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Artifacts ArtifactsConfig  `mapstructure:"artifacts"`
	Worker    WorkerConfig     `mapstructure:"worker"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
}

type HTTPServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type LLMConfig struct {
	GroqAPIKey    string `mapstructure:"groq_api_key"`
	GoogleAPIKey  string `mapstructure:"google_api_key"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	GroqBaseURL   string `mapstructure:"groq_base_url"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	GeminiBaseURL string `mapstructure:"gemini_base_url"`
	// Stream reads Groq completions incrementally.
	Stream bool `mapstructure:"stream"`

	// Gateway is an optional plain chat-completions endpoint registered
	// under its Name.
	Gateway GatewayConfig `mapstructure:"gateway"`

	ExplainBackends []string `mapstructure:"explain_backends"`
	CodeBackends    []string `mapstructure:"code_backends"`
	MaxTokens       int      `mapstructure:"max_tokens"`
}

type GatewayConfig struct {
	Name       string        `mapstructure:"name"`
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	AuthHeader string        `mapstructure:"auth_header"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ChainConfig struct {
	TimeBudget       time.Duration `mapstructure:"time_budget"`
	BackendBudget    time.Duration `mapstructure:"backend_budget"`
	MaxRetries       int           `mapstructure:"max_retries"`
	Concurrency      int           `mapstructure:"concurrency"`
	TimeoutBackoff   time.Duration `mapstructure:"timeout_backoff"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
}

// MongoConfig with an empty URI selects in-memory storage.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig with an empty URL disables result caching.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

const envPrefix = "FIXIFOX"

// legacyEnv maps config keys to the unprefixed variables deployments already set.
var legacyEnv = map[string]string{
	"llm.groq_api_key":   "GROQ_API_KEY",
	"llm.google_api_key": "GOOGLE_API_KEY",
	"llm.openai_api_key": "OPENAI_API_KEY",
	"mongo.uri":          "MONGO_URI",
	"mongo.database":     "MONGO_DB",
	"redis.url":          "REDIS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.metrics_addr", ":2112")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.google_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.groq_base_url", "https://api.groq.com/openai/v1/")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1/")
	v.SetDefault("llm.gemini_base_url", "")
	v.SetDefault("llm.stream", true)
	v.SetDefault("llm.gateway.name", "gateway")
	v.SetDefault("llm.gateway.url", "")
	v.SetDefault("llm.gateway.api_key", "")
	v.SetDefault("llm.gateway.auth_header", "Authorization")
	v.SetDefault("llm.gateway.timeout", 60*time.Second)
	v.SetDefault("llm.explain_backends", []string{"gemini/gemini-2.0-flash", "groq/llama3-70b-8192"})
	v.SetDefault("llm.code_backends", []string{"groq/qwen-2.5-coder-32b", "groq/llama3-70b-8192", "gemini/gemini-2.0-flash"})
	v.SetDefault("llm.max_tokens", 2000)

	v.SetDefault("chain.time_budget", 90*time.Second)
	v.SetDefault("chain.backend_budget", 0)
	v.SetDefault("chain.max_retries", 2)
	v.SetDefault("chain.concurrency", 8)
	v.SetDefault("chain.timeout_backoff", 2*time.Second)
	v.SetDefault("chain.rate_limit_backoff", 4*time.Second)
	v.SetDefault("chain.max_backoff", 30*time.Second)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "fixifox")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("artifacts.dir", "./artifacts")

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.job_timeout", 3*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "fixifox")
}

// Load reads defaults, then the config file, then the environment. An empty
// path looks for an optional fixifox.yaml in . and ./configs.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fixifox")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	l := c.LLM
	if l.GroqAPIKey == "" && l.GoogleAPIKey == "" && l.OpenAIAPIKey == "" && l.Gateway.URL == "" {
		return errors.New("no LLM backend configured: set GROQ_API_KEY, GOOGLE_API_KEY, OPENAI_API_KEY or FIXIFOX_LLM_GATEWAY_URL")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Chain.MaxRetries < 0 {
		return fmt.Errorf("chain.max_retries must not be negative, got %d", c.Chain.MaxRetries)
	}
	if c.Chain.TimeBudget <= 0 {
		return fmt.Errorf("chain.time_budget must be positive, got %s", c.Chain.TimeBudget)
	}
	if len(l.ExplainBackends) == 0 || len(l.CodeBackends) == 0 {
		return errors.New("llm.explain_backends and llm.code_backends must not be empty")
	}
	return nil
}

func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
