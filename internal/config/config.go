package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "OAUTHGATE"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// OAuth holds the gate options under their historical names.
type OAuth struct {
	AuthorizationHeader       string `mapstructure:"authorization-header"`
	APIKeyHeader              string `mapstructure:"api-key-header"`
	KeepAuthorizationHeader   bool   `mapstructure:"keep-authorization-header"`
	GracePeriod               int    `mapstructure:"gracePeriod"`
	AllowOAuthOnly            bool   `mapstructure:"allowOAuthOnly"`
	AllowAPIKeyOnly           bool   `mapstructure:"allowAPIKeyOnly"`
	ProductOnly               bool   `mapstructure:"productOnly"`
	AllowNoAuthorization      bool   `mapstructure:"allowNoAuthorization"`
	AllowInvalidAuthorization bool   `mapstructure:"allowInvalidAuthorization"`

	VerifyAPIKeyURL string `mapstructure:"verify_api_key_url"`
	PublicKey       string `mapstructure:"public_key"`
	JWKKeys         string `mapstructure:"jwk_keys"`

	// ProductsFile points at the YAML or JSON product rules.
	ProductsFile   string        `mapstructure:"products_file"`
	APIKeyCacheTTL time.Duration `mapstructure:"api_key_cache_ttl"`

	Request struct {
		Timeout            time.Duration     `mapstructure:"timeout"`
		Headers            map[string]string `mapstructure:"headers"`
		Proxy              string            `mapstructure:"proxy"`
		InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	} `mapstructure:"request"`
}

// GraceDuration is GracePeriod in seconds as a duration.
func (o OAuth) GraceDuration() time.Duration {
	return time.Duration(o.GracePeriod) * time.Second
}

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		AdminEnabled bool          `mapstructure:"admin_enabled"`
	} `mapstructure:"server"`

	Redis struct {
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Cache struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"cache"`

	OAuth OAuth `mapstructure:"oauth"`

	// Proxy names the headers the host gateway uses to describe the
	// original request on forward-auth calls.
	Proxy struct {
		NameHeader      string `mapstructure:"name_header"`
		BasePathHeader  string `mapstructure:"base_path_header"`
		MethodHeader    string `mapstructure:"method_header"`
		URIHeader       string `mapstructure:"uri_header"`
		DefaultName     string `mapstructure:"default_name"`
		DefaultBasePath string `mapstructure:"default_base_path"`
	} `mapstructure:"proxy"`

	Observability struct {
		MetricsEnabled     bool    `mapstructure:"metrics_enabled"`
		TraceEnabled       bool    `mapstructure:"trace_enabled"`
		TracingEndpointURL string  `mapstructure:"tracing_endpoint_url"`
		TraceSampleRatio   float64 `mapstructure:"trace_sample_ratio"`
		LogLevel           string  `mapstructure:"log_level"`
		Format             string  `mapstructure:"log_format"`
		LogSource          bool    `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8123")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.admin_enabled", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("cache.backend", BackendMemory)

	v.SetDefault("oauth.authorization-header", "authorization")
	v.SetDefault("oauth.api-key-header", "x-api-key")
	v.SetDefault("oauth.keep-authorization-header", false)
	v.SetDefault("oauth.gracePeriod", 0)
	v.SetDefault("oauth.allowOAuthOnly", false)
	v.SetDefault("oauth.allowAPIKeyOnly", false)
	v.SetDefault("oauth.productOnly", false)
	v.SetDefault("oauth.allowNoAuthorization", false)
	v.SetDefault("oauth.allowInvalidAuthorization", false)
	v.SetDefault("oauth.verify_api_key_url", "")
	v.SetDefault("oauth.public_key", "")
	v.SetDefault("oauth.jwk_keys", "")
	v.SetDefault("oauth.products_file", "")
	v.SetDefault("oauth.api_key_cache_ttl", 30*time.Minute)
	v.SetDefault("oauth.request.timeout", 60*time.Second)
	v.SetDefault("oauth.request.proxy", "")
	v.SetDefault("oauth.request.insecure_skip_verify", false)

	v.SetDefault("proxy.name_header", "X-Proxy-Name")
	v.SetDefault("proxy.base_path_header", "X-Proxy-Base-Path")
	v.SetDefault("proxy.method_header", "X-Forwarded-Method")
	v.SetDefault("proxy.uri_header", "X-Forwarded-Uri")
	v.SetDefault("proxy.default_name", "")
	v.SetDefault("proxy.default_base_path", "")

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.trace_enabled", false)
	v.SetDefault("observability.tracing_endpoint_url", "")
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.log_source", false)
}

// Load reads config.yaml from the given directories (./config and . when
// none are given), overlays config.<APP_ENV>.yaml and then OAUTHGATE_*
// environment variables. A missing base file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	logger := slog.Default()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("No config file found, using defaults and environment")
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		} else {
			logger.Info("Environment-specific config loaded", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Default().Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Default().Error("Invalid config", slog.Any("error", err))
		os.Exit(1)
	}
	return cfg
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("cache.backend is redis but redis.url is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	if c.OAuth.PublicKey == "" && c.OAuth.JWKKeys == "" {
		errs = append(errs, errors.New("one of oauth.public_key and oauth.jwk_keys is required"))
	}
	if c.OAuth.GracePeriod < 0 {
		errs = append(errs, errors.New("oauth.gracePeriod must not be negative"))
	}
	if c.OAuth.AllowOAuthOnly && c.OAuth.AllowAPIKeyOnly {
		slog.Default().Warn("both allowOAuthOnly and allowAPIKeyOnly are set, allowOAuthOnly takes precedence")
	}

	return errors.Join(errs...)
}
