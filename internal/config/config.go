package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the optional YAML file layered under the environment.
const ConfigPathEnvVar = "DENOTE_CONFIG"

const defaultConfigPath = "config.yaml"

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Pinning providers.
const (
	ProviderPinata = "pinata"
	ProviderS3     = "s3"
	ProviderMemory = "memory"
)

// Config holds application level configuration. Keys mirror the environment
// variable names in lower case.
type Config struct {
	ServerPort    string        `koanf:"server_port"`
	ServerTimeout time.Duration `koanf:"server_timeout"`

	StoreDriver   string `koanf:"store_driver"`
	MySQLDSN      string `koanf:"mysql_dsn"`
	SQLitePath    string `koanf:"sqlite_path"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`
	ResetDB       bool   `koanf:"reset_db"`

	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`
	RedisPass string `koanf:"redis_password"`

	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`

	PinningProvider string `koanf:"pinning_provider"`
	PinataAPIURL    string `koanf:"pinata_api_url"`
	PinataJWT       string `koanf:"pinata_jwt"`
	GatewayURL      string `koanf:"gateway_url"`
	S3Endpoint      string `koanf:"s3_endpoint"`
	S3Region        string `koanf:"s3_region"`
	S3Bucket        string `koanf:"s3_bucket"`
	S3AccessKey     string `koanf:"s3_access_key"`
	S3SecretKey     string `koanf:"s3_secret_key"`
	MaxUploadBytes  int64  `koanf:"max_upload_bytes"`

	CORSOrigins   string  `koanf:"cors_origins"`
	AuthRateLimit float64 `koanf:"auth_rate_limit"`

	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	SwaggerHost string `koanf:"swagger_host"`
}

func defaultConfig() Config {
	return Config{
		ServerPort:      "8080",
		ServerTimeout:   60 * time.Second,
		StoreDriver:     DriverMySQL,
		MySQLDSN:        "user:password@tcp(localhost:3306)/denote?charset=utf8mb4&parseTime=True&loc=UTC",
		SQLitePath:      "denote.db",
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "denote",
		RedisAddr:       "localhost:6379",
		JWTSecret:       "change-me",
		TokenTTL:        24 * time.Hour,
		PinningProvider: ProviderPinata,
		PinataAPIURL:    "https://api.pinata.cloud",
		GatewayURL:      "https://gateway.pinata.cloud",
		S3Region:        "us-east-1",
		MaxUploadBytes:  20 << 20,
		CORSOrigins:     "*",
		AuthRateLimit:   5,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load builds Config from defaults, an optional YAML file and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := configPath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// SERVER_PORT -> server_port
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and providers.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	switch c.PinningProvider {
	case ProviderPinata, ProviderS3, ProviderMemory:
	default:
		return fmt.Errorf("unknown pinning_provider %q", c.PinningProvider)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	return nil
}

// Origins splits CORSOrigins on commas.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func configPath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
