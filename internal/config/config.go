package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration: defaults, then the
// CONFIG_FILE yaml, then environment variables.
type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Component string `yaml:"component"`
		Source    bool   `yaml:"source"`
	} `yaml:"log"`

	DB struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		DSN        string `yaml:"dsn"`
		Host       string `yaml:"host"`
		Port       string `yaml:"port"`
		User       string `yaml:"user"`
		Password   string `yaml:"password"`
		Name       string `yaml:"name"`
	} `yaml:"db"`

	Redis struct {
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		ViewedTTL   time.Duration `yaml:"viewed_ttl"`
		TopUsersTTL time.Duration `yaml:"top_users_ttl"`
	} `yaml:"redis"`

	GRPC struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"grpc"`

	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Discovery struct {
		MaxStack int  `yaml:"max_stack"`
		LowWater int  `yaml:"low_water"`
		TopSeed  int  `yaml:"top_seed"`
		TopUsers bool `yaml:"top_users"`
	} `yaml:"discovery"`

	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`

	Dev struct {
		UserID    string `yaml:"user_id"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"dev"`
}

// New builds the config from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables. Env always wins.
func New() *Config {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			// config is loaded before the logger exists
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
	}

	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	cfg := &Config{}

	cfg.App.Env = "production"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Component = "discovery"

	cfg.DB.Driver = "sqlite"
	cfg.DB.SQLitePath = "cafezinho.db"
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "3306"
	cfg.DB.User = "root"
	cfg.DB.Password = "root"
	cfg.DB.Name = "cafezinho"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.ViewedTTL = 24 * time.Hour
	cfg.Redis.TopUsersTTL = 5 * time.Minute

	cfg.GRPC.Host = "127.0.0.1"
	cfg.GRPC.Port = "50051"

	cfg.API.BaseURL = "http://localhost:8000/api"
	cfg.API.Timeout = 15 * time.Second

	cfg.Discovery.MaxStack = 20
	cfg.Discovery.LowWater = 3
	cfg.Discovery.TopSeed = 5
	cfg.Discovery.TopUsers = true

	return cfg
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.Env = getEnvDefault("APP_ENV", c.App.Env)

	// Logger
	c.Log.Level = getEnvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvDefault("LOG_FORMAT", c.Log.Format)
	c.Log.Component = getEnvDefault("LOG_COMPONENT", c.Log.Component)
	if v, ok := os.LookupEnv("LOG_SOURCE"); ok {
		c.Log.Source = isTruthy(v)
	}

	// Database
	c.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", c.DB.Driver))
	c.DB.SQLitePath = getEnvDefault("SQLITE_PATH", c.DB.SQLitePath)
	c.DB.DSN = getEnvDefault("MYSQL_DSN", c.DB.DSN)
	c.DB.Host = getEnvDefault("DB_HOST", c.DB.Host)
	c.DB.Port = getEnvDefault("DB_PORT", c.DB.Port)
	c.DB.User = getEnvDefault("DB_USER", c.DB.User)
	c.DB.Password = getEnvDefault("DB_PASSWORD", c.DB.Password)
	c.DB.Name = getEnvDefault("DB_NAME", c.DB.Name)
	if c.DB.Driver == "mysql" && c.DB.DSN == "" {
		c.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
		)
	}

	// Redis
	c.Redis.Addr = getEnvDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.ViewedTTL = getEnvDuration("REDIS_VIEWED_TTL", c.Redis.ViewedTTL)
	c.Redis.TopUsersTTL = getEnvDuration("REDIS_TOP_USERS_TTL", c.Redis.TopUsersTTL)

	// gRPC
	c.GRPC.Host = getEnvDefault("GRPC_HOST", c.GRPC.Host)
	c.GRPC.Port = getEnvDefault("GRPC_PORT", c.GRPC.Port)

	// Remote API
	c.API.BaseURL = getEnvDefault("API_BASE_URL", c.API.BaseURL)
	c.API.Timeout = getEnvDuration("API_TIMEOUT", c.API.Timeout)

	// Discovery
	c.Discovery.MaxStack = getEnvInt("DISCOVERY_MAX_STACK", c.Discovery.MaxStack)
	c.Discovery.LowWater = getEnvInt("DISCOVERY_LOW_WATER", c.Discovery.LowWater)
	c.Discovery.TopSeed = getEnvInt("DISCOVERY_TOP_SEED", c.Discovery.TopSeed)
	if v, ok := os.LookupEnv("DISCOVERY_TOP_USERS"); ok {
		c.Discovery.TopUsers = isTruthy(v)
	}

	c.Session.Secret = getEnvDefault("SESSION_SECRET", c.Session.Secret)

	c.Dev.UserID = getEnvDefault("DEV_USER_ID", c.Dev.UserID)
	c.Dev.AuthToken = getEnvDefault("DEV_AUTH_TOKEN", c.Dev.AuthToken)
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
