package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "AUCTION"

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	MySQL     MySQLConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	HTTPPort        int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SQLiteConfig struct {
	Path string
}

// RedisConfig with an empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// KafkaConfig with no brokers selects the log publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type EventsConfig struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

type RateLimitConfig struct {
	BidsPerSecond float64
	Burst         int
}

type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every configuration key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 5*time.Second)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("mysql.dsn", "root:root@tcp(localhost:3306)/flower_auction?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 25)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("sqlite.path", "data/auction.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "auction-events")

	v.SetDefault("events.workers", 4)
	v.SetDefault("events.queue_size", 10000)
	v.SetDefault("events.publish_timeout", 5*time.Second)

	v.SetDefault("ratelimit.bids_per_second", 20.0)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New returns a viper instance reading AUCTION_* environment variables,
// e.g. AUCTION_STORE_DRIVER for store.driver.
func New() *viper.Viper {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:        v.GetInt("http.port"),
			GRPCPort:        v.GetInt("grpc.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("mysql.dsn"),
			MaxOpenConns:    v.GetInt("mysql.max_open_conns"),
			MaxIdleConns:    v.GetInt("mysql.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("sqlite.path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Events: EventsConfig{
			Workers:        v.GetInt("events.workers"),
			QueueSize:      v.GetInt("events.queue_size"),
			PublishTimeout: v.GetDuration("events.publish_timeout"),
		},
		RateLimit: RateLimitConfig{
			BidsPerSecond: v.GetFloat64("ratelimit.bids_per_second"),
			Burst:         v.GetInt("ratelimit.burst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both repeated values and a single comma separated
// environment variable.
func splitList(values []string) []string {
	var res []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				res = append(res, p)
			}
		}
	}
	return res
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for the mysql store")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)", c.Store.Driver, DriverMySQL, DriverSQLite, DriverMemory)
	}

	if c.Server.HTTPPort <= 0 || c.Server.GRPCPort <= 0 {
		return fmt.Errorf("http and grpc ports must be positive")
	}
	if c.Events.Workers <= 0 {
		return fmt.Errorf("events.workers must be positive, got %d", c.Events.Workers)
	}
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive, got %d", c.Events.QueueSize)
	}
	if c.RateLimit.BidsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.bids_per_second and ratelimit.burst must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}

func (c ServerConfig) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func (c ServerConfig) GRPCAddr() string { return fmt.Sprintf(":%d", c.GRPCPort) }
