package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Game     GameConfig     `yaml:"game"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration for the hall of fame
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig holds the reward event stream configuration
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SweepConfig holds background sweep configuration
type SweepConfig struct {
	Interval       time.Duration `yaml:"interval"`
	SessionMaxIdle time.Duration `yaml:"session_max_idle"`
}

// GameConfig holds gameplay tuning parameters
type GameConfig struct {
	Tokens          TokenConfig            `yaml:"tokens"`
	Ammunition      int                    `yaml:"ammunition"`
	ReloadThreshold int                    `yaml:"reload_threshold"`
	Lives           int                    `yaml:"lives"`
	ReplenishAfter  time.Duration          `yaml:"replenish_after"`
	Drones          DroneConfig            `yaml:"drones"`
	GeoObjects      GeoObjectConfig        `yaml:"geo_objects"`
	Proximity       ProximityConfig        `yaml:"proximity"`
	Achievements    map[string][]Milestone `yaml:"achievements"`
}

// TokenConfig holds reward token amounts per event kind
type TokenConfig struct {
	Hit     int64 `yaml:"hit"`
	Kill    int64 `yaml:"kill"`
	Drone   int64 `yaml:"drone"`
	Weapon  int64 `yaml:"weapon"`
	Target  int64 `yaml:"target"`
	Powerup int64 `yaml:"powerup"`
}

// DroneConfig holds aerial drone spawn parameters
type DroneConfig struct {
	MaxPerPlayer  int           `yaml:"max_per_player"`
	SpawnInterval time.Duration `yaml:"spawn_interval"`
	TTL           time.Duration `yaml:"ttl"`
	MinSeparation float64       `yaml:"min_separation"`
	RetryBudget   int           `yaml:"retry_budget"`
	MinX          float64       `yaml:"min_x"`
	MaxX          float64       `yaml:"max_x"`
	MinY          float64       `yaml:"min_y"`
	MaxY          float64       `yaml:"max_y"`
	MinZ          float64       `yaml:"min_z"`
	MaxZ          float64       `yaml:"max_z"`
}

// GeoObjectConfig holds geo-anchored pickup spawn parameters
type GeoObjectConfig struct {
	MinRadius float64       `yaml:"min_radius"`
	MaxRadius float64       `yaml:"max_radius"`
	TTL       time.Duration `yaml:"ttl"`
}

// ProximityConfig holds geocell bucketing parameters
type ProximityConfig struct {
	Precision int           `yaml:"precision"`
	Freshness time.Duration `yaml:"freshness"`
}

// Milestone pairs a counter threshold with its token reward
type Milestone struct {
	Value  int   `yaml:"value"`
	Reward int64 `yaml:"reward"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 50
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "reward-events"
	}

	// Sweep defaults
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 60 * time.Second
	}
	if c.Sweep.SessionMaxIdle == 0 {
		c.Sweep.SessionMaxIdle = 10 * time.Minute
	}

	// Token defaults
	if c.Game.Tokens.Hit == 0 {
		c.Game.Tokens.Hit = 1
	}
	if c.Game.Tokens.Kill == 0 {
		c.Game.Tokens.Kill = 5
	}
	if c.Game.Tokens.Drone == 0 {
		c.Game.Tokens.Drone = 2
	}
	if c.Game.Tokens.Weapon == 0 {
		c.Game.Tokens.Weapon = 5
	}
	if c.Game.Tokens.Target == 0 {
		c.Game.Tokens.Target = 10
	}
	if c.Game.Tokens.Powerup == 0 {
		c.Game.Tokens.Powerup = 1
	}
	if c.Game.Ammunition == 0 {
		c.Game.Ammunition = 30
	}
	if c.Game.ReloadThreshold == 0 {
		c.Game.ReloadThreshold = 1
	}
	if c.Game.Lives == 0 {
		c.Game.Lives = 10
	}
	if c.Game.ReplenishAfter == 0 {
		c.Game.ReplenishAfter = 5 * time.Minute
	}

	// Drone defaults
	if c.Game.Drones.MaxPerPlayer == 0 {
		c.Game.Drones.MaxPerPlayer = 5
	}
	if c.Game.Drones.SpawnInterval == 0 {
		c.Game.Drones.SpawnInterval = 10 * time.Second
	}
	if c.Game.Drones.TTL == 0 {
		c.Game.Drones.TTL = 60 * time.Second
	}
	if c.Game.Drones.MinSeparation == 0 {
		c.Game.Drones.MinSeparation = 0.5
	}
	if c.Game.Drones.RetryBudget == 0 {
		c.Game.Drones.RetryBudget = 10
	}
	if c.Game.Drones.MinX == 0 && c.Game.Drones.MaxX == 0 {
		c.Game.Drones.MinX = -3
		c.Game.Drones.MaxX = 3
	}
	if c.Game.Drones.MinY == 0 && c.Game.Drones.MaxY == 0 {
		c.Game.Drones.MaxY = 3
	}
	if c.Game.Drones.MinZ == 0 && c.Game.Drones.MaxZ == 0 {
		c.Game.Drones.MinZ = -2
		c.Game.Drones.MaxZ = -1
	}

	// Geo object defaults
	if c.Game.GeoObjects.MinRadius == 0 {
		c.Game.GeoObjects.MinRadius = 10
	}
	if c.Game.GeoObjects.MaxRadius == 0 {
		c.Game.GeoObjects.MaxRadius = 100
	}
	if c.Game.GeoObjects.TTL == 0 {
		c.Game.GeoObjects.TTL = 1 * time.Hour
	}

	// Proximity defaults
	if c.Game.Proximity.Precision == 0 {
		c.Game.Proximity.Precision = 3
	}
	if c.Game.Proximity.Freshness == 0 {
		c.Game.Proximity.Freshness = 5 * time.Minute
	}

	// Achievement defaults
	if len(c.Game.Achievements) == 0 {
		c.Game.Achievements = map[string][]Milestone{
			"kills": {
				{Value: 10, Reward: 5},
				{Value: 50, Reward: 15},
				{Value: 100, Reward: 25},
				{Value: 500, Reward: 50},
				{Value: 1000, Reward: 100},
			},
			"hits": {
				{Value: 100, Reward: 10},
				{Value: 500, Reward: 25},
				{Value: 1000, Reward: 50},
				{Value: 5000, Reward: 100},
			},
			"survivalTime": {
				{Value: 3600, Reward: 10},
				{Value: 18000, Reward: 25},
				{Value: 86400, Reward: 100},
			},
			"accuracy": {
				{Value: 50, Reward: 10},
				{Value: 75, Reward: 25},
				{Value: 90, Reward: 50},
				{Value: 95, Reward: 100},
			},
		}
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
