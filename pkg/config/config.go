package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Game struct {
		Drift        float64       `yaml:"drift" default:"0.01"`
		Volatility   float64       `yaml:"volatility" default:"0.1474" validate:"gte=0"`
		StartPrice   float64       `yaml:"start_price" default:"100" validate:"gt=0"`
		TickPeriod   time.Duration `yaml:"tick_period" default:"10ms" validate:"gt=0"`
		TicksPerYear float64       `yaml:"ticks_per_year" default:"3153600000" validate:"gt=0"`
		Seed         uint64        `yaml:"seed"`
	} `yaml:"game"`

	Simulation struct {
		Paths      int     `yaml:"paths" default:"2000" validate:"gte=1"`
		Steps      int     `yaml:"steps" default:"1000" validate:"gte=1"`
		Workers    int     `yaml:"workers" default:"4" validate:"gte=1"`
		ChunkSize  int     `yaml:"chunk_size" default:"256" validate:"gte=1"`
		PayoutCap  float64 `yaml:"payout_cap" default:"100" validate:"gte=1"`
		QuoteEvery int     `yaml:"quote_every" default:"10" validate:"gte=0"`
		MaxWork    int64   `yaml:"max_work" default:"50000000" validate:"gte=0"`
	} `yaml:"simulation"`

	Round struct {
		MinOffset float64 `yaml:"min_offset" default:"200" validate:"gte=0"`
		MinDrag   float64 `yaml:"min_drag" default:"5" validate:"gte=0"`
		Budget    int64   `yaml:"budget" default:"10000" validate:"gte=0"`
		Stake     int64   `yaml:"stake" default:"1000" validate:"gt=0"`
		StakeMin  int64   `yaml:"stake_min" default:"100" validate:"gt=0"`
		StakeMax  int64   `yaml:"stake_max" default:"5000" validate:"gtefield=StakeMin"`
		StakeStep int64   `yaml:"stake_step" default:"1000" validate:"gt=0"`
	} `yaml:"round"`

	View struct {
		AnchorX     float64 `yaml:"anchor_x" default:"200"`
		AnchorY     float64 `yaml:"anchor_y" default:"300"`
		SpacingX    float64 `yaml:"spacing_x" default:"1" validate:"gt=0"`
		ScaleY      float64 `yaml:"scale_y" default:"50000" validate:"gt=0"`
		ScaleMin    float64 `yaml:"scale_min" default:"1000" validate:"gt=0"`
		ScaleMax    float64 `yaml:"scale_max" default:"200000" validate:"gtefield=ScaleMin"`
		Window      int     `yaml:"window" default:"200" validate:"gte=1"`
		StatsWindow int     `yaml:"stats_window" default:"500" validate:"gte=2"`
	} `yaml:"view"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            struct {
			Enabled bool          `yaml:"enabled" default:"true"`
			Origins []string      `yaml:"origins" default:"[\"*\"]"`
			MaxAge  time.Duration `yaml:"max_age" default:"10m"`
		} `yaml:"cors"`
		StreamInterval time.Duration `yaml:"stream_interval" default:"50ms"`
		RateLimit      struct {
			Enabled  bool          `yaml:"enabled" default:"true"`
			Burst    float64       `yaml:"burst" default:"20" validate:"gt=0"`
			PerSec   float64       `yaml:"per_sec" default:"10" validate:"gt=0"`
			IdleTime time.Duration `yaml:"idle_time" default:"5m"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Backend struct {
		Type         string        `yaml:"type" default:"none" validate:"oneof=none kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		BufferSize   int           `yaml:"buffer_size" default:"4096" validate:"gte=1"`
		MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	} `yaml:"backend"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Samples     string `yaml:"samples" default:"quotagame.samples"`
			Settlements string `yaml:"settlements" default:"quotagame.settlements"`
			Commands    string `yaml:"commands" default:"quotagame.commands"`
			Logs        string `yaml:"logs" default:"quotagame.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"quotagame"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"quotagame.commands.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1000000"`
			// MaxCommand bounds one command payload; larger records go to the DLQ.
			MaxCommand int `yaml:"max_command_bytes" default:"65536" validate:"gte=0"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"quotagame"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0,ltefield=MaxOpenConns"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		SamplesTable     string        `yaml:"samples_table" default:"price_samples"`
		SettlementsTable string        `yaml:"settlements_table" default:"settlements"`
	} `yaml:"clickhouse"`

	Cache struct {
		Type          string        `yaml:"type" default:"memory" validate:"oneof=none memory redis layered"`
		TTL           time.Duration `yaml:"ttl" default:"30s"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1024" validate:"gte=1"`
		Sweep         time.Duration `yaml:"sweep" default:"1m"`
		L1TTL         time.Duration `yaml:"l1_ttl" default:"10s"`
		Redis         struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size" default:"10"`
			Prefix   string `yaml:"prefix" default:"quotagame"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Log struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collect"`
	} `yaml:"log"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("QUOTA_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("QUOTA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("QUOTA_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("QUOTA_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("QUOTA_REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := getenv("QUOTA_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QUOTA_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("QUOTA_VOLATILITY"); v != "" {
		vol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("QUOTA_VOLATILITY: %w", err)
		}
		c.Game.Volatility = vol
	}
	return nil
}

// Validate checks field rules and the cross-section constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("backend.type kafka requires kafka.brokers")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.consumer requires kafka.brokers")
	}
	if c.Log.Collect.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("log.collect requires kafka.brokers")
	}
	if c.Round.Stake < c.Round.StakeMin || c.Round.Stake > c.Round.StakeMax {
		return fmt.Errorf("round.stake %d outside [%d, %d]", c.Round.Stake, c.Round.StakeMin, c.Round.StakeMax)
	}
	if w := int64(c.Simulation.Paths) * int64(c.Simulation.Steps); c.Simulation.MaxWork > 0 && w > c.Simulation.MaxWork {
		return fmt.Errorf("simulation.paths * simulation.steps = %d exceeds simulation.max_work %d", w, c.Simulation.MaxWork)
	}
	if c.View.ScaleY < c.View.ScaleMin || c.View.ScaleY > c.View.ScaleMax {
		return fmt.Errorf("view.scale_y %v outside [%v, %v]", c.View.ScaleY, c.View.ScaleMin, c.View.ScaleMax)
	}
	return nil
}

// DT is the time increment of one tick in years.
func (c *Config) DT() float64 {
	return 1 / c.Game.TicksPerYear
}
