package cache

import "time"

// Option configures a cache backend. Backends read only the fields they use.
type Option func(*Config)

// Config holds the settings of every backend.
type Config struct {
	// redis
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MinIdle     int
	PoolTimeout time.Duration
	DialTimeout time.Duration
	Prefix      string

	// memory
	MaxEntries int
	Sweep      time.Duration

	// layered: L1 entries never outlive this, whatever the L2 expiration
	L1TTL time.Duration
}

func defaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		MinIdle:     5,
		PoolTimeout: 30 * time.Second,
		DialTimeout: 5 * time.Second,
		Prefix:      "quotagame",
		MaxEntries:  1024,
		Sweep:       time.Minute,
		L1TTL:       10 * time.Second,
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithAddr sets the redis address as host:port.
func WithAddr(addr string) Option {
	return func(c *Config) {
		if addr != "" {
			c.Addr = addr
		}
	}
}

// WithAuth selects the redis database and its password.
func WithAuth(password string, db int) Option {
	return func(c *Config) {
		c.Password = password
		if db >= 0 {
			c.DB = db
		}
	}
}

// WithPool sizes the redis connection pool.
func WithPool(size, minIdle int, timeout time.Duration) Option {
	return func(c *Config) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle >= 0 {
			c.MinIdle = minIdle
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

// WithPrefix namespaces every redis key, so several deployments can share one server.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithMaxEntries bounds the in-memory cache. The least recently used entry goes first.
func WithMaxEntries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxEntries = n
		}
	}
}

// WithSweep sets how often expired memory entries are dropped. Zero disables the sweeper;
// expired entries are then removed lazily on access.
func WithSweep(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.Sweep = d
		}
	}
}

// WithL1TTL caps how long the layered cache keeps a value in memory.
func WithL1TTL(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.L1TTL = d
		}
	}
}
