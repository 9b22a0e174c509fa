package dbx

import (
	"net"
	"os"
	"strconv"
	"time"
)

// Config carries the backend target plus pool sizing. It is immutable after
// pool construction. Adapters read the connection fields they need; the
// pool reads MaxConns and AcquireTimeout.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// MaxConns bounds the number of live sessions the pool hands out.
	MaxConns int

	// AcquireTimeout is the longest AcquireTimeout-style callers wait for a
	// session before failing with ErrPoolExhausted. Context-based callers
	// carry their own deadline instead.
	AcquireTimeout time.Duration
}

const (
	defaultMaxConns       = 20
	defaultAcquireTimeout = 5 * time.Second
)

// DefaultConfig returns a Config with local-development defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           3306,
		Username:       "root",
		Password:       "password",
		Database:       "dbx_default_db",
		MaxConns:       defaultMaxConns,
		AcquireTimeout: defaultAcquireTimeout,
	}
}

// FromEnv builds a Config from DBX_DB_* environment variables, falling back
// to DefaultConfig for anything unset:
//
//	DBX_DB_HOST, DBX_DB_PORT, DBX_DB_USERNAME, DBX_DB_PASSWORD,
//	DBX_DB_DATABASE, DBX_DB_MAX_CONNS, DBX_DB_ACQUIRE_TIMEOUT
//
// Malformed numeric values fall back to the default rather than failing;
// the pool validates what actually matters at construction time.
func FromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("DBX_DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("DBX_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DBX_DB_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("DBX_DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DBX_DB_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("DBX_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("DBX_DB_ACQUIRE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AcquireTimeout = d
		}
	}
	return cfg
}

// Addr joins host and port for backends that dial a network address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// withDefaults fills zero-valued pool sizing fields.
func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	return c
}
