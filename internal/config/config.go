package config

import "time"

// PostgresConfig holds the connection settings shared by the API and the
// migrator. All fields are loaded from the environment via pkg/envconf.
type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME"`
}
