package main

import (
	"log/slog"
	"time"

	"github.com/sportsfund/treasury/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT"`

	// How often pending payments past their due date get flipped to overdue.
	OverdueSweepInterval time.Duration `env:"APP_OVERDUE_SWEEP_INTERVAL"`

	Postgres config.PostgresConfig
}
