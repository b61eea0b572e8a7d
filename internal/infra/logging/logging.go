package logging

import (
	"log/slog"
	"os"
)

// SetupJSON installs a JSON slog handler as the process-wide default logger.
// Called once per binary, right after config is loaded, so distribution,
// debit and repair audit lines come out machine readable.
func SetupJSON(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
