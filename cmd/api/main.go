package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sportsfund/treasury/internal/api"
	"github.com/sportsfund/treasury/internal/infra/logging"
	"github.com/sportsfund/treasury/internal/infra/pgutils"
	"github.com/sportsfund/treasury/internal/notify"
	"github.com/sportsfund/treasury/internal/services/audit"
	"github.com/sportsfund/treasury/internal/services/clubaccount"
	"github.com/sportsfund/treasury/internal/services/deduction"
	"github.com/sportsfund/treasury/internal/services/distribution"
	"github.com/sportsfund/treasury/internal/services/wallet"
	"github.com/sportsfund/treasury/pkg/envconf"
	"github.com/sportsfund/treasury/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	// --- Services ---
	walletSrv := wallet.New(dbConns)
	clubSrv := clubaccount.New(dbConns)
	distributionSrv := distribution.New(dbConns, walletSrv, clubSrv)
	accountant := deduction.NewAccountant(dbConns, walletSrv)
	auditor := audit.New(dbConns)
	notifier := notify.NewLogNotifier()

	// --- Overdue sweep ---
	go runOverdueSweep(ctx, accountant, cfg.OverdueSweepInterval)

	// --- HTTP server ---
	handler := api.NewHandler(walletSrv, clubSrv, distributionSrv, accountant, auditor, notifier)
	srv := api.NewServer(cfg.Port, handler)

	// Register HTTP server graceful shutdown
	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started")

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// runOverdueSweep periodically flips pending payments past their due date.
func runOverdueSweep(ctx context.Context, accountant *deduction.Accountant, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := accountant.MarkOverdue(ctx)
			if err != nil {
				slog.Error("overdue sweep failed", "error", err)
			}
		}
	}
}
