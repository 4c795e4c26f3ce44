package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/emailflow/internal/echo"
)

var (
	backendListen      string
	backendEnvironment string
	backendFailDetail  string
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run a development backend that echoes submissions",
	Long: `Serve POST /api/workflows/send-mail without delivering anything.
Every submission is answered with {"ok":true,"queued":true,...} and an echo
of what was received. Use --fail-detail to exercise the rejection path.

Examples:
  emailflow backend
  emailflow backend --listen :8000 --fail-detail "SMTP down"`,
	RunE: runBackend,
}

func init() {
	backendCmd.Flags().StringVar(&backendListen, "listen", ":8000", "Listen address")
	backendCmd.Flags().StringVar(&backendEnvironment, "environment", "", "Environment reported when a request has none (default: composer environment)")
	backendCmd.Flags().StringVar(&backendFailDetail, "fail-detail", "", "Reject every submission with HTTP 500 and this detail")

	rootCmd.AddCommand(backendCmd)
}

func runBackend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)

	env := backendEnvironment
	if env == "" {
		env = cfg.Composer.Environment
	}

	opts := []echo.Option{echo.WithLogger(logger)}
	if backendFailDetail != "" {
		opts = append(opts, echo.WithFailDetail(backendFailDetail))
	}

	srv := &http.Server{
		Addr:              backendListen,
		Handler:           echo.New(env, opts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting echo backend", "addr", backendListen, "environment", env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("echo backend: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
