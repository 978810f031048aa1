package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/aclreg/internal/engine"
	"github.com/roach88/aclreg/internal/httpapi"
	"github.com/roach88/aclreg/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry engine with HTTP ingress",
		Long: `Run the registry engine and its HTTP ingress.

The engine restores the registry from the SQLite database (creating it if
it doesn't exist), resumes the logical clock after the last logged message
and starts the single-writer event loop. Messages are accepted on
POST /messages; read views and Prometheus metrics are served alongside.

Example:
  aclreg serve --config ./aclreg.cue
  aclreg serve --config ./aclreg.cue --db /tmp/reg.db --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	setupLogging(cmd.ErrOrStderr(), level, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	slog.Info("opening database", "path", cfg.Database)
	st, err := openStore(cfg.Database, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	ctx, cancel := context.WithCancel(commandContext(cmd.Context()))
	defer cancel()

	eng, err := engine.Load(ctx, st, cfg.RegistryOptions(),
		engine.WithSink(engine.LogSink{}),
		engine.WithObserver(m),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	router := httpapi.NewRouter(eng, httpapi.Options{
		Metrics:  m,
		Gatherer: promReg,
		Store:    st,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Registry %s serving on %s\n", cfg.Registry.ID, cfg.Server.Addr)
	serveErr := httpapi.Serve(ctx, cfg.Server.Addr, router)

	// Stop the engine once ingress is down, whatever the reason.
	cancel()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitFailure, "http ingress error", serveErr)
	}

	slog.Info("registry stopped gracefully")
	return nil
}
