package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/core/auth"
	"github.com/solatis/sieve/internal/core/config"
	"github.com/solatis/sieve/internal/core/server"
	"github.com/solatis/sieve/internal/substitute"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC filter service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "127.0.0.1", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().Duration("grace-period", 0, "how long a timed-out substitution may run before restart")
	serveCmd.Flags().Duration("default-timeout", 0, "time budget for rules without one")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := zerolog.Ctx(ctx)

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	authenticator, err := auth.NewAuthenticator(cfg.Server.APIToken)
	if err != nil {
		return errors.Errorf("failed to configure authentication: %w", err)
	}
	if !authenticator.Enabled() {
		logger.Warn().Msgf("%s not set, filter service accepts unauthenticated requests", config.APITokenEnv)
	}

	// grpcServer is assigned before any request can run a substitution.
	var grpcServer *server.GRPCServer
	restarter := substitute.RestarterFunc(func(ctx context.Context, esc substitute.Escalation) error {
		if grpcServer != nil {
			grpcServer.MarkNotServing()
		}
		return substitute.ExecRestarter{}.Restart(ctx, esc)
	})

	engine := newEngine(store, restarter)
	go engine.Watch(ctx, store.Subscribe(ctx))

	service, err := server.NewFilterService(engine, cfg.Substitution.Template)
	if err != nil {
		return errors.Errorf("failed to create service: %w", err)
	}

	grpcServer, err = server.NewGRPCServer(cfg.Server, service, authenticator, *logger)
	if err != nil {
		return errors.Errorf("failed to create server: %w", err)
	}

	logger.Info().
		Str("version", Version).
		Str("addr", cfg.Server.Addr()).
		Dur("grace_period", cfg.Substitution.GracePeriod).
		Msg("starting sieve filter service")

	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		cancel()
		return grpcServer.Shutdown(context.Background())
	}
}
