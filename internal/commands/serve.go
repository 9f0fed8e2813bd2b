package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuarubin/moldock-supervisor/internal/config"
	"github.com/joshuarubin/moldock-supervisor/internal/server"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

type serve struct {
	cfg    server.Config
	loader *config.Loader
	srv    *server.Server
	sup    *supervisor.Supervisor
}

func Serve() *cobra.Command {
	s := serve{loader: config.NewLoader()}

	cmd := cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor server and listen for connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.serve(cmd.Context())
		},
	}

	s.cfg.Flags(&cmd)
	s.loader.Flags(&cmd)

	return &cmd
}

func (s *serve) serve(ctx context.Context) error {
	cfg, err := s.loader.Load()
	if err != nil {
		return err
	}

	log, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	if s.sup, err = supervisor.New(&cfg.Supervisor); err != nil {
		return err
	}

	if s.srv, err = server.New(&s.cfg, s.sup, cfg.Sources()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(s.srv.Serve)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			slog.Warn("caught signal", "sig", sig)
		case <-ctx.Done():
			slog.Warn("application context done", "err", ctx.Err())
		}
		return s.gracefulStop()
	})

	return g.Wait()
}

// gracefulStop stops accepting requests, lets open ones finish and then waits
// for every job to be done, all within the shutdown timeout
func (s *serve) gracefulStop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)
		s.srv.GracefulStop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("timed out waiting for connections to close")
		s.srv.Stop()
		return ctx.Err()
	}

	if err := s.sup.Wait(ctx); err != nil {
		slog.Warn("timed out waiting for jobs to finish", "err", err)
		return err
	}

	slog.Info("shutdown gracefully")
	return nil
}
