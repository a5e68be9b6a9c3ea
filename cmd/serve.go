package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	serveCmd.Flags().String("host", "", "interface to listen on")
	serveCmd.Flags().Int("port", 0, "port to listen on (also read from $PORT)")
	serveCmd.Flags().Int("max-sessions", 0, "maximum concurrent browser sessions")
	bindFlag(serveCmd.Flags(), "host", "server.host")
	bindFlag(serveCmd.Flags(), "port", "server.port")
	bindFlag(serveCmd.Flags(), "max-sessions", "search.max_sessions")
	return serveCmd
}

// serve runs the HTTP facade until ctx is cancelled, then stops accepting
// requests before closing the browser backend.
func (a *app) serve(ctx context.Context) error {
	comps, err := a.factory.Create(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return comps.Server.Run(gctx)
	})
	serveErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := comps.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Component shutdown reported errors.", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	return serveErr
}
