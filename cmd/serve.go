package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the template API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default :8080)")
	serveCmd.Flags().Bool("watch", true, "invalidate the cache when templates change on disk")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("watch", serveCmd.Flags().Lookup("watch"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	ctx, app, err := boot(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := ctxlog.FromContext(ctx)

	if app.Config.Watch {
		if err := app.Watch(ctx); err != nil {
			return err
		}
	}

	if app.Config.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              app.Config.Listen,
		Handler:           handlers.NewRouter(app.Config, app.Templates, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "auth", app.Config.AuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
