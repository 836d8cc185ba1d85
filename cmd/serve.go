package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/api"
	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve nearest-building queries over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ds, err := loadDataset(ctx)
		if err != nil {
			return err
		}
		handler, err := buildRouter(ds)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.Int("records", ds.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildRouter indexes the dataset and returns the API handler.
func buildRouter(ds *dataset.Dataset) (http.Handler, error) {
	ix, err := nearest.NewIndex(ds.Records)
	if err != nil {
		return nil, eris.Wrap(err, "build index")
	}
	srv := api.NewServer(ix, dataset.Summarize(ds, 5), api.Options{
		Landmark:       cfg.Landmark,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxK:           cfg.Server.MaxK,
		S2Level:        cfg.Nearest.S2Level,
	}, api.NewMetrics())
	return srv.Router(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
