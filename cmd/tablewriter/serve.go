package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/store/memory"
	"github.com/ajitpratap0/tablewriter/pkg/store/wire"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory table store over the wire protocol",
		Long: `Serve an in-memory table store over the wire protocol. Tables come from a
YAML catalog file; every flag can also be set as TABLEWRITER_<FLAG>.

Example:
  tablewriter serve --addr :8848 --catalog tables.yaml --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().String("addr", ":8848", "Listen address")
	cmd.Flags().String("catalog", "", "YAML file declaring the served tables")
	cmd.Flags().String("user", "", "Required login user (empty accepts any login)")
	cmd.Flags().String("password", "", "Required login password")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().String("metrics-addr", "", "Address of the Prometheus /metrics endpoint (empty disables it)")
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	log := logger.Component(nil, "serve")
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := v.GetString("catalog"); path != "" {
		if err := loadCatalog(path, memory.Default); err != nil {
			return err
		}
	}
	log.Info("catalog ready", zap.Strings("tables", memory.Default.Tables()))

	var tlsCfg *tls.Config
	if cert := v.GetString("tls-cert"); cert != "" {
		pair, err := tls.LoadX509KeyPair(cert, v.GetString("tls-key"))
		if err != nil {
			return err
		}
		tlsCfg = &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
	}

	metricsSrv := startMetrics(v.GetString("metrics-addr"), log)
	srv := wire.NewServer(wire.ServerConfig{
		Catalog:   memory.Default,
		User:      v.GetString("user"),
		Password:  v.GetString("password"),
		TLSConfig: tlsCfg,
		Logger:    logger.Get(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(v.GetString("addr")) }()

	var err error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err = <-errCh:
	}
	_ = srv.Close()
	stopMetrics(metricsSrv, log)
	log.Info("shutdown complete")
	return err
}

// startMetrics serves promhttp on addr. It returns nil when addr is empty.
func startMetrics(addr string, log *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func stopMetrics(srv *http.Server, log *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
}
