package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sqlrest/sqlrest/pkg/config"
	mw "github.com/sqlrest/sqlrest/pkg/httputil/middleware"
	"github.com/sqlrest/sqlrest/pkg/metrics"
	"github.com/sqlrest/sqlrest/pkg/rest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Starts the REST server, connects to every configured target (retrying unreachable ones in the background), and serves discovered tables and views`,
	Run:   runServer,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("server.listenAddr", "l", "", "server listen address")
	f.String("server.baseURL", "", "base URL for API endpoints")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.listenAddr", "", "metrics listen address")

	viper.BindPFlags(f)
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}
	if len(cfg.Targets) == 0 {
		log.Fatal("No connection targets configured")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// flag overrides
	if listenAddr := viper.GetString("server.listenAddr"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if baseURL := viper.GetString("server.baseURL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}

	registry := rest.NewRegistry()
	docs := rest.NewDocumentBuilder(registry, cfg.Server.BaseURL, rest.DocumentInfo{
		Title:       "sqlrest",
		Description: "REST API derived from database catalogs",
		Version:     config.Version,
	})
	server := rest.NewServer(registry, docs, cfg.Server.BaseURL, logger)

	server.AddMiddleware(mw.RequestID, mw.CORSWithOptions(nil))
	if logLevel != "none" {
		server.AddMiddleware(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One supervisor per target; an unreachable database keeps retrying
	// without holding anything else up.
	for _, target := range cfg.Targets {
		go func(t config.Target) {
			if err := rest.NewSupervisor(t, registry, docs, logger).Run(ctx); err != nil {
				logger.Warn("supervisor stopped", zap.String("target", t.Name), zap.Error(err))
			}
		}(target)
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled || viper.GetBool("metrics.enabled") {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.ListenAddr})
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	wg.Wait()
}
