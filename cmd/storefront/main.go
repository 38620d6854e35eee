/*
Storefront API entry point.

Serves the checkout (store config, visits, product views, WhatsApp orders)
and the merchant stats. With kafka.enabled every recorded event is also
published to the tracker topic.
Build: go build -o storefront ./cmd/storefront
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/api"
	"github.com/tutaviendo/storefront/internal/composer"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/internal/producer"
	"github.com/tutaviendo/storefront/pkg/models"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to the YAML configuration")
	issueFor := flag.String("issue-token", "", "Print a dashboard token for this subject and exit")
	tokenStore := flag.String("token-store", "", "Restrict the issued token to a store id")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the issued token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Fatal error loading configuration: %v", err)
	}

	if *issueFor != "" {
		token, err := api.IssueToken(cfg.API.JWTSecret, *issueFor, *tokenStore, *tokenTTL)
		if err != nil {
			log.Fatalf("Fatal error issuing token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger := logging.NewWriterLogger(os.Stdout, config.APIServiceName)
	if cfg.API.LogFile != "" {
		if logger, err = logging.NewLogger(cfg.API.LogFile, config.APIServiceName); err != nil {
			log.Fatalf("Fatal error opening log file: %v", err)
		}
	}
	defer logger.Close()

	var sink analytics.Sink
	var publisher *producer.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err = producer.Connect(producer.NewConfig(cfg), logger)
		if err != nil {
			log.Fatalf("Fatal error connecting to Kafka: %v", err)
		}
		defer publisher.Close()
		sink = publisher
		fmt.Printf("📤 Publishing analytics events to topic '%s'\n", cfg.Kafka.Topic)
	}

	opts, err := analytics.OptionsFromConfig(cfg, logger, sink)
	if err != nil {
		log.Fatalf("Fatal error configuring analytics: %v", err)
	}
	events := analytics.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := events.Init(ctx); err != nil {
		log.Fatalf("Fatal error loading analytics: %v", err)
	}
	defer func() {
		events.Dispose()
		outcome := events.Save()
		logger.Log(models.LogLevelINFO, "Analytics log saved", map[string]interface{}{
			"outcome": outcome.String(),
			"events":  events.Len(),
		})
	}()

	handler := api.NewHandler(cfg, events, composer.NewDispatcher(cfg.WhatsApp.Host, nil, logger), logger, cfg.API.JWTSecret)
	srv := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  config.APIReadTimeout,
		WriteTimeout: config.APIWriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Log(models.LogLevelINFO, "Storefront API listening", map[string]interface{}{
			"addr":          cfg.API.Addr,
			"stores":        len(cfg.Stores),
			"events_loaded": events.Len(),
			"auth_enabled":  cfg.API.JWTSecret != "",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("🟢 Storefront API is running on %s\n", cfg.API.Addr)

	select {
	case <-ctx.Done():
		fmt.Println("\n⚠️  Stop signal received...")
	case err := <-errChan:
		logger.LogError("HTTP server failed", err, nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.APIShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("HTTP server shutdown", err, nil)
	}

	if publisher != nil {
		events.Dispose()
		s := publisher.Stats()
		logger.Log(models.LogLevelINFO, "Publisher stopped", map[string]interface{}{
			"published": s.Published,
			"delivered": s.Delivered,
			"failed":    s.Failed,
			"retries":   s.Retries,
		})
	}
	fmt.Println("🔴 Storefront API stopped.")
}
