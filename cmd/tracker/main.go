/*
Tracker entry point.

Consumes storefront analytics events from Kafka into the analytics file read
by the monitor, with a dead letter queue for messages that cannot be stored.
Build: go build -o tracker ./cmd/tracker
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/internal/retry"
	"github.com/tutaviendo/storefront/internal/tracker"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Fatal error loading configuration: %v", err)
	}

	opts, err := analytics.OptionsFromConfig(cfg, logging.NewWriterLogger(os.Stderr, config.TrackerServiceName), nil)
	if err != nil {
		log.Fatalf("Fatal error configuring analytics: %v", err)
	}
	store := analytics.New(opts)
	if err := store.Init(context.Background()); err != nil {
		log.Fatalf("Fatal error loading analytics: %v", err)
	}

	dlq, err := retry.NewDeadLetterQueue(cfg.Kafka.Broker, cfg.DLQ.Topic, cfg.DLQ.Enabled)
	if err != nil {
		log.Fatalf("Fatal error during initialization: %v", err)
	}
	defer dlq.Close()

	tcfg := tracker.NewConfig(cfg)
	trk := tracker.New(tcfg, store, dlq)
	if err := trk.Initialize(); err != nil {
		log.Fatalf("Fatal error during initialization: %v", err)
	}
	defer trk.Close()

	fmt.Println("🟢 The consumer is running...")
	fmt.Printf("📝 System observability logs in %s\n", tcfg.LogFile)
	fmt.Printf("📋 Message audit trail in %s\n", tcfg.EventsFile)
	fmt.Printf("💾 Analytics events stored in %s\n", cfg.Analytics.StoreFile)

	// Handle stop signals
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		trk.Run()
		close(done)
	}()

	select {
	case <-sigchan:
		fmt.Println("\n⚠️ Stop signal received...")
		trk.Stop()
		<-done
	case <-done:
	}

	if dlq.IsEnabled() {
		s := dlq.GetStats()
		fmt.Printf("📮 %d messages dead-lettered\n", s.MessagesSent)
	}
	fmt.Println("🔴 Consumer stopped.")
}
