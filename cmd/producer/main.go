/*
Producer entry point: simulated storefront traffic.

Plays customers of one store browsing and ordering through WhatsApp. Every
visit, product view and order is published to Kafka for the tracker.
Build: go build -o producer ./cmd/producer
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/internal/producer"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Fatal error loading configuration: %v\n", err)
		os.Exit(1)
	}
	store, err := cfg.FindStore(cfg.Producer.StoreID)
	if err != nil {
		fmt.Printf("Fatal error: %v\n", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Printf("Fatal error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWriterLogger(os.Stdout, config.ProducerServiceName)

	pcfg := producer.NewConfig(cfg)
	pcfg.Source = config.ProducerServiceName
	publisher, err := producer.Connect(pcfg, logger)
	if err != nil {
		fmt.Printf("Fatal error during initialization: %v\n", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// The tracker owns the analytics file; simulated events only live in
	// memory here and reach it through Kafka.
	events := analytics.New(analytics.Options{
		Local:    kvstore.NewMemoryStore(0),
		Logger:   logger,
		Location: loc,
		Sink:     publisher,
	})
	if err := events.Init(context.Background()); err != nil {
		fmt.Printf("Fatal error during initialization: %v\n", err)
		os.Exit(1)
	}
	defer events.Dispose()

	sim := producer.NewSimulator(producer.SimulatorConfig{
		Interval: cfg.GetProducerInterval(),
		Host:     cfg.WhatsApp.Host,
	}, store, events, logger)

	fmt.Println("🟢 Producer is started and ready to send messages...")
	fmt.Printf("📤 Publishing '%s' traffic to topic '%s'\n", store.Name, pcfg.Topic)

	// Handle stop signals
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	sim.Run(sigchan)
	events.Dispose()

	s := publisher.Stats()
	fmt.Printf("📊 %d events published, %d retries\n", s.Published, s.Retries)
}
