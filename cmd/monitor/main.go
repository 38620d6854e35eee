/*
Monitor entry point: terminal dashboard of the storefront pipeline.

Tails the tracker log and audit trail, and reads the analytics file to show
per-store visits, orders and revenue. Keys: r cycles the date range, q quits.
Build: go build -o monitor ./cmd/monitor
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/internal/monitor"
	"github.com/tutaviendo/storefront/pkg/models"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := ui.Init(); err != nil {
		fmt.Printf("Error initializing the UI: %v\n", err)
		os.Exit(1)
	}
	defer ui.Close()

	stats := monitor.NewStatsView(
		kvstore.NewFileStore(cfg.Analytics.StoreFile, 0),
		loc, nil, cfg.Monitor.Range, config.MonitorTopStores,
	)
	stats.Refresh()
	mon := monitor.New(stats)

	logChan := make(chan models.LogEntry, config.MonitorLogChannelBuffer)
	eventChan := make(chan models.EventEntry, config.MonitorEventChannelBuffer)
	done := make(chan struct{})
	defer close(done)

	go monitor.MonitorFile(cfg.Tracker.LogFile, logChan, nil, done)
	go monitor.MonitorFile(cfg.Tracker.EventsFile, nil, eventChan, done)
	go mon.Run(logChan, eventChan, done)

	dash := monitor.NewDashboard()
	dash.Layout(ui.TerminalDimensions())

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(cfg.GetUIUpdateInterval())
	defer ticker.Stop()
	statsTicker := time.NewTicker(config.MonitorStatsInterval)
	defer statsTicker.Stop()

	render := func() {
		mon.Metrics.Uptime = time.Since(mon.Metrics.StartTime)
		mon.UpdateUI(dash)
		ui.Render(dash.Drawables()...)
	}
	render()

	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			case "r":
				stats.NextRange()
				stats.Refresh()
				render()
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				dash.Layout(payload.Width, payload.Height)
				ui.Clear()
				render()
			}
		case <-statsTicker.C:
			stats.Refresh()
		case <-ticker.C:
			render()
		}
	}
}
