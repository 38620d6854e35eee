/*
Package config holds the shared configuration of the storefront services.

It contains the constants and structures used by the API server, the event
producer, the tracker and the monitor.
*/
package config

import "time"

// Kafka defaults
const (
	DefaultKafkaBroker   = "localhost:9092"
	DefaultConsumerGroup = "storefront-tracker-group"
	DefaultTopic         = "storefront-events"
	DefaultDLQTopic      = "storefront-events-dlq"
)

// Log and data files
const (
	TrackerLogFile       = "tracker.log"
	TrackerEventsFile    = "tracker.events"
	StorefrontLogFile    = "storefront.log"
	AnalyticsStoreFile   = "analytics.json"
	DefaultStoresFile    = "stores.yaml"
	DefaultConfigFile    = "config.yaml"
	DefaultWhatsAppHost  = "wa.me"
	DefaultAPIListenAddr = ":8080"
)

// Common timeouts
const (
	FlushTimeoutMs = 15000
)

// Analytics defaults
const (
	AnalyticsRetention      = 90 * 24 * time.Hour
	AnalyticsMaxPersisted   = 1000
	AnalyticsQuotaFallback  = 500
	AnalyticsDedupWindow    = 7 * 24 * time.Hour
	AnalyticsPruneInterval  = 24 * time.Hour
	AnalyticsStoreQuotaByte = 5 * 1024 * 1024
	AnalyticsTimezone       = "America/Argentina/Buenos_Aires"
)

// Producer (event publisher and traffic simulator)
const (
	ProducerMessageInterval     = 2 * time.Second
	ProducerFlushTimeout        = 5 * time.Second
	ProducerDeliveryChannelSize = 10000
	ProducerDefaultCurrency     = "ARS"
	ProducerDefaultStoreID      = "demo-store"
	ProducerServiceName         = "storefront-simulator"
)

// Tracker (consumer)
const (
	TrackerMetricsInterval      = 30 * time.Second
	TrackerConsumerReadTimeout  = 1 * time.Second
	TrackerMaxConsecutiveErrors = 3
	TrackerServiceName          = "storefront-tracker"
)

// API server
const (
	APIServiceName     = "storefront-api"
	APIReadTimeout     = 10 * time.Second
	APIWriteTimeout    = 10 * time.Second
	APIShutdownTimeout = 5 * time.Second
)

// Monitor
const (
	MonitorMaxRecentLogs      = 20
	MonitorMaxRecentEvents    = 20
	MonitorMaxHistorySize     = 50
	MonitorLogChannelBuffer   = 100
	MonitorEventChannelBuffer = 100
	MonitorDefaultRange       = "7d"
	MonitorTopStores          = 10

	// Success rate thresholds (%)
	MonitorSuccessRateExcellent = 95.0
	MonitorSuccessRateGood      = 80.0

	// Throughput thresholds (messages per second)
	MonitorThroughputNormal = 0.3
	MonitorThroughputLow    = 0.1

	// Quality score thresholds
	MonitorQualityThroughputHigh   = 0.5
	MonitorQualityThroughputMedium = 0.3
	MonitorQualityThroughputLow    = 0.1
	MonitorQualityScoreExcellent   = 90.0
	MonitorQualityScoreGood        = 70.0
	MonitorQualityScoreMedium      = 50.0

	// Time since last error
	MonitorErrorTimeoutCritical = 1 * time.Minute
	MonitorErrorTimeoutWarning  = 5 * time.Minute

	MonitorFileCheckInterval = 1 * time.Second
	MonitorFilePollInterval  = 200 * time.Millisecond
	MonitorUIUpdateInterval  = 500 * time.Millisecond
	MonitorStatsInterval     = 5 * time.Second

	MonitorMaxLogRowLength   = 75
	MonitorMaxEventRowLength = 75
	MonitorTruncateSuffix    = "..."
)
