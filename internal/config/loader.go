package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/tutaviendo/storefront/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrUnknownStore is returned by FindStore when no store has the given id or slug.
var ErrUnknownStore = errors.New("unknown store")

// AppConfig is the main configuration structure for the application.
// It aggregates configurations for all subsystems.
type AppConfig struct {
	App       AppSettings          `yaml:"app"`       // General application configuration.
	Kafka     KafkaConfig          `yaml:"kafka"`     // Kafka configuration.
	WhatsApp  WhatsAppConfig       `yaml:"whatsapp"`  // Deep link target.
	Analytics AnalyticsConfig      `yaml:"analytics"` // Event log settings.
	API       APIConfig            `yaml:"api"`       // HTTP server.
	Producer  ProducerConfig       `yaml:"producer"`  // Producer configuration.
	Tracker   TrackerConfig        `yaml:"tracker"`   // Tracker configuration.
	Monitor   MonitorConfig        `yaml:"monitor"`   // Monitor configuration.
	Retry     RetryConfig          `yaml:"retry"`     // Retry configuration.
	DLQ       DLQConfig            `yaml:"dlq"`       // Dead Letter Queue configuration.
	Stores    []models.StoreConfig `yaml:"stores"`    // Store catalog.
}

// AppSettings contains general application settings.
type AppSettings struct {
	Env      string `yaml:"env"`       // Execution environment (e.g., development, production).
	LogLevel string `yaml:"log_level"` // Logging level.
}

// KafkaConfig contains Kafka connection settings.
type KafkaConfig struct {
	Enabled       bool   `yaml:"enabled"`        // Publish recorded events from the API server.
	Broker        string `yaml:"broker"`         // Kafka broker address.
	Topic         string `yaml:"topic"`          // Analytics events topic.
	ConsumerGroup string `yaml:"consumer_group"` // Consumer group identifier.
}

// WhatsAppConfig configures the deep link.
type WhatsAppConfig struct {
	Host string `yaml:"host"` // Deep link host, e.g. wa.me or api.whatsapp.com.
}

// AnalyticsConfig configures the event log.
type AnalyticsConfig struct {
	StoreFile            string `yaml:"store_file"`             // File backing the event log.
	QuotaBytes           int    `yaml:"quota_bytes"`            // Storage quota, 0 for none.
	Timezone             string `yaml:"timezone"`               // IANA zone defining calendar days.
	RetentionDays        int    `yaml:"retention_days"`         // Events older than this are pruned.
	MaxPersisted         int    `yaml:"max_persisted"`          // Most recent events written per save.
	QuotaFallback        int    `yaml:"quota_fallback"`         // Events kept after a quota error.
	DedupWindowDays      int    `yaml:"dedup_window_days"`      // Visit dedup index horizon.
	PruneIntervalMinutes int    `yaml:"prune_interval_minutes"` // Periodic retention sweep.
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr      string `yaml:"addr"`       // Listen address.
	LogFile   string `yaml:"log_file"`   // Structured log file, empty for stdout.
	JWTSecret string `yaml:"jwt_secret"` // HS256 secret for dashboard routes, empty to disable.
}

// ProducerConfig contains producer-specific settings.
type ProducerConfig struct {
	IntervalMs     int    `yaml:"interval_ms"`      // Interval between simulated orders in milliseconds.
	FlushTimeoutMs int    `yaml:"flush_timeout_ms"` // Wait timeout for sending messages in milliseconds.
	StoreID        string `yaml:"store_id"`         // Store the simulator shops in.
}

// TrackerConfig contains tracker-specific settings.
type TrackerConfig struct {
	LogFile                string `yaml:"log_file"`                 // Path to the structured log file.
	EventsFile             string `yaml:"events_file"`              // Path to the audit trail.
	MetricsIntervalSeconds int    `yaml:"metrics_interval_seconds"` // Metrics calculation interval in seconds.
	ReadTimeoutMs          int    `yaml:"read_timeout_ms"`          // Kafka read timeout in milliseconds.
	MaxConsecutiveErrors   int    `yaml:"max_consecutive_errors"`   // Max consecutive errors.
}

// MonitorConfig contains monitor-specific settings.
type MonitorConfig struct {
	MaxRecentLogs int    `yaml:"max_recent_logs"` // Max recent logs to display.
	UIUpdateMs    int    `yaml:"ui_update_ms"`    // UI update frequency in milliseconds.
	Range         string `yaml:"range"`           // Preset range of the stats table.
}

// RetryConfig contains retry model settings.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`     // Maximum number of attempts.
	InitialDelayMs int     `yaml:"initial_delay_ms"` // Initial delay in milliseconds.
	MaxDelayMs     int     `yaml:"max_delay_ms"`     // Maximum delay in milliseconds.
	Multiplier     float64 `yaml:"multiplier"`       // Backoff multiplier.
}

// DLQConfig contains Dead Letter Queue (DLQ) settings.
type DLQConfig struct {
	Enabled bool   `yaml:"enabled"` // Enables or disables DLQ.
	Topic   string `yaml:"topic"`   // Kafka topic for DLQ.
}

// DefaultConfig returns a configuration with default values.
// These values are used if no external configuration is provided.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		App: AppSettings{
			Env:      "development",
			LogLevel: "info",
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Broker:        DefaultKafkaBroker,
			Topic:         DefaultTopic,
			ConsumerGroup: DefaultConsumerGroup,
		},
		WhatsApp: WhatsAppConfig{Host: DefaultWhatsAppHost},
		Analytics: AnalyticsConfig{
			StoreFile:            AnalyticsStoreFile,
			QuotaBytes:           AnalyticsStoreQuotaByte,
			Timezone:             AnalyticsTimezone,
			RetentionDays:        int(AnalyticsRetention / (24 * time.Hour)),
			MaxPersisted:         AnalyticsMaxPersisted,
			QuotaFallback:        AnalyticsQuotaFallback,
			DedupWindowDays:      int(AnalyticsDedupWindow / (24 * time.Hour)),
			PruneIntervalMinutes: int(AnalyticsPruneInterval / time.Minute),
		},
		API: APIConfig{
			Addr: DefaultAPIListenAddr,
		},
		Producer: ProducerConfig{
			IntervalMs:     int(ProducerMessageInterval / time.Millisecond),
			FlushTimeoutMs: int(ProducerFlushTimeout / time.Millisecond),
			StoreID:        ProducerDefaultStoreID,
		},
		Tracker: TrackerConfig{
			LogFile:                TrackerLogFile,
			EventsFile:             TrackerEventsFile,
			MetricsIntervalSeconds: int(TrackerMetricsInterval / time.Second),
			ReadTimeoutMs:          int(TrackerConsumerReadTimeout / time.Millisecond),
			MaxConsecutiveErrors:   TrackerMaxConsecutiveErrors,
		},
		Monitor: MonitorConfig{
			MaxRecentLogs: MonitorMaxRecentLogs,
			UIUpdateMs:    int(MonitorUIUpdateInterval / time.Millisecond),
			Range:         MonitorDefaultRange,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMs: 100,
			MaxDelayMs:     5000,
			Multiplier:     2.0,
		},
		DLQ: DLQConfig{
			Enabled: true,
			Topic:   DefaultDLQTopic,
		},
		Stores: []models.StoreConfig{DemoStore()},
	}
}

// DemoStore is the catalog used when no stores are configured.
func DemoStore() models.StoreConfig {
	return models.StoreConfig{
		ID:             ProducerDefaultStoreID,
		Name:           "Almacén Demo",
		Slug:           "almacen-demo",
		WhatsAppNumber: "+54 9 11 5555-0000",
		Currency:       ProducerDefaultCurrency,
		PaymentMethods: []string{"Efectivo", "Transferencia", "Mercado Pago"},
		DeliveryMethods: []models.DeliveryOption{
			{Label: "Retiro en local", Cost: 0},
			{Label: "Envío a domicilio", Cost: 1500},
		},
		Products: []models.Product{
			{ID: "alfajor", Name: "Alfajor de maicena", Price: 800},
			{ID: "yerba", Name: "Yerba mate 1kg", Price: 4200},
			{ID: "dulce", Name: "Dulce de leche 400g", Price: 2100},
			{ID: "medialunas", Name: "Medialunas x6", Price: 3000},
		},
	}
}

// Load loads the configuration from a YAML file, utilizing default values if necessary.
// Environment variables override values from the YAML file.
func Load(configPath string) (*AppConfig, error) {
	cfg := DefaultConfig()

	// Try to load from YAML file
	if configPath != "" {
		if err := loadFromYAML(configPath, cfg); err != nil {
			// Not found file is acceptable, use defaults
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error loading config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides the configuration with environment variables.
func loadFromEnv(cfg *AppConfig) {
	// App Parameters
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}

	// Kafka Parameters
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v)
	}
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		cfg.Kafka.Broker = v
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}

	if v := os.Getenv("WHATSAPP_HOST"); v != "" {
		cfg.WhatsApp.Host = v
	}

	// Analytics Parameters
	if v := os.Getenv("ANALYTICS_STORE_FILE"); v != "" {
		cfg.Analytics.StoreFile = v
	}
	if v := os.Getenv("ANALYTICS_TIMEZONE"); v != "" {
		cfg.Analytics.Timezone = v
	}
	if v := os.Getenv("ANALYTICS_QUOTA_BYTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.QuotaBytes = i
		}
	}

	// API Parameters
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// Producer Parameters
	if v := os.Getenv("PRODUCER_INTERVAL_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Producer.IntervalMs = i
		}
	}
	if v := os.Getenv("PRODUCER_STORE_ID"); v != "" {
		cfg.Producer.StoreID = v
	}

	// Tracker Parameters
	if v := os.Getenv("TRACKER_LOG_FILE"); v != "" {
		cfg.Tracker.LogFile = v
	}
	if v := os.Getenv("TRACKER_EVENTS_FILE"); v != "" {
		cfg.Tracker.EventsFile = v
	}

	if v := os.Getenv("MONITOR_RANGE"); v != "" {
		cfg.Monitor.Range = v
	}

	// Retry Parameters
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = i
		}
	}

	// DLQ Parameters
	if v := os.Getenv("DLQ_ENABLED"); v != "" {
		cfg.DLQ.Enabled = parseBool(v)
	}
	if v := os.Getenv("DLQ_TOPIC"); v != "" {
		cfg.DLQ.Topic = v
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// Validate checks the values that would otherwise fail late, at first use.
func (c *AppConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Stores))
	for i, s := range c.Stores {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("stores[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("stores[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Location returns the calendar-day zone of the analytics log.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics timezone %q: %w", c.Analytics.Timezone, err)
	}
	return loc, nil
}

// FindStore returns the store whose id or slug matches key.
func (c *AppConfig) FindStore(key string) (*models.StoreConfig, error) {
	for i := range c.Stores {
		if c.Stores[i].ID == key || (c.Stores[i].Slug != "" && c.Stores[i].Slug == key) {
			return &c.Stores[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStore, key)
}

// GetProducerInterval returns the producer interval as a duration.
func (c *AppConfig) GetProducerInterval() time.Duration {
	return time.Duration(c.Producer.IntervalMs) * time.Millisecond
}

// GetFlushTimeout returns the flush timeout as a duration.
func (c *AppConfig) GetFlushTimeout() time.Duration {
	return time.Duration(c.Producer.FlushTimeoutMs) * time.Millisecond
}

// GetMetricsInterval returns the metrics interval as a duration.
func (c *AppConfig) GetMetricsInterval() time.Duration {
	return time.Duration(c.Tracker.MetricsIntervalSeconds) * time.Second
}

// GetReadTimeout returns the read timeout as a duration.
func (c *AppConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Tracker.ReadTimeoutMs) * time.Millisecond
}

// GetInitialRetryDelay returns the initial retry delay as a duration.
func (c *AppConfig) GetInitialRetryDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}

// GetMaxRetryDelay returns the maximum retry delay as a duration.
func (c *AppConfig) GetMaxRetryDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// GetRetention returns the analytics retention horizon.
func (c *AppConfig) GetRetention() time.Duration {
	return time.Duration(c.Analytics.RetentionDays) * 24 * time.Hour
}

// GetDedupWindow returns the visit dedup index horizon.
func (c *AppConfig) GetDedupWindow() time.Duration {
	return time.Duration(c.Analytics.DedupWindowDays) * 24 * time.Hour
}

// GetPruneInterval returns the period of the retention sweep.
func (c *AppConfig) GetPruneInterval() time.Duration {
	return time.Duration(c.Analytics.PruneIntervalMinutes) * time.Minute
}

// GetUIUpdateInterval returns the monitor refresh period.
func (c *AppConfig) GetUIUpdateInterval() time.Duration {
	return time.Duration(c.Monitor.UIUpdateMs) * time.Millisecond
}
