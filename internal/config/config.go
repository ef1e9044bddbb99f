package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	InstanceID  string `envconfig:"INSTANCE_ID"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Scheduler
	SchedulerEnabled  bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1m"`
	SchedulerTimezone string        `envconfig:"SCHEDULER_TIMEZONE" default:"UTC"`

	// Workers
	ProcessorEnabled bool `envconfig:"PROCESSOR_ENABLED" default:"true"`
	DeliveryEnabled  bool `envconfig:"DELIVERY_ENABLED" default:"true"`

	// Topics
	TopicActions string `envconfig:"TOPIC_ACTIONS" default:"alert.actions"`
	TopicEmail   string `envconfig:"TOPIC_EMAIL" default:"email"`
	TopicSMS     string `envconfig:"TOPIC_SMS" default:"sms"`

	// Queue
	QueuePollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
	QueueBatchSize    int           `envconfig:"QUEUE_BATCH_SIZE" default:"10"`
	QueueLease        time.Duration `envconfig:"QUEUE_LEASE" default:"30s"`
	QueueMaxAttempts  int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`

	// External services
	MetricsBaseURL       string        `envconfig:"METRICS_BASE_URL" default:"http://localhost:8085"`
	LoaderBaseURL        string        `envconfig:"LOADER_BASE_URL" default:"http://localhost:8083"`
	EvaluatorCallTimeout time.Duration `envconfig:"EVALUATOR_CALL_TIMEOUT" default:"5s"`
	MetricCacheTTL       time.Duration `envconfig:"METRIC_CACHE_TTL" default:"1m"`

	// Delivery
	EmailShoutrrrURL string `envconfig:"EMAIL_SHOUTRRR_URL"`
	SMSShoutrrrURL   string `envconfig:"SMS_SHOUTRRR_URL"`
	DeliveryTitle    string `envconfig:"DELIVERY_TITLE" default:"AlertHub"`

	// Retention
	RetentionInterval time.Duration `envconfig:"RETENTION_INTERVAL" default:"1h"`
	QueueRetention    time.Duration `envconfig:"QUEUE_RETENTION" default:"168h"`
	TickRetention     time.Duration `envconfig:"TICK_RETENTION" default:"24h"`

	// Shutdown
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.SchedulerTimezone); err != nil {
		return nil, fmt.Errorf("load config: invalid SCHEDULER_TIMEZONE %q: %w", cfg.SchedulerTimezone, err)
	}

	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("load config: SCHEDULER_INTERVAL must be positive")
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	return &cfg, nil
}

// Location returns the reference timezone used to match action schedules.
// Load has already validated the name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "alerthub"
	}
	return host + "-" + uuid.NewString()[:8]
}
