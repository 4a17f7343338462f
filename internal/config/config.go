package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rabbitwatch/internal/broker"
	"rabbitwatch/internal/journal"
	"rabbitwatch/internal/rules"
)

type Config struct {
	RabbitHost     string
	RabbitPort     string
	RabbitUser     string
	RabbitPassword string
	APITimeout     time.Duration

	WebhookURL     string
	WebhookTimeout time.Duration
	SendGridAPIKey string
	AlertEmail     string
	AlertEmailFrom string
	EmailTimeout   time.Duration

	QueueLengthMax   int64
	UnackedMax       int64
	MinConsumers     int64
	MemoryPercentMax float64
	DiskPercentMax   float64
	HaltThreshold    int64

	Interval time.Duration
	Cooldown time.Duration

	LongJobQueues    []string
	LongJobThreshold int64
	LongJobCooldown  time.Duration

	Addr             string
	JournalDSN       string
	JournalRetention time.Duration
	LogLevel         string
}

var defaults = map[string]any{
	"RABBITMQ_HOST":                   "localhost",
	"RABBITMQ_PORT":                   "15672",
	"RABBITMQ_DEFAULT_USER":           "rabbitmq",
	"RABBITMQ_DEFAULT_PASS":           "guest",
	"RABBITMQ_API_TIMEOUT":            "10s",
	"SLACK_WEBHOOK_URL":               "",
	"WEBHOOK_TIMEOUT":                 "10s",
	"SENDGRID_API_KEY":                "",
	"ALERT_EMAIL":                     "",
	"ALERT_EMAIL_FROM":                "",
	"EMAIL_TIMEOUT":                   "10s",
	"ALERT_MAX_QUEUE_LENGTH":          "1000",
	"ALERT_MAX_UNACKED_MESSAGES":      "500",
	"ALERT_MIN_CONSUMERS":             "1",
	"ALERT_MAX_MEMORY_PERCENT":        "80",
	"ALERT_MAX_DISK_PERCENT":          "85",
	"ALERT_PROCESSING_HALT_THRESHOLD": "100",
	"MONITORING_INTERVAL":             "60",
	"DEFAULT_ALERT_COOLDOWN":          "300",
	"LONG_JOB_QUEUES":                 "",
	"LONG_JOB_QUEUE_THRESHOLD":        "1000000",
	"LONG_JOB_QUEUE_COOLDOWN":         "10800",
	"APP_ADDR":                        ":9419",
	"APP_JOURNAL_DSN":                 journal.MemoryDSN,
	"APP_JOURNAL_RETENTION":           "24h",
	"LOG_LEVEL":                       "info",
}

// New returns a viper instance bound to the environment with every default set.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return FromViper(New())
}

func FromViper(v *viper.Viper) (Config, error) {
	p := &parser{v: v}
	cfg := Config{
		RabbitHost:     p.str("RABBITMQ_HOST"),
		RabbitPort:     p.str("RABBITMQ_PORT"),
		RabbitUser:     p.str("RABBITMQ_DEFAULT_USER"),
		RabbitPassword: p.str("RABBITMQ_DEFAULT_PASS"),
		APITimeout:     p.duration("RABBITMQ_API_TIMEOUT"),

		WebhookURL:     p.str("SLACK_WEBHOOK_URL"),
		WebhookTimeout: p.duration("WEBHOOK_TIMEOUT"),
		SendGridAPIKey: p.str("SENDGRID_API_KEY"),
		AlertEmail:     p.str("ALERT_EMAIL"),
		AlertEmailFrom: p.str("ALERT_EMAIL_FROM"),
		EmailTimeout:   p.duration("EMAIL_TIMEOUT"),

		QueueLengthMax:   p.int("ALERT_MAX_QUEUE_LENGTH"),
		UnackedMax:       p.int("ALERT_MAX_UNACKED_MESSAGES"),
		MinConsumers:     p.int("ALERT_MIN_CONSUMERS"),
		MemoryPercentMax: p.percent("ALERT_MAX_MEMORY_PERCENT"),
		DiskPercentMax:   p.percent("ALERT_MAX_DISK_PERCENT"),
		HaltThreshold:    p.int("ALERT_PROCESSING_HALT_THRESHOLD"),

		Interval: p.seconds("MONITORING_INTERVAL"),
		Cooldown: p.positiveSeconds("DEFAULT_ALERT_COOLDOWN"),

		LongJobQueues:    splitList(p.str("LONG_JOB_QUEUES")),
		LongJobThreshold: p.int("LONG_JOB_QUEUE_THRESHOLD"),
		LongJobCooldown:  p.positiveSeconds("LONG_JOB_QUEUE_COOLDOWN"),

		Addr:             p.str("APP_ADDR"),
		JournalDSN:       p.str("APP_JOURNAL_DSN"),
		JournalRetention: p.duration("APP_JOURNAL_RETENTION"),
		LogLevel:         p.str("LOG_LEVEL"),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("MONITORING_INTERVAL must be positive")
	}
	if cfg.RabbitHost == "" || cfg.RabbitPort == "" {
		return Config{}, fmt.Errorf("RABBITMQ_HOST and RABBITMQ_PORT are required")
	}
	return cfg, nil
}

func (c Config) Broker() broker.Config {
	return broker.Config{
		Host:     c.RabbitHost,
		Port:     c.RabbitPort,
		User:     c.RabbitUser,
		Password: c.RabbitPassword,
		Timeout:  c.APITimeout,
	}
}

func (c Config) Thresholds() rules.Thresholds {
	return rules.Thresholds{
		QueueLengthMax:   c.QueueLengthMax,
		UnackedMax:       c.UnackedMax,
		MinConsumers:     c.MinConsumers,
		MemoryPercentMax: c.MemoryPercentMax,
		DiskPercentMax:   c.DiskPercentMax,
		HaltThreshold:    c.HaltThreshold,
	}
}

// Overrides expands LONG_JOB_QUEUES into per-queue rule overrides.
func (c Config) Overrides() []rules.QueueOverride {
	out := make([]rules.QueueOverride, 0, len(c.LongJobQueues))
	for _, name := range c.LongJobQueues {
		out = append(out, rules.QueueOverride{
			Name:           name,
			QueueLengthMax: c.LongJobThreshold,
			Cooldown:       c.LongJobCooldown,
		})
	}
	return out
}

// parser records the first conversion error so Load can report it.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, val, err)
	}
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) int(key string) int64 {
	s := p.str(key)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail(key, s, err)
		return 0
	}
	if n < 0 {
		p.fail(key, s, fmt.Errorf("must not be negative"))
	}
	return n
}

func (p *parser) percent(key string) float64 {
	s := p.str(key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s, err)
		return 0
	}
	if f <= 0 || f > 100 {
		p.fail(key, s, fmt.Errorf("must be in (0,100]"))
	}
	return f
}

// seconds accepts a bare number of seconds or a Go duration string.
func (p *parser) seconds(key string) time.Duration {
	s := p.str(key)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			p.fail(key, s, fmt.Errorf("must not be negative"))
		}
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s, err)
		return 0
	}
	return d
}

func (p *parser) positiveSeconds(key string) time.Duration {
	d := p.seconds(key)
	if d == 0 {
		p.fail(key, p.str(key), fmt.Errorf("must be positive"))
	}
	return d
}

func (p *parser) duration(key string) time.Duration {
	s := p.str(key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s, err)
		return 0
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
