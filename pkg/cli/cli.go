package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/mail"
	"github.com/telekom/itsmctl/pkg/slamonitor"
)

type Config struct {
	Debug bool

	// Backend connection
	Server                string
	Token                 string
	TokenFile             string
	TenantID              string
	TenantCode            string
	CAFile                string
	InsecureSkipTLSVerify bool
	RequestTimeout        string

	// Polling
	Interval      string
	Status        string
	Severity      string
	ViolationType string
	EmitInitial   bool

	// HTTP server
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	RateLimit     float64
	RateBurst     int

	EscalationRules string

	Kafka   KafkaConfig
	Webhook WebhookConfig
	Mail    MailConfig
	Otel    OtelConfig
}

type KafkaConfig struct {
	Brokers       string
	Topic         string
	Compression   string
	TLS           bool
	TLSCAFile     string
	TLSCertFile   string
	TLSKeyFile    string
	TLSInsecure   bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
}

type WebhookConfig struct {
	URL string
	// Headers is a comma separated list of Name=Value pairs.
	Headers string
}

type MailConfig struct {
	Disable            bool
	Host               string
	Port               int
	User               string
	Password           string
	From               string
	FromName           string
	InsecureSkipVerify bool
	DefaultRecipients  string
	Branding           string
	TicketURL          string
}

type OtelConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Insecure     bool
	SamplingRate float64
}

// LoadDotEnv loads path into the environment. A missing file is not an error
// and variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Parse parses args (without the program name). Defaults come from the
// environment, so LoadDotEnv must run first.
func Parse(args []string) (*Config, error) {
	config := &Config{}
	fs := flag.NewFlagSet("sla-monitor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&config.Debug, "debug", getEnvBool("SLA_MONITOR_DEBUG", false), "Enable debug level logging")

	fs.StringVar(&config.Server, "server", getEnvString("ITSM_SERVER", ""), "Base URL of the ITSM backend")
	fs.StringVar(&config.Token, "token", getEnvString("ITSM_TOKEN", ""), "Bearer token for the ITSM backend")
	fs.StringVar(&config.TokenFile, "token-file", getEnvString("ITSM_TOKEN_FILE", ""),
		"File holding the bearer token; re-read on every 401")
	fs.StringVar(&config.TenantID, "tenant-id", getEnvString("ITSM_TENANT_ID", ""), "Tenant id sent as X-Tenant-ID")
	fs.StringVar(&config.TenantCode, "tenant-code", getEnvString("ITSM_TENANT_CODE", ""), "Tenant code sent as X-Tenant-Code")
	fs.StringVar(&config.CAFile, "ca-file", getEnvString("ITSM_CA_FILE", ""), "CA bundle for the ITSM backend")
	fs.BoolVar(&config.InsecureSkipTLSVerify, "insecure-skip-tls-verify", getEnvBool("ITSM_INSECURE_SKIP_TLS_VERIFY", false),
		"Skip verification of the backend certificate")
	fs.StringVar(&config.RequestTimeout, "request-timeout", getEnvString("ITSM_REQUEST_TIMEOUT", "30s"), "Timeout of a single backend request")

	fs.StringVar(&config.Interval, "interval", getEnvString("SLA_INTERVAL", slamonitor.DefaultInterval.String()), "Poll interval (e.g. '30s', '1m')")
	fs.StringVar(&config.Status, "status", getEnvString("SLA_STATUS", ""), "Only poll violations with this status")
	fs.StringVar(&config.Severity, "severity", getEnvString("SLA_SEVERITY", ""), "Only track violations with this severity")
	fs.StringVar(&config.ViolationType, "violation-type", getEnvString("SLA_VIOLATION_TYPE", ""), "Only track violations of this type")
	fs.BoolVar(&config.EmitInitial, "emit-initial", getEnvBool("SLA_EMIT_INITIAL", false),
		"Emit opened events for violations found by the first poll")

	fs.StringVar(&config.ListenAddress, "listen-address", getEnvString("LISTEN_ADDRESS", ":8080"), "Address of the health, metrics and snapshot server")
	fs.StringVar(&config.TLSCertFile, "tls-cert-file", getEnvString("TLS_CERT_FILE", ""), "Serve HTTPS with this certificate")
	fs.StringVar(&config.TLSKeyFile, "tls-key-file", getEnvString("TLS_KEY_FILE", ""), "Key of --tls-cert-file")
	fs.Float64Var(&config.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT", 20), "Requests per second per client on /api; 0 disables limiting")
	fs.IntVar(&config.RateBurst, "rate-burst", getEnvInt("RATE_BURST", 50), "Burst size of --rate-limit")

	fs.StringVar(&config.EscalationRules, "escalation-rules", getEnvString("ESCALATION_RULES", ""),
		"YAML escalation rule catalogue; alerts go to the level due for the violation age")

	fs.StringVar(&config.Kafka.Brokers, "kafka-brokers", getEnvString("KAFKA_BROKERS", ""), "Comma separated Kafka brokers; empty disables the Kafka sink")
	fs.StringVar(&config.Kafka.Topic, "kafka-topic", getEnvString("KAFKA_TOPIC", "itsm.sla.violations"), "Kafka topic for violation events")
	fs.StringVar(&config.Kafka.Compression, "kafka-compression", getEnvString("KAFKA_COMPRESSION", "snappy"), "none, gzip, snappy, lz4 or zstd")
	fs.BoolVar(&config.Kafka.TLS, "kafka-tls", getEnvBool("KAFKA_TLS", false), "Connect to the brokers with TLS")
	fs.StringVar(&config.Kafka.TLSCAFile, "kafka-tls-ca-file", getEnvString("KAFKA_TLS_CA_FILE", ""), "CA certificate of the brokers")
	fs.StringVar(&config.Kafka.TLSCertFile, "kafka-tls-cert-file", getEnvString("KAFKA_TLS_CERT_FILE", ""), "Client certificate for mTLS")
	fs.StringVar(&config.Kafka.TLSKeyFile, "kafka-tls-key-file", getEnvString("KAFKA_TLS_KEY_FILE", ""), "Client key for mTLS")
	fs.BoolVar(&config.Kafka.TLSInsecure, "kafka-tls-insecure", getEnvBool("KAFKA_TLS_INSECURE", false), "Skip broker certificate verification")
	fs.StringVar(&config.Kafka.SASLMechanism, "kafka-sasl-mechanism", getEnvString("KAFKA_SASL_MECHANISM", ""), "PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512")
	fs.StringVar(&config.Kafka.SASLUsername, "kafka-sasl-username", getEnvString("KAFKA_SASL_USERNAME", ""), "SASL username")
	fs.StringVar(&config.Kafka.SASLPassword, "kafka-sasl-password", getEnvString("KAFKA_SASL_PASSWORD", ""), "SASL password")

	fs.StringVar(&config.Webhook.URL, "webhook-url", getEnvString("WEBHOOK_URL", ""), "POST violation events to this URL")
	fs.StringVar(&config.Webhook.Headers, "webhook-headers", getEnvString("WEBHOOK_HEADERS", ""), "Extra webhook headers as Name=Value,Name=Value")

	fs.BoolVar(&config.Mail.Disable, "disable-email", getEnvBool("DISABLE_EMAIL", false), "Disable email alerts")
	fs.StringVar(&config.Mail.Host, "mail-host", getEnvString("MAIL_HOST", ""), "SMTP host; empty disables email alerts")
	fs.IntVar(&config.Mail.Port, "mail-port", getEnvInt("MAIL_PORT", 587), "SMTP port")
	fs.StringVar(&config.Mail.User, "mail-user", getEnvString("MAIL_USER", ""), "SMTP user")
	fs.StringVar(&config.Mail.Password, "mail-password", getEnvString("MAIL_PASSWORD", ""), "SMTP password")
	fs.StringVar(&config.Mail.From, "mail-from", getEnvString("MAIL_FROM", ""), "Sender address")
	fs.StringVar(&config.Mail.FromName, "mail-from-name", getEnvString("MAIL_FROM_NAME", ""), "Sender display name")
	fs.BoolVar(&config.Mail.InsecureSkipVerify, "mail-insecure-skip-verify", getEnvBool("MAIL_INSECURE_SKIP_VERIFY", false),
		"Skip SMTP certificate verification")
	fs.StringVar(&config.Mail.DefaultRecipients, "mail-default-recipients", getEnvString("MAIL_DEFAULT_RECIPIENTS", ""),
		"Recipients used when no escalation level names one")
	fs.StringVar(&config.Mail.Branding, "mail-branding", getEnvString("MAIL_BRANDING", "ITSM"), "Product name shown in alert mails")
	fs.StringVar(&config.Mail.TicketURL, "mail-ticket-url", getEnvString("MAIL_TICKET_URL", ""),
		"Ticket link pattern with one %d for the ticket id")

	fs.BoolVar(&config.Otel.Enabled, "otel-enabled", getEnvBool("OTEL_ENABLED", false), "Enable OpenTelemetry tracing")
	fs.StringVar(&config.Otel.Exporter, "otel-exporter", getEnvString("OTEL_EXPORTER", "otlp"), "otlp, stdout or none")
	fs.StringVar(&config.Otel.Endpoint, "otel-endpoint", getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"), "OTLP gRPC collector endpoint")
	fs.BoolVar(&config.Otel.Insecure, "otel-insecure", getEnvBool("OTEL_INSECURE", false), "Disable TLS towards the collector")
	fs.Float64Var(&config.Otel.SamplingRate, "otel-sampling-rate", getEnvFloat("OTEL_SAMPLING_RATE", 1), "Trace sampling probability (0..1)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server == "" {
		errs = append(errs, errors.New("--server (ITSM_SERVER) is required"))
	}
	if c.Token != "" && c.TokenFile != "" {
		errs = append(errs, errors.New("--token and --token-file are mutually exclusive"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("--tls-cert-file and --tls-key-file must be set together"))
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("--kafka-topic is required with --kafka-brokers"))
	}
	return errors.Join(errs...)
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"server", c.Server,
		"token_set", c.Token != "",
		"token_file", c.TokenFile,
		"tenant_id", c.TenantID,
		"tenant_code", c.TenantCode,
		"interval", c.Interval,
		"status", c.Status,
		"severity", c.Severity,
		"emit_initial", c.EmitInitial,
		"listen_address", c.ListenAddress,
		"rate_limit", c.RateLimit,
		"escalation_rules", c.EscalationRules,
		"kafka_brokers", c.Kafka.Brokers,
		"kafka_topic", c.Kafka.Topic,
		"kafka_tls", c.Kafka.TLS,
		"kafka_sasl_mechanism", c.Kafka.SASLMechanism,
		"webhook_url", c.Webhook.URL,
		"mail_enabled", c.MailEnabled(),
		"mail_host", c.Mail.Host,
		"otel_enabled", c.Otel.Enabled,
		"otel_exporter", c.Otel.Exporter,
	)
}

// ParseInterval falls back to the default interval and warns when the flag
// is not a positive duration.
func (c *Config) ParseInterval(log *zap.SugaredLogger) time.Duration {
	d, err := parseDuration("interval", c.Interval, slamonitor.DefaultInterval)
	if err != nil {
		log.Warn(err)
	}
	return d
}

func (c *Config) ParseRequestTimeout(log *zap.SugaredLogger) time.Duration {
	d, err := parseDuration("request-timeout", c.RequestTimeout, 30*time.Second)
	if err != nil {
		log.Warn(err)
	}
	return d
}

// ReadToken returns --token, or the trimmed contents of --token-file.
func (c *Config) ReadToken() (string, error) {
	if c.TokenFile == "" {
		return c.Token, nil
	}
	content, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

func (c *Config) ViolationFilter() filter.ViolationFilter {
	return filter.ViolationFilter{Severity: c.Severity, Type: c.ViolationType}
}

// KafkaSinkConfig returns nil when no brokers are configured.
func (c *Config) KafkaSinkConfig() (*events.KafkaSinkConfig, error) {
	brokers := SplitList(c.Kafka.Brokers)
	if len(brokers) == 0 {
		return nil, nil
	}
	cfg := &events.KafkaSinkConfig{
		Name:             "kafka",
		Brokers:          brokers,
		Topic:            c.Kafka.Topic,
		CompressionCodec: c.Kafka.Compression,
	}
	if c.Kafka.TLS {
		tlsCfg := &events.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: c.Kafka.TLSInsecure}
		var err error
		if tlsCfg.CACert, err = readOptional(c.Kafka.TLSCAFile); err != nil {
			return nil, err
		}
		if tlsCfg.ClientCert, err = readOptional(c.Kafka.TLSCertFile); err != nil {
			return nil, err
		}
		if tlsCfg.ClientKey, err = readOptional(c.Kafka.TLSKeyFile); err != nil {
			return nil, err
		}
		cfg.TLS = tlsCfg
	}
	if c.Kafka.SASLMechanism != "" {
		cfg.SASL = &events.KafkaSASLConfig{
			Mechanism: c.Kafka.SASLMechanism,
			Username:  c.Kafka.SASLUsername,
			Password:  c.Kafka.SASLPassword,
		}
	}
	return cfg, nil
}

// WebhookSinkConfig returns nil when no webhook URL is configured.
func (c *Config) WebhookSinkConfig() (*events.WebhookSinkConfig, error) {
	if c.Webhook.URL == "" {
		return nil, nil
	}
	headers := map[string]string{}
	for _, pair := range SplitList(c.Webhook.Headers) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid webhook header %q: expected Name=Value", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return &events.WebhookSinkConfig{Name: "webhook", URL: c.Webhook.URL, Headers: headers}, nil
}

// MailEnabled reports whether an SMTP host is set and email is not disabled.
func (c *Config) MailEnabled() bool {
	return !c.Mail.Disable && c.Mail.Host != ""
}

func (c *Config) MailSenderConfig() mail.Config {
	return mail.Config{
		Host:               c.Mail.Host,
		Port:               c.Mail.Port,
		User:               c.Mail.User,
		Password:           c.Mail.Password,
		SenderAddress:      c.Mail.From,
		SenderName:         c.Mail.FromName,
		InsecureSkipVerify: c.Mail.InsecureSkipVerify,
	}
}

func (c *Config) MailServiceConfig() mail.ServiceConfig {
	return mail.ServiceConfig{
		DefaultRecipients: SplitList(c.Mail.DefaultRecipients),
		BrandingName:      c.Mail.Branding,
		TicketURL:         c.Mail.TicketURL,
	}
}

// SplitList splits a comma separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s %q; using default %s: must be positive", name, value, def.String())
	}
	return d, nil
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool accepts "true", "1", "yes" and "false", "0", "no" (case-insensitive).
// Anything else yields the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}
