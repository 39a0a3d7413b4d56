package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended (upper-cased) to every variable name at lookup
// time, so MARKETHUB_DB_HOST and DB_HOST both resolve.
const EnvPrefix = "markethub"

type DB struct {
	User     string `envconfig:"MARKETHUB_DB_USER" default:"postgres"`
	Pass     string `envconfig:"MARKETHUB_DB_PASS" default:"postgres"`
	Host     string `envconfig:"MARKETHUB_DB_HOST" default:"postgres"`
	Port     string `envconfig:"MARKETHUB_DB_PORT" default:"5432"`
	Name     string `envconfig:"MARKETHUB_DB_NAME" default:"markethub"`
	MaxConns int32  `envconfig:"MARKETHUB_DB_MAX_CONNS" default:"10"`
}

type NSQ struct {
	NsqdTCPAddr    string `envconfig:"MARKETHUB_NSQD_TCP_ADDR" default:"nsqd:4150"`        // e.g. nsqd:4150
	LookupHTTPAddr string `envconfig:"MARKETHUB_NSQ_LOOKUP_HTTP_ADDR" default:"http://nsqlookupd:4161"` // e.g. http://nsqlookupd:4161
	StepsTopic     string `envconfig:"MARKETHUB_NSQ_STEPS_TOPIC" default:"publication_steps"`
	WebhookTopic   string `envconfig:"MARKETHUB_NSQ_WEBHOOK_TOPIC" default:"webhook_deliveries"`
	DLQTopic       string `envconfig:"MARKETHUB_NSQ_DLQ_TOPIC" default:"webhook_deliveries_dlq"`
	WorkerChannel  string `envconfig:"MARKETHUB_NSQ_WORKER_CHANNEL" default:"workers"`
}

// Saga holds the fixed orchestration constants. They are configuration,
// not derived values: three retries per step, sixty seconds per backoff
// unit, four tracked steps per publication.
type Saga struct {
	MaxStepRetries int `envconfig:"MARKETHUB_MAX_STEP_RETRIES" default:"3"`
	BackoffSeconds int `envconfig:"MARKETHUB_RETRY_BACKOFF_SECONDS" default:"60"`
	TotalSteps     int `envconfig:"MARKETHUB_TOTAL_STEPS" default:"4"`
}

type Webhook struct {
	DefaultURL      string        `envconfig:"MARKETHUB_WEBHOOK_URL"`                                       // global default target, empty disables dispatch
	Secret          string        `envconfig:"MARKETHUB_WEBHOOK_SECRET" default:"markethub-webhook-secret"` // HMAC signing key
	Timeout         time.Duration `envconfig:"MARKETHUB_WEBHOOK_TIMEOUT" default:"30s"`
	SignatureHeader string        `envconfig:"MARKETHUB_WEBHOOK_SIGNATURE_HEADER" default:"X-Hub-Signature-256"`
	MaxAttempts     int           `envconfig:"MARKETHUB_WEBHOOK_MAX_ATTEMPTS" default:"3"`
}

type Enhancer struct {
	APIKey      string        `envconfig:"MARKETHUB_OPENAI_API_KEY"`
	BaseURL     string        `envconfig:"MARKETHUB_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `envconfig:"MARKETHUB_OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"MARKETHUB_OPENAI_TEMPERATURE" default:"0.7"`
	Timeout     time.Duration `envconfig:"MARKETHUB_ENHANCER_TIMEOUT" default:"30s"`
}

type Worker struct {
	MaxInFlight int    `envconfig:"MARKETHUB_WORKER_MAX_IN_FLIGHT" default:"16"`
	PublishDLQ  bool   `envconfig:"MARKETHUB_PUBLISH_DLQ_TOPIC" default:"false"` // publish exhausted deliveries to the DLQ topic
	HTTPPort    string `envconfig:"MARKETHUB_WORKER_HTTP_PORT" default:":8083"`  // worker metrics/health port
}

type FakeReceiver struct {
	FailFirstN      int           `envconfig:"MARKETHUB_FAIL_FIRST_N" default:"0"` // number of requests to fail initially
	EndpointSecret  string        `envconfig:"MARKETHUB_ENDPOINT_SECRET"`          // secret for signature verification, empty skips
	ResponseDelayMS int           `envconfig:"MARKETHUB_RESPONSE_DELAY_MS" default:"0"`
	Port            string        `envconfig:"MARKETHUB_FAKE_RECEIVER_PORT" default:":8081"`
	ReadTimeout     time.Duration `envconfig:"MARKETHUB_FAKE_RECEIVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"MARKETHUB_FAKE_RECEIVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"MARKETHUB_FAKE_RECEIVER_IDLE_TIMEOUT" default:"60s"`
}

type Config struct {
	AppName      string `envconfig:"MARKETHUB_APP_NAME" default:"markethub"`
	HTTPPort     string `envconfig:"MARKETHUB_HTTP_PORT" default:":8080"`
	DB           DB
	NSQ          NSQ
	Saga         Saga
	Webhook      Webhook
	Enhancer     Enhancer
	Worker       Worker
	FakeReceiver FakeReceiver
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}

// BackoffFor returns the deferred-publish delay before retry n of a saga
// step. The ladder is linear: 60s, 120s, 180s for the default unit.
func (s Saga) BackoffFor(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	return time.Duration(s.BackoffSeconds*retries) * time.Second
}
