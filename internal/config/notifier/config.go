package notifier_config

import (
	"time"

	"github.com/NordCoder/Reminderus/internal/obs"
	pg "github.com/NordCoder/Reminderus/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
		Global: true,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc OTEL) AsOTELConfig(app App) obs.OTELConfig {
	name := oc.ServiceName
	if name == "" {
		name = app.Name
	}
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: name,
		Version:     app.Version,
		Env:         app.Env,
		SampleRatio: oc.SampleRatio,
	}
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Store struct {
	Driver string `mapstructure:"driver"`
}

type Sched struct {
	DispatchEvery     time.Duration `mapstructure:"dispatch_every"`
	ReclaimEvery      time.Duration `mapstructure:"reclaim_every"`
	HealthEvery       time.Duration `mapstructure:"health_every"`
	BatchSize         int           `mapstructure:"batch_size"`
	StaleClaimTimeout time.Duration `mapstructure:"stale_claim_timeout"`
	FailedAlarm       int           `mapstructure:"failed_alarm"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBatchLimit   int           `mapstructure:"retry_batch_limit"`
}

type Reminder struct {
	SendHour int `mapstructure:"send_hour"`
	LeadDays int `mapstructure:"lead_days"`
}

type SMTP struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type EmailRetry struct {
	Attempts int             `mapstructure:"attempts"`
	Delays   []time.Duration `mapstructure:"delays"`
}

type Twilio struct {
	Enable       bool   `mapstructure:"enable"`
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	From         string `mapstructure:"from"`
	WhatsAppFrom string `mapstructure:"whatsapp_from"`
}

type Kafka struct {
	Enable  bool     `mapstructure:"enable"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Config struct {
	App        App        `mapstructure:"app"`
	Log        Log        `mapstructure:"log"`
	OTEL       OTEL       `mapstructure:"otel"`
	Store      Store      `mapstructure:"store"`
	DB         pg.Config  `mapstructure:"db"`
	Sched      Sched      `mapstructure:"sched"`
	Reminder   Reminder   `mapstructure:"reminder"`
	SMTP       SMTP       `mapstructure:"smtp"`
	EmailRetry EmailRetry `mapstructure:"email_retry"`
	Twilio     Twilio     `mapstructure:"twilio"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Server     Server     `mapstructure:"server"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
