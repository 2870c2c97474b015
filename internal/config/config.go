// Package config は環境変数（と任意の設定ファイル）からサービスの設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// 実行環境。
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Reminder はリマインダーサービスの設定。
type Reminder struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http"`
	Database Database `yaml:"database"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Redis    Redis    `yaml:"redis"`
	SMTP     SMTP     `yaml:"smtp"`
	Sweep    Sweep    `yaml:"sweep"`
}

// HTTP はHTTPサーバーの設定。
type HTTP struct {
	Port            string        `yaml:"port" env:"PORT" env-default:"3001"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// JWTSecret が設定されている場合、/api/v1 はゲートウェイが発行したトークンを要求する。
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// Database はチケットストアの設定。
type Database struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"reminder.db"`
}

// RabbitMQ はバスの設定。Hostが空の場合バスは使わない。
type RabbitMQ struct {
	Host            string        `yaml:"host" env:"RABBITMQ_HOST"`
	Port            int           `yaml:"port" env:"RABBITMQ_PORT" env-default:"5672"`
	User            string        `yaml:"user" env:"RABBITMQ_USER" env-default:"guest"`
	Password        string        `yaml:"password" env:"RABBITMQ_PASSWORD" env-default:"guest"`
	VHost           string        `yaml:"vhost" env:"RABBITMQ_VHOST" env-default:"/"`
	Exchange        string        `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"reminder"`
	Queue           string        `yaml:"queue" env:"RABBITMQ_QUEUE" env-default:"reminder.tickets"`
	BindingKey      string        `yaml:"binding_key" env:"REMINDER_BINDING_KEY" env-default:"REMINDER"`
	Prefetch        int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"1"`
	MaxRedeliveries int           `yaml:"max_redeliveries" env:"RABBITMQ_MAX_REDELIVERIES" env-default:"5"`
	RedeliveryDelay time.Duration `yaml:"redelivery_delay" env:"RABBITMQ_REDELIVERY_DELAY" env-default:"1s"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"RABBITMQ_HANDLER_TIMEOUT" env-default:"30s"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"RABBITMQ_RETRY_ATTEMPTS" env-default:"5"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"RABBITMQ_RETRY_DELAY" env-default:"1s"`
	RetryBackoff    float64       `yaml:"retry_backoff" env:"RABBITMQ_RETRY_BACKOFF" env-default:"2"`
}

// Enabled はバスが設定されていればtrueを返す。
func (r RabbitMQ) Enabled() bool {
	return r.Host != ""
}

// URL はAMQP接続URLを返す。
func (r RabbitMQ) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   net.JoinHostPort(r.Host, strconv.Itoa(r.Port)),
		Path:   "/",
	}
	if r.VHost != "" && r.VHost != "/" {
		u.Path = "/" + r.VHost
	}
	return u.String()
}

// Redis はスイープロックの設定。Addrが空の場合ロックは使わない。
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LockKey  string        `yaml:"lock_key" env:"REDIS_LOCK_KEY" env-default:"reminder:sweep"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL" env-default:"5m"`
}

// Enabled はRedisが設定されていればtrueを返す。
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// SMTP はメール送信の設定。Hostが空の場合はログ出力のみ。
type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"reminder@localhost"`
}

// Enabled はSMTPが設定されていればtrueを返す。
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

// Sweep はスケジューラと配信の設定。
type Sweep struct {
	Interval    time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"20m"`
	Workers     int           `yaml:"workers" env:"SWEEP_WORKERS" env-default:"4"`
	MaxAttempts int           `yaml:"max_attempts" env:"SWEEP_MAX_ATTEMPTS" env-default:"3"`
	MailTimeout time.Duration `yaml:"mail_timeout" env:"MAIL_TIMEOUT" env-default:"10s"`
	LeaseTTL    time.Duration `yaml:"lease_ttl" env:"LEASE_TTL" env-default:"1m"`
	RunOnStart  bool          `yaml:"run_on_start" env:"SWEEP_RUN_ON_START" env-default:"false"`
}

// Gateway は認証ゲートウェイの設定。
type Gateway struct {
	Env         string        `yaml:"env" env:"ENV" env-default:"local"`
	Port        string        `yaml:"port" env:"PORT" env-default:"3000"`
	JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"dev-secret-change-me"`
	TokenTTL    time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	AuthURL     string        `yaml:"auth_url" env:"AUTH_SERVICE_URL" env-default:"http://localhost:3000"`
	ReminderURL string        `yaml:"reminder_url" env:"REMINDER_SERVICE_URL" env-default:"http://localhost:3001"`
	RateLimit   int           `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"5"`
	RateWindow  time.Duration `yaml:"rate_window" env:"RATE_WINDOW" env-default:"1m"`
	AuthTimeout time.Duration `yaml:"auth_timeout" env:"AUTH_TIMEOUT" env-default:"5s"`
}

// defaultJWTSecret はGateway.JWTSecretの既定値。本番環境では使えない。
const defaultJWTSecret = "dev-secret-change-me"

// LoadReminder はリマインダーサービスの設定を読み込んで検証する。
func LoadReminder() (*Reminder, error) {
	var cfg Reminder
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の組み合わせを検証する。
func (c *Reminder) Validate() error {
	var errs []error
	if err := validateEnv(c.Env); err != nil {
		errs = append(errs, err)
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVALは正の値が必要です"))
	}
	if c.Sweep.Workers <= 0 {
		errs = append(errs, errors.New("SWEEP_WORKERSは1以上が必要です"))
	}
	if c.Sweep.MaxAttempts <= 0 {
		errs = append(errs, errors.New("SWEEP_MAX_ATTEMPTSは1以上が必要です"))
	}
	if c.Sweep.LeaseTTL <= c.Sweep.MailTimeout {
		errs = append(errs, fmt.Errorf("LEASE_TTL(%s)はMAIL_TIMEOUT(%s)より長くする必要があります", c.Sweep.LeaseTTL, c.Sweep.MailTimeout))
	}
	if c.RabbitMQ.MaxRedeliveries < 0 {
		errs = append(errs, errors.New("RABBITMQ_MAX_REDELIVERIESは0以上が必要です"))
	}
	return errors.Join(errs...)
}

// LoadGateway はゲートウェイの設定を読み込んで検証する。
func LoadGateway() (*Gateway, error) {
	var cfg Gateway
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の組み合わせを検証する。
func (c *Gateway) Validate() error {
	var errs []error
	if err := validateEnv(c.Env); err != nil {
		errs = append(errs, err)
	}
	if c.Env == EnvProd && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("本番環境ではJWT_SECRETの設定が必要です"))
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMITとRATE_WINDOWは正の値が必要です"))
	}
	return errors.Join(errs...)
}

// load は.envを読み込んだ上で、CONFIG_PATHがあればファイルと環境変数から、
// なければ環境変数のみからcfgを埋める。
func load(cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("設定ファイルの読み込みに失敗: %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return nil
}

func validateEnv(env string) error {
	switch env {
	case EnvLocal, EnvDev, EnvProd:
		return nil
	}
	return fmt.Errorf("ENVは%s/%s/%sのいずれかが必要です: %q", EnvLocal, EnvDev, EnvProd, env)
}
