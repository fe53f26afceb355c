package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the bridge process.
// All values must come from env (or an env-file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Realtime RealtimeConfig
	Bridge   BridgeConfig
	Trace    TraceConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Pool sizing. Zero means the pkg/utils default.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
	// StreamTokenTTL bounds the gap between the voice webhook answering and
	// the provider opening the media stream.
	StreamTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// RealtimeConfig describes the conversational AI leg.
type RealtimeConfig struct {
	APIKey      string
	URL         string
	Model       string
	Voice       string
	AudioFormat string
}

// BridgeConfig tunes call sessions.
type BridgeConfig struct {
	PublicStreamURL    string
	IdleTimeout        time.Duration
	MaxCallDuration    time.Duration
	DrainTimeout       time.Duration
	WriteTimeout       time.Duration
	AudioQueue         int
	MaxConcurrentCalls int
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	{
		n, err := optionalInt("DB_MAX_OPEN_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxOpenConns = n
	}
	{
		n, err := optionalInt("DB_MAX_IDLE_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxIdleConns = n
	}
	c.DB.ConnMaxLifetime = mustDuration("DB_CONN_MAX_LIFETIME")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}
	{
		n, err := optionalInt("REDIS_POOL_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.PoolSize = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.StreamTokenTTL = mustDuration("JWT_STREAM_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")

	c.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Realtime.URL = strings.TrimSpace(os.Getenv("REALTIME_URL"))
	c.Realtime.Model = strings.TrimSpace(os.Getenv("REALTIME_MODEL"))
	c.Realtime.Voice = strings.TrimSpace(os.Getenv("REALTIME_VOICE"))
	c.Realtime.AudioFormat = strings.TrimSpace(os.Getenv("REALTIME_AUDIO_FORMAT"))

	c.Bridge.PublicStreamURL = strings.TrimSpace(os.Getenv("BRIDGE_PUBLIC_STREAM_URL"))
	c.Bridge.IdleTimeout = mustDuration("BRIDGE_IDLE_TIMEOUT")
	c.Bridge.MaxCallDuration = mustDuration("BRIDGE_MAX_CALL_DURATION")
	c.Bridge.DrainTimeout = mustDuration("BRIDGE_DRAIN_TIMEOUT")
	c.Bridge.WriteTimeout = mustDuration("BRIDGE_WRITE_TIMEOUT")
	{
		n, err := optionalInt("BRIDGE_AUDIO_QUEUE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Bridge.AudioQueue = n
	}
	{
		n, err := optionalInt("BRIDGE_MAX_CONCURRENT_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Bridge.MaxConcurrentCalls = n
	}

	c.Trace.Exporter = strings.TrimSpace(os.Getenv("TRACE_EXPORTER"))
	c.Trace.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every section and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.DB.MaxOpenConns < 0 || c.DB.MaxIdleConns < 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative"))
	}
	if c.DB.MaxOpenConns > 0 && c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) must not exceed DB_MAX_OPEN_CONNS (%d)", c.DB.MaxIdleConns, c.DB.MaxOpenConns))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 || c.Redis.PoolSize < 0 {
		errs = append(errs, errors.New("REDIS_DB and REDIS_POOL_SIZE must not be negative"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.StreamTokenTTL <= 0 {
		c.Auth.StreamTokenTTL = 2 * time.Minute
	}

	if c.IsProduction() {
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}

	if c.Realtime.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "wss://api.openai.com/v1/realtime"
	}
	if u, err := url.Parse(c.Realtime.URL); err != nil || (u.Scheme != "wss" && u.Scheme != "ws") {
		errs = append(errs, fmt.Errorf("REALTIME_URL must be a ws:// or wss:// URL, got %q", c.Realtime.URL))
	}
	if c.Realtime.Model == "" {
		c.Realtime.Model = "gpt-4o-realtime-preview"
	}
	if c.Realtime.Voice == "" {
		c.Realtime.Voice = "alloy"
	}
	if c.Realtime.AudioFormat == "" {
		c.Realtime.AudioFormat = "g711_ulaw"
	}
	if !isValidAudioFormat(c.Realtime.AudioFormat) {
		errs = append(errs, fmt.Errorf("REALTIME_AUDIO_FORMAT must be one of g711_ulaw, g711_alaw, pcm16, got %q", c.Realtime.AudioFormat))
	}

	if c.Bridge.PublicStreamURL == "" {
		errs = append(errs, errors.New("BRIDGE_PUBLIC_STREAM_URL is required"))
	} else if u, err := url.Parse(c.Bridge.PublicStreamURL); err != nil || (u.Scheme != "wss" && u.Scheme != "ws") {
		errs = append(errs, fmt.Errorf("BRIDGE_PUBLIC_STREAM_URL must be a ws:// or wss:// URL, got %q", c.Bridge.PublicStreamURL))
	}
	if c.Bridge.IdleTimeout <= 0 {
		c.Bridge.IdleTimeout = 60 * time.Second
	}
	if c.Bridge.MaxCallDuration < 0 {
		errs = append(errs, errors.New("BRIDGE_MAX_CALL_DURATION must not be negative"))
	}
	if c.Bridge.DrainTimeout <= 0 {
		c.Bridge.DrainTimeout = 5 * time.Second
	}
	if c.Bridge.WriteTimeout <= 0 {
		c.Bridge.WriteTimeout = 5 * time.Second
	}
	if c.Bridge.AudioQueue <= 0 {
		c.Bridge.AudioQueue = 128
	}
	if c.Bridge.MaxConcurrentCalls <= 0 {
		c.Bridge.MaxConcurrentCalls = 10
	}

	switch c.Trace.Exporter {
	case "":
		c.Trace.Exporter = "none"
	case "none", "stdout":
	case "otlp":
		if c.Trace.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when TRACE_EXPORTER=otlp"))
		}
	default:
		errs = append(errs, fmt.Errorf("TRACE_EXPORTER must be one of none, stdout, otlp, got %q", c.Trace.Exporter))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidAudioFormat(v string) bool {
	switch v {
	case "g711_ulaw", "g711_alaw", "pcm16":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
