package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	CRM         CRMConfig
	Telephony   TelephonyConfig
	Dialer      DialerConfig
	Idempotency IdempotencyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional: with no DB_HOST the call journal falls back to an
// in-memory repository.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional: with no REDIS_HOST the idempotency guard runs
// in-memory and outbound dials are not capped across instances.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CRMConfig configures the CRM REST client and its OAuth refresh exchange.
type CRMConfig struct {
	// AccountsURL is the OAuth token endpoint base (e.g. https://accounts.zoho.com).
	AccountsURL string
	// APIBaseURL is the CRM REST base (e.g. https://www.zohoapis.com).
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Module is the CRM record module operated on.
	Module string

	// TokenBuffer is subtracted from the token expiry when judging validity.
	// Must be at least 60s.
	TokenBuffer time.Duration
}

type TelephonyConfig struct {
	// Provider selects the active outbound provider: "twilio", "exotel",
	// or empty (calling disabled).
	Provider string

	// AnswerURL is fetched by the provider when the callee answers; it
	// returns the IVR prompt markup.
	AnswerURL string
	// GatherURL receives digit-press callbacks.
	GatherURL string
	// StatusCallbackURL receives call status callbacks.
	StatusCallbackURL string

	Twilio TwilioConfig
	Exotel ExotelConfig
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type ExotelConfig struct {
	AccountSID string
	APIKey     string
	APIToken   string
	CallerID   string
	Subdomain  string
}

type DialerConfig struct {
	// DefaultDelay is the delay between lead ingestion and the first dial.
	DefaultDelay time.Duration
	// MaxRetries bounds dial attempts per call chain.
	MaxRetries int
	// RetryBase seeds the exponential backoff between attempts.
	RetryBase time.Duration
	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration
	// DialTimeout bounds one provider HTTP call.
	DialTimeout time.Duration
	// MaxConcurrentDials caps in-flight provider calls when Redis is
	// configured. 0 means uncapped.
	MaxConcurrentDials int
}

type IdempotencyConfig struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
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
	if c.DB.Enabled() {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Enabled() {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")

	c.CRM.AccountsURL = strings.TrimSpace(os.Getenv("CRM_ACCOUNTS_URL"))
	c.CRM.APIBaseURL = strings.TrimSpace(os.Getenv("CRM_API_BASE_URL"))
	c.CRM.ClientID = strings.TrimSpace(os.Getenv("CRM_CLIENT_ID"))
	c.CRM.ClientSecret = os.Getenv("CRM_CLIENT_SECRET")
	c.CRM.RefreshToken = os.Getenv("CRM_REFRESH_TOKEN")
	c.CRM.Module = strings.TrimSpace(os.Getenv("CRM_MODULE"))
	c.CRM.TokenBuffer = optDuration("CRM_TOKEN_BUFFER")

	c.Telephony.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("CALL_PROVIDER")))
	c.Telephony.AnswerURL = strings.TrimSpace(os.Getenv("IVR_ANSWER_URL"))
	c.Telephony.GatherURL = strings.TrimSpace(os.Getenv("IVR_GATHER_URL"))
	c.Telephony.StatusCallbackURL = strings.TrimSpace(os.Getenv("CALL_STATUS_CALLBACK_URL"))
	c.Telephony.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Telephony.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Telephony.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Telephony.Exotel.AccountSID = strings.TrimSpace(os.Getenv("EXOTEL_ACCOUNT_SID"))
	c.Telephony.Exotel.APIKey = strings.TrimSpace(os.Getenv("EXOTEL_API_KEY"))
	c.Telephony.Exotel.APIToken = os.Getenv("EXOTEL_API_TOKEN")
	c.Telephony.Exotel.CallerID = strings.TrimSpace(os.Getenv("EXOTEL_CALLER_ID"))
	c.Telephony.Exotel.Subdomain = strings.TrimSpace(os.Getenv("EXOTEL_SUBDOMAIN"))

	c.Dialer.DefaultDelay = optDuration("DIAL_DEFAULT_DELAY")
	c.Dialer.MaxRetries = optInt("DIAL_MAX_RETRIES")
	c.Dialer.RetryBase = optDuration("DIAL_RETRY_BASE")
	c.Dialer.RetryMaxDelay = optDuration("DIAL_RETRY_MAX_DELAY")
	c.Dialer.DialTimeout = optDuration("DIAL_TIMEOUT")
	c.Dialer.MaxConcurrentDials = optInt("DIAL_MAX_CONCURRENT")

	c.Idempotency.TTL = optDuration("IDEMPOTENCY_TTL")
	c.Idempotency.MaxEntries = optInt("IDEMPOTENCY_MAX_ENTRIES")
	c.Idempotency.SweepInterval = optDuration("IDEMPOTENCY_SWEEP_INTERVAL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

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

	if c.DB.Enabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if strings.TrimSpace(c.DB.SSLMode) == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Enabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
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
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.CRM.AccountsURL == "" {
		errs = append(errs, errors.New("CRM_ACCOUNTS_URL is required"))
	}
	if c.CRM.APIBaseURL == "" {
		errs = append(errs, errors.New("CRM_API_BASE_URL is required"))
	}
	if c.CRM.ClientID == "" {
		errs = append(errs, errors.New("CRM_CLIENT_ID is required"))
	}
	if c.CRM.ClientSecret == "" {
		errs = append(errs, errors.New("CRM_CLIENT_SECRET is required"))
	}
	if c.CRM.RefreshToken == "" {
		errs = append(errs, errors.New("CRM_REFRESH_TOKEN is required"))
	}
	if c.CRM.Module == "" {
		c.CRM.Module = "Leads"
	}
	if c.CRM.TokenBuffer <= 0 {
		c.CRM.TokenBuffer = 5 * time.Minute
	}
	if c.CRM.TokenBuffer < time.Minute {
		errs = append(errs, fmt.Errorf("CRM_TOKEN_BUFFER must be at least 1m, got %s", c.CRM.TokenBuffer))
	}

	switch c.Telephony.Provider {
	case "", "twilio", "exotel":
	default:
		errs = append(errs, fmt.Errorf("CALL_PROVIDER must be twilio, exotel, or empty, got %q", c.Telephony.Provider))
	}
	if c.Telephony.Provider == "twilio" {
		if c.Telephony.Twilio.AccountSID == "" || c.Telephony.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for CALL_PROVIDER=twilio"))
		}
		if c.Telephony.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required for CALL_PROVIDER=twilio"))
		}
	}
	if c.Telephony.Provider == "exotel" {
		if c.Telephony.Exotel.AccountSID == "" || c.Telephony.Exotel.APIKey == "" || c.Telephony.Exotel.APIToken == "" {
			errs = append(errs, errors.New("EXOTEL_ACCOUNT_SID, EXOTEL_API_KEY and EXOTEL_API_TOKEN are required for CALL_PROVIDER=exotel"))
		}
	}

	if c.Dialer.DefaultDelay <= 0 {
		c.Dialer.DefaultDelay = 2 * time.Minute
	}
	if c.Dialer.MaxRetries <= 0 {
		c.Dialer.MaxRetries = 3
	}
	if c.Dialer.RetryBase <= 0 {
		c.Dialer.RetryBase = time.Minute
	}
	if c.Dialer.RetryMaxDelay <= 0 {
		c.Dialer.RetryMaxDelay = 30 * time.Minute
	}
	if c.Dialer.RetryMaxDelay < c.Dialer.RetryBase {
		errs = append(errs, errors.New("DIAL_RETRY_MAX_DELAY must be >= DIAL_RETRY_BASE"))
	}
	if c.Dialer.DialTimeout <= 0 {
		c.Dialer.DialTimeout = 30 * time.Second
	}
	if c.Dialer.MaxConcurrentDials < 0 {
		errs = append(errs, errors.New("DIAL_MAX_CONCURRENT must be >= 0"))
	}

	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = time.Hour
	}
	if c.Idempotency.MaxEntries <= 0 {
		c.Idempotency.MaxEntries = 1000
	}
	if c.Idempotency.SweepInterval <= 0 {
		c.Idempotency.SweepInterval = 10 * time.Minute
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

func (d DBConfig) Enabled() bool { return d.Host != "" }

func (r RedisConfig) Enabled() bool { return r.Host != "" }

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

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
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
