package config

import (
	"crypto/sha256"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/farellandr/cashback/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/hkdf"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	Port           string
	RequestTimeout time.Duration

	JWTSecret          string
	JWTRefreshSecret   string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ConfirmationWindow time.Duration
	MinWithdrawal      decimal.Decimal
	PageLimitMax       int

	SweepInterval  time.Duration
	SweepBatchSize int
	LeaseTTL       time.Duration

	BlacklistBackend string
	RedisURL         string

	KafkaBrokers []string
	KafkaTopic   string

	JaegerEndpoint string

	AdminAPIKey   string
	AdminEmail    string
	AdminPassword string

	AffiliatePostbackSecret string
	ClickRefSecret          string
	UploadDir               string

	Xendit XenditConfig
}

const minSecretBytes = 32

// LoadConfig reads the process environment. Callers load .env first.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "cashback"),

		Port: getEnv("PORT", "8080"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),

		BlacklistBackend: strings.ToLower(getEnv("BLACKLIST_BACKEND", "memory")),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "cashback.events"),
		JaegerEndpoint:   os.Getenv("JAEGER_ENDPOINT"),

		AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		AffiliatePostbackSecret: os.Getenv("AFFILIATE_POSTBACK_SECRET"),
		ClickRefSecret:          os.Getenv("CLICK_REF_SECRET"),
		UploadDir:               getEnv("UPLOAD_DIR", "uploads"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", "15m", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", "7d", &cfg.RefreshTokenTTL},
		{"CONFIRMATION_WINDOW", "30d", &cfg.ConfirmationWindow},
		{"SWEEP_INTERVAL", "5m", &cfg.SweepInterval},
		{"LEASE_TTL", "4m", &cfg.LeaseTTL},
		{"REQUEST_TIMEOUT", "15s", &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = ParseDuration(getEnv(d.key, d.def)); err != nil {
			return nil, errors.Wrap(err, d.key)
		}
		if *d.dst <= 0 {
			return nil, errors.Errorf("%s: must be positive", d.key)
		}
	}

	if cfg.MinWithdrawal, err = decimal.NewFromString(getEnv("MIN_WITHDRAWAL", "10.00")); err != nil {
		return nil, errors.Wrap(err, "MIN_WITHDRAWAL")
	}
	if cfg.MinWithdrawal.IsNegative() {
		return nil, errors.New("MIN_WITHDRAWAL: must not be negative")
	}
	if cfg.PageLimitMax, err = getEnvInt("PAGE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = getEnvInt("SWEEP_BATCH_SIZE", 500); err != nil {
		return nil, err
	}

	xenditCfg, err := LoadXenditConfig()
	if err != nil {
		return nil, err
	}
	cfg.Xendit = *xenditCfg

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretBytes {
		return errors.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes)
	}
	if len(c.JWTRefreshSecret) < minSecretBytes {
		return errors.Errorf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretBytes)
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.PageLimitMax < 1 {
		return errors.New("PAGE_LIMIT_MAX must be positive")
	}
	if c.SweepBatchSize < 1 {
		return errors.New("SWEEP_BATCH_SIZE must be positive")
	}
	switch c.BlacklistBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when BLACKLIST_BACKEND=redis")
		}
	default:
		return errors.Errorf("BLACKLIST_BACKEND must be memory or redis, got %q", c.BlacklistBackend)
	}
	return nil
}

const clickKeyInfo = "cashback click reference v1"

// ClickSecret returns CLICK_REF_SECRET, or when it is unset a key derived
// from JWT_SECRET under a click-reference label so the two never share key
// material.
func (c *Config) ClickSecret() (string, error) {
	if c.ClickRefSecret != "" {
		return c.ClickRefSecret, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(c.JWTSecret), nil, []byte(clickKeyInfo)), key); err != nil {
		return "", errors.Wrap(err, "derive click secret")
	}
	return string(key), nil
}

// ParseDuration accepts everything time.ParseDuration does plus a whole-day
// "d" suffix, e.g. "7d" or "30d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, errors.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return n, nil
}

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Store{},
		&models.Coupon{},
		&models.Redemption{},
		&models.CashbackOffer{},
		&models.CashbackTransaction{},
		&models.Withdrawal{},
		&models.Lease{},
	}
}
