package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/xendit/xendit-go/v6"
)

type XenditConfig struct {
	SecretKey     string
	CallbackToken string
	Currency      string
}

func LoadXenditConfig() (*XenditConfig, error) {
	return &XenditConfig{
		SecretKey:     os.Getenv("XENDIT_SECRET_KEY"),
		CallbackToken: os.Getenv("XENDIT_CALLBACK_TOKEN"),
		Currency:      getEnv("PAYOUT_CURRENCY", "IDR"),
	}, nil
}

// InitXenditClient returns nil when no secret key is configured; withdrawals
// then wait for manual settlement.
func InitXenditClient(config *XenditConfig) *xendit.APIClient {
	if config.SecretKey == "" {
		return nil
	}
	return xendit.NewClient(config.SecretKey)
}

func InitRedis(cfg *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "REDIS_URL")
	}
	return redis.NewClient(opts), nil
}

// InitKafkaWriter returns nil when no brokers are configured.
func InitKafkaWriter(cfg *Config) *kafka.Writer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}
