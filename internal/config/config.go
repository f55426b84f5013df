package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BackendBaseURL string
	CRDBDSN        string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	CheckoutTTL    time.Duration
	SweepInterval  time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	checkoutTTL, _ := time.ParseDuration(os.Getenv("CHECKOUT_TTL"))
	if checkoutTTL == 0 {
		checkoutTTL = 10 * time.Minute
	}

	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	return &Config{
		BackendBaseURL: os.Getenv("BACKEND_BASE_URL"),
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		CheckoutTTL:    checkoutTTL,
		SweepInterval:  sweepInterval,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
