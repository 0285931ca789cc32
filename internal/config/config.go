// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	PublicRootURL    string
	DatabasePath     string
	LogLevel         string

	CrawlInterval    time.Duration
	QueueInterval    time.Duration
	DeliveryInterval time.Duration
	HTTPTimeout      time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// if one is present next to the binary.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rootURL := os.Getenv("PUBLIC_ROOT_URL")
	if rootURL == "" {
		return nil, fmt.Errorf("PUBLIC_ROOT_URL is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	crawl, err := secondsEnv("CRAWL_INTERVAL", 300)
	if err != nil {
		return nil, err
	}
	queue, err := secondsEnv("QUEUE_INTERVAL", 60)
	if err != nil {
		return nil, err
	}
	deliver, err := secondsEnv("DELIVERY_INTERVAL", 60)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := secondsEnv("HTTP_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken: token,
		PublicRootURL:    rootURL,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		CrawlInterval:    crawl,
		QueueInterval:    queue,
		DeliveryInterval: deliver,
		HTTPTimeout:      httpTimeout,
	}, nil
}

func secondsEnv(key string, def int) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * time.Second, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive number of seconds", key, raw)
	}
	return time.Duration(n) * time.Second, nil
}
