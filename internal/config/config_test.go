package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("PUBLIC_ROOT_URL", "https://disk.yandex.ru/d/AbC123")
}

func clearOptional(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_PATH", "LOG_LEVEL",
		"CRAWL_INTERVAL", "QUEUE_INTERVAL", "DELIVERY_INTERVAL", "HTTP_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	clearOptional(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.TelegramBotToken != "123:abc" {
		t.Errorf("token = %q", cfg.TelegramBotToken)
	}
	if cfg.PublicRootURL != "https://disk.yandex.ru/d/AbC123" {
		t.Errorf("root url = %q", cfg.PublicRootURL)
	}
	if cfg.DatabasePath != "./data/bot.db" {
		t.Errorf("database path = %q, want default", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.LogLevel)
	}
	if cfg.CrawlInterval != 5*time.Minute {
		t.Errorf("crawl interval = %v, want 5m", cfg.CrawlInterval)
	}
	if cfg.QueueInterval != time.Minute {
		t.Errorf("queue interval = %v, want 1m", cfg.QueueInterval)
	}
	if cfg.DeliveryInterval != time.Minute {
		t.Errorf("delivery interval = %v, want 1m", cfg.DeliveryInterval)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("http timeout = %v, want 10s", cfg.HTTPTimeout)
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("PUBLIC_ROOT_URL", "https://disk.yandex.ru/d/AbC123")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without TELEGRAM_BOT_TOKEN")
	}
}

func TestLoadMissingRootURL(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("PUBLIC_ROOT_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without PUBLIC_ROOT_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	clearOptional(t)
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CRAWL_INTERVAL", "30")
	t.Setenv("HTTP_TIMEOUT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("database path = %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.CrawlInterval != 30*time.Second {
		t.Errorf("crawl interval = %v, want 30s", cfg.CrawlInterval)
	}
	if cfg.HTTPTimeout != 3*time.Second {
		t.Errorf("http timeout = %v, want 3s", cfg.HTTPTimeout)
	}
}

func TestLoadInvalidInterval(t *testing.T) {
	tests := []string{"abc", "0", "-5", "1.5"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			setRequired(t)
			clearOptional(t)
			t.Setenv("CRAWL_INTERVAL", raw)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for CRAWL_INTERVAL=%q", raw)
			}
		})
	}
}
