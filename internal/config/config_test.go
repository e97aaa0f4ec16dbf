package config_test

import (
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RedisConnectTimeout", cfg.RedisConnectTimeout, 3 * time.Second},
		{"RedisMaxRetries", cfg.RedisMaxRetries, 3},
		{"RedisRetryStep", cfg.RedisRetryStep, 50 * time.Millisecond},
		{"RedisRetryCap", cfg.RedisRetryCap, 2 * time.Second},
		{"QueueName", cfg.QueueName, "email-queue"},
		{"JobMaxAttempts", cfg.JobMaxAttempts, 3},
		{"JobBackoffBase", cfg.JobBackoffBase, time.Second},
		{"JobBackoffFactor", cfg.JobBackoffFactor, 2.0},
		{"WorkerConcurrency", cfg.WorkerConcurrency, 1},
		{"MailTransport", cfg.MailTransport, "smtp"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("JOB_BACKOFF_FACTOR", "3")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("APP_URL", "https://app.example.com/")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RedisAddr != "redis:6380" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.JobBackoffFactor != 3 {
		t.Errorf("JobBackoffFactor = %v, want 3", cfg.JobBackoffFactor)
	}
	if cfg.WorkerEnabled {
		t.Error("WorkerEnabled = true, want false")
	}
	if cfg.AppURL != "https://app.example.com" {
		t.Errorf("AppURL = %q, want trailing slash trimmed", cfg.AppURL)
	}
	// Unparsable values fall back to the default.
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown transport", map[string]string{"MAIL_TRANSPORT": "carrier-pigeon"}},
		{"webhook without url", map[string]string{"MAIL_TRANSPORT": "webhook"}},
		{"zero attempts", map[string]string{"JOB_MAX_ATTEMPTS": "0"}},
		{"shrinking backoff", map[string]string{"JOB_BACKOFF_FACTOR": "0.5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
