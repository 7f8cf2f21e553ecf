package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/permits")
	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.ReminderAfter != 48*time.Hour {
		t.Fatalf("unexpected reminder delay %s", cfg.ReminderAfter)
	}
	if len(cfg.WorkingDays) != 5 {
		t.Fatalf("expected five working days, got %v", cfg.WorkingDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/permits")
	t.Setenv("WORKING_DAYS", "mon, wed ,fri")
	t.Setenv("REMINDER_AFTER", "24h")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("TIMEZONE", "Europe/Madrid")
	cfg := Load()

	if got := cfg.WorkingDays; len(got) != 3 || got[1] != "wed" {
		t.Fatalf("unexpected working days %v", got)
	}
	if cfg.ReminderAfter != 24*time.Hour {
		t.Fatalf("unexpected reminder delay %s", cfg.ReminderAfter)
	}
	if cfg.RunMigrations {
		t.Fatal("expected migrations disabled")
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected fallback rate limit, got %d", cfg.RateLimitPerMinute)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Madrid" {
		t.Fatalf("unexpected location %v (%v)", loc, err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := func() Config {
		t.Setenv("DATABASE_URL", "postgres://localhost/permits")
		return Load()
	}
	cases := map[string]func(*Config){
		"missing database":   func(c *Config) { c.DatabaseURL = "" },
		"prod without jwt":   func(c *Config) { c.Environment = "production"; c.JWTSecret = "" },
		"email without host": func(c *Config) { c.EmailEnabled = true; c.SMTPHost = "" },
		"inverted durations": func(c *Config) { c.MaxPermitDuration = time.Minute },
		"bad timezone":       func(c *Config) { c.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
