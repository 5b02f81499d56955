package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.DatabaseURL == "" {
		t.Error("DatabaseURL should have a default")
	}
	if cfg.LogDev {
		t.Error("LogDev should default to false")
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(*Config) bool
	}{
		{"DATABASE_URL", "postgresql://u:p@db:5432/exchange", func(c *Config) bool {
			return c.DatabaseURL == "postgresql://u:p@db:5432/exchange"
		}},
		{"LISTEN_ADDR", "0.0.0.0:9090", func(c *Config) bool {
			return c.ListenAddr == "0.0.0.0:9090"
		}},
		{"ADMIN_TOKEN", "secret-token", func(c *Config) bool {
			return c.AdminToken == "secret-token"
		}},
		{"LOG_DEV", "true", func(c *Config) bool {
			return c.LogDev
		}},
		{"METRICS_ENABLED", "false", func(c *Config) bool {
			return !c.MetricsEnabled
		}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("%s=%q was not picked up", tt.key, tt.value)
			}
		})
	}
}
