package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "observe"

[redis]
addr = "redis.internal:6380"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q, want override", cfg.Redis.Addr)
	}
	if cfg.Redis.PoolSize != 20 {
		t.Errorf("redis pool size = %d, want default 20", cfg.Redis.PoolSize)
	}
	if cfg.Engine.CoalesceWindow.Duration != 40*time.Millisecond {
		t.Errorf("coalesce window = %v, want default 40ms", cfg.Engine.CoalesceWindow.Duration)
	}
	if cfg.Polymarket.ChainID != 137 {
		t.Errorf("chain id = %d, want default 137", cfg.Polymarket.ChainID)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "observe"`)

	t.Setenv("HUNTER_REDIS_ADDR", "env-redis:6379")
	t.Setenv("HUNTER_ENGINE_COALESCE_WINDOW", "25ms")
	t.Setenv("HUNTER_SCHEDULER_EXCLUDED_TAGS", "Sports, 15M ,Esports")
	t.Setenv("HUNTER_POSTGRES_PORT", "6432")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Engine.CoalesceWindow.Duration != 25*time.Millisecond {
		t.Errorf("coalesce window = %v", cfg.Engine.CoalesceWindow.Duration)
	}
	want := []string{"Sports", "15M", "Esports"}
	if len(cfg.Scheduler.ExcludedTags) != len(want) {
		t.Fatalf("excluded tags = %v", cfg.Scheduler.ExcludedTags)
	}
	for i := range want {
		if cfg.Scheduler.ExcludedTags[i] != want[i] {
			t.Errorf("excluded tags[%d] = %q, want %q", i, cfg.Scheduler.ExcludedTags[i], want[i])
		}
	}
	if cfg.Postgres.Port != 6432 {
		t.Errorf("postgres port = %d", cfg.Postgres.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "observe mode needs no wallet",
			mutate: func(c *Config) { c.Mode = "observe" },
		},
		{
			name:    "trade mode requires wallet",
			mutate:  func(c *Config) { c.Mode = "trade" },
			wantErr: "wallet",
		},
		{
			name: "trade mode requires api credentials",
			mutate: func(c *Config) {
				c.Mode = "trade"
				c.Wallet.PrivateKey = "0xabc123"
			},
			wantErr: "clob_api",
		},
		{
			name: "invalid mode",
			mutate: func(c *Config) {
				c.Mode = "backtest"
			},
			wantErr: "unknown mode",
		},
		{
			name: "bad enter band",
			mutate: func(c *Config) {
				c.Mode = "observe"
				c.Strategies = []StrategyConfig{{
					Name:  "hourly",
					Rules: []RuleConfig{{EnterMin: 0.9, EnterMax: 0.2, Size: 5}},
				}}
			},
			wantErr: "enter band",
		},
		{
			name: "rule without size",
			mutate: func(c *Config) {
				c.Mode = "observe"
				c.Strategies = []StrategyConfig{{
					Name:  "hourly",
					Rules: []RuleConfig{{EnterMin: 0.2, EnterMax: 0.9}},
				}}
			},
			wantErr: "size must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
