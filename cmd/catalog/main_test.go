package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"jewelry-catalog/pkg/config"
)

func TestResolvePort(t *testing.T) {
	tests := []struct {
		name     string
		flagPort string
		cfgPort  int
		want     int
		wantErr  bool
	}{
		{"config port", "", 5000, 5000, false},
		{"flag wins", "8080", 5000, 8080, false},
		{"not a number", "abc", 5000, 0, true},
		{"out of range", "70000", 5000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePort(tt.flagPort, tt.cfgPort)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolvePort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolvePort() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["message"] != "shown" || entry["k"] != "v" {
		t.Errorf("unexpected log entry %v", entry)
	}
}

func TestSetupLogger_BadLevelDefaultsToInfo(t *testing.T) {
	logger := setupLogger(&bytes.Buffer{}, config.LoggingConfig{Level: "loud"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", logger.GetLevel())
	}
}

func TestConnectRedis(t *testing.T) {
	if rdb := connectRedis(config.RedisConfig{Enabled: false}, zerolog.Nop()); rdb != nil {
		t.Error("expected nil client when redis is disabled")
	}

	mr := miniredis.RunT(t)
	rdb := connectRedis(config.RedisConfig{Enabled: true, Addr: mr.Addr()}, zerolog.Nop())
	if rdb == nil {
		t.Fatal("expected a client for a reachable server")
	}
	rdb.Close()

	addr := mr.Addr()
	mr.Close()
	if rdb := connectRedis(config.RedisConfig{Enabled: true, Addr: addr}, zerolog.Nop()); rdb != nil {
		t.Error("expected nil client for an unreachable server")
	}
}
