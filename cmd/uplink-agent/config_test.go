package main

import (
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
server: wss://uplink.example.com/agent
public_key: pk-1234
secret_key: sk-5678
server_name: web-01
compression: true
subscribe:
  - "process:**"
  - "host:*"
status_interval: 30s
keepalive:
  ping_interval: 15s
  pong_timeout: 3s
  max_missed_pongs: 4
reconnect:
  initial_delay: 2s
  max_delay: 30s
  max_attempts: 10
log_file: /var/log/uplink/agent.cborlog
log_level: debug
`)

	cfg, err := parseConfig(data)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}

	if cfg.Server != "wss://uplink.example.com/agent" {
		t.Errorf("server = %q", cfg.Server)
	}
	if cfg.PublicKey != "pk-1234" || cfg.SecretKey != "sk-5678" {
		t.Errorf("keys = %q / %q", cfg.PublicKey, cfg.SecretKey)
	}
	if !cfg.Compression {
		t.Error("compression not parsed")
	}
	if len(cfg.Subscribe) != 2 || cfg.Subscribe[0] != "process:**" {
		t.Errorf("subscribe = %v", cfg.Subscribe)
	}
	if cfg.StatusInterval != 30*time.Second {
		t.Errorf("status interval = %v", cfg.StatusInterval)
	}
	if cfg.KeepAlive.PingInterval != 15*time.Second || cfg.KeepAlive.MaxMissedPongs != 4 {
		t.Errorf("keepalive = %+v", cfg.KeepAlive)
	}
	if cfg.Reconnect.MaxAttempts != 10 || cfg.Reconnect.InitialDelay != 2*time.Second {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestParseConfigInvalidYAML(t *testing.T) {
	if _, err := parseConfig([]byte("server: [unclosed")); err == nil {
		t.Error("parseConfig accepted malformed YAML")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "complete",
			cfg:  Config{Server: "ws://h/x", PublicKey: "pk", SecretKey: "sk"},
		},
		{
			name:    "missing server",
			cfg:     Config{PublicKey: "pk", SecretKey: "sk"},
			wantErr: true,
		},
		{
			name:    "missing public key",
			cfg:     Config{Server: "ws://h/x", SecretKey: "sk"},
			wantErr: true,
		},
		{
			name:    "missing secret key",
			cfg:     Config{Server: "ws://h/x", PublicKey: "pk"},
			wantErr: true,
		},
		{
			name:    "bad log level",
			cfg:     Config{Server: "ws://h/x", PublicKey: "pk", SecretKey: "sk", LogLevel: "verbose"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.ServerName == "" {
		t.Error("server name default not applied")
	}
	if cfg.StatusInterval != 60*time.Second {
		t.Errorf("status interval default = %v, want 60s", cfg.StatusInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level default = %q, want info", cfg.LogLevel)
	}
}
