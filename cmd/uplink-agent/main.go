// Command uplink-agent is a reference uplink client agent.
//
// This command demonstrates a complete uplink agent with:
//   - CLI argument parsing
//   - Configuration file support
//   - Authenticated WebSocket connection with auto-reconnect
//   - Keep-alive liveness monitoring
//   - Periodic status reporting from system metadata
//   - Structured event logging to console and file
//   - Interactive mode for sending and inspecting messages
//
// Usage:
//
//	uplink-agent [flags]
//
// Flags:
//
//	-server string      Endpoint address (ws:// or wss://)
//	-public-key string  Agent public key
//	-secret-key string  Pre-shared secret key
//	-name string        Reported machine name (default: hostname)
//	-config string      Configuration file path
//	-subscribe string   Comma-separated channel patterns to print
//	-log-file string    Append structured CBOR events to this file
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-interactive        Enable the interactive command prompt
//
// Examples:
//
//	# Connect with inline credentials
//	uplink-agent -server wss://uplink.example.com/agent -public-key pk -secret-key sk
//
//	# Connect with a config file, watching two channel trees
//	uplink-agent -config /etc/uplink/agent.yaml -subscribe "process:**,host:*"
//
//	# Interactive session with an event log
//	uplink-agent -config agent.yaml -interactive -log-file agent.cborlog
package main

import (
	"context"
	"encoding/json"
	"flag"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/uplink-protocol/uplink-go/cmd/uplink-agent/interactive"
	"github.com/uplink-protocol/uplink-go/pkg/connection"
	"github.com/uplink-protocol/uplink-go/pkg/log"
	"github.com/uplink-protocol/uplink-go/pkg/sysinfo"
	"github.com/uplink-protocol/uplink-go/pkg/transport"
	"github.com/uplink-protocol/uplink-go/pkg/version"
)

type flags struct {
	server      string
	publicKey   string
	secretKey   string
	serverName  string
	configFile  string
	subscribe   string
	logFile     string
	logLevel    string
	interactive bool
	showVersion bool
}

func main() {
	var f flags
	parseFlags(&f)

	if f.showVersion {
		stdlog.SetFlags(0)
		stdlog.Println(version.String())
		return
	}

	cfg, err := buildConfig(f)
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	setupLogging(cfg.LogLevel)

	stdlog.Println("Uplink Reference Agent")
	stdlog.Println("======================")
	stdlog.Printf("Version: %s", version.String())
	stdlog.Printf("Server: %s", cfg.Server)
	stdlog.Printf("Machine name: %s", cfg.ServerName)

	logger, closeLogger, err := buildLogger(cfg)
	if err != nil {
		stdlog.Fatalf("Failed to set up event logging: %v", err)
	}
	defer closeLogger()

	tr := transport.New(transport.Config{
		PublicKey:   cfg.PublicKey,
		SecretKey:   cfg.SecretKey,
		ServerName:  cfg.ServerName,
		Compression: cfg.Compression,
		Logger:      logger,
	})

	for _, pattern := range cfg.Subscribe {
		tr.On(pattern, func(channel string, payload json.RawMessage) {
			stdlog.Printf("[%s] %s", channel, payload)
		})
	}
	tr.OnClose(func(code int, reason string) {
		stdlog.Printf("Connection closed (%d): %s", code, reason)
	})
	tr.OnError(func(err error) {
		stdlog.Printf("Connection error: %v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := connection.NewSupervisor(tr, connection.Config{
		Backoff: connection.BackoffConfig{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
		},
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		Logger:      logger,
	})
	sup.OnRetry(func(attempt int, delay time.Duration) {
		stdlog.Printf("Redial attempt %d in %v", attempt, delay)
	})
	sup.OnGiveUp(func(err error) {
		stdlog.Printf("Giving up: %v", err)
		cancel()
	})

	if cfg.Reconnect.Disabled {
		if err := tr.Connect(ctx, cfg.Server); err != nil {
			stdlog.Fatalf("Failed to connect: %v", err)
		}
	} else {
		if err := sup.Start(ctx, cfg.Server); err != nil {
			stdlog.Fatalf("Failed to connect: %v", err)
		}
	}
	stdlog.Println("Connected")

	var ka *transport.KeepAlive
	if !cfg.KeepAlive.Disabled {
		ka = tr.StartKeepAlive(ctx, transport.KeepAliveConfig{
			PingInterval:   cfg.KeepAlive.PingInterval,
			PongTimeout:    cfg.KeepAlive.PongTimeout,
			MaxMissedPongs: cfg.KeepAlive.MaxMissedPongs,
		})
	}

	if cfg.StatusInterval > 0 {
		go runStatusLoop(ctx, tr, cfg.StatusInterval)
	}

	if f.interactive {
		ic, err := interactive.New(tr, sup)
		if err != nil {
			stdlog.Fatalf("Failed to start interactive mode: %v", err)
		}
		// Redirect log output through readline to avoid interfering
		// with input.
		stdlog.SetOutput(ic.Stdout())
		go ic.Run(ctx, cancel)
	}

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Cancelled, e.g. by the interactive quit command
	}

	stdlog.Println("Shutting down...")

	if ka != nil {
		ka.Stop()
	}
	cancel()
	sup.Stop()
	_ = tr.Disconnect()

	stdlog.Println("Goodbye!")
}

func parseFlags(f *flags) {
	flag.StringVar(&f.server, "server", "", "Endpoint address (ws:// or wss://)")
	flag.StringVar(&f.publicKey, "public-key", "", "Agent public key")
	flag.StringVar(&f.secretKey, "secret-key", "", "Pre-shared secret key")
	flag.StringVar(&f.serverName, "name", "", "Reported machine name (default: hostname)")
	flag.StringVar(&f.configFile, "config", "", "Configuration file path")
	flag.StringVar(&f.subscribe, "subscribe", "", "Comma-separated channel patterns to print")
	flag.StringVar(&f.logFile, "log-file", "", "Append structured CBOR events to this file")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&f.interactive, "interactive", false, "Enable the interactive command prompt")
	flag.BoolVar(&f.showVersion, "version", false, "Print the version and exit")
	flag.Parse()
}

// buildConfig merges the config file (if any) with flag overrides and
// validates the result.
func buildConfig(f flags) (*Config, error) {
	cfg := &Config{}
	if f.configFile != "" {
		loaded, err := loadConfigFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.server != "" {
		cfg.Server = f.server
	}
	if f.publicKey != "" {
		cfg.PublicKey = f.publicKey
	}
	if f.secretKey != "" {
		cfg.SecretKey = f.secretKey
	}
	if f.serverName != "" {
		cfg.ServerName = f.serverName
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.subscribe != "" {
		cfg.Subscribe = nil
		for _, p := range strings.Split(f.subscribe, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Subscribe = append(cfg.Subscribe, p)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds)

	switch level {
	case "debug":
		stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds | stdlog.Lshortfile)
	case "warn", "error":
		stdlog.SetFlags(stdlog.Ltime)
	}
}

// buildLogger assembles the structured event logger: an slog console
// adapter, plus a CBOR file logger when configured.
func buildLogger(cfg *Config) (log.Logger, func(), error) {
	console := log.NewSlogAdapter(slog.Default())
	if cfg.LogFile == "" {
		return console, func() {}, nil
	}

	file, err := log.NewFileLogger(cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := file.Close(); err != nil {
			stdlog.Printf("Error closing event log: %v", err)
		}
	}
	return log.NewMultiLogger(console, file), closer, nil
}

// runStatusLoop periodically publishes system metadata on the status
// channel. Send failures while disconnected are expected and skipped;
// the supervisor restores the connection.
func runStatusLoop(ctx context.Context, tr *transport.Transport, interval time.Duration) {
	provider := sysinfo.System{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !tr.IsConnected() {
				continue
			}
			meta, err := provider.Metadata(ctx)
			if err != nil {
				stdlog.Printf("Status probe failed: %v", err)
				continue
			}
			if err := tr.Send("status", meta); err != nil {
				stdlog.Printf("Status send skipped: %v", err)
			}
		}
	}
}
