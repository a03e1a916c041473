// Package interactive provides the interactive command-line interface
// for the uplink agent.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/uplink-protocol/uplink-go/pkg/connection"
	"github.com/uplink-protocol/uplink-go/pkg/sysinfo"
	"github.com/uplink-protocol/uplink-go/pkg/transport"
)

// Agent handles interactive mode for uplink-agent.
type Agent struct {
	tr  *transport.Transport
	sup *connection.Supervisor
	rl  *readline.Instance

	meta sysinfo.Provider
}

// New creates a new interactive agent handler.
func New(tr *transport.Transport, sup *connection.Supervisor) (*Agent, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "uplink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Agent{
		tr:   tr,
		sup:  sup,
		rl:   rl,
		meta: sysinfo.System{},
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (a *Agent) Stdout() io.Writer {
	return a.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline
// input.
func (a *Agent) Stderr() io.Writer {
	return a.rl.Stderr()
}

// Run starts the interactive command loop.
func (a *Agent) Run(ctx context.Context, cancel context.CancelFunc) {
	defer a.rl.Close()

	a.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := a.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(a.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			a.printHelp()

		case "send", "s":
			a.cmdSend(args)

		case "ping", "p":
			a.cmdPing(args)

		case "status":
			a.cmdStatus(ctx)

		case "state":
			a.cmdState()

		case "watch", "w":
			a.cmdWatch(args)

		case "reconnect":
			a.cmdReconnect(ctx)

		case "disconnect":
			a.cmdDisconnect()

		case "quit", "q", "exit":
			fmt.Fprintln(a.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(a.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (a *Agent) printHelp() {
	out := a.rl.Stdout()
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  send <channel> <json>   Send a payload on a channel (s)")
	fmt.Fprintln(out, "  ping [seq]              Send a ping control frame (p)")
	fmt.Fprintln(out, "  status                  Send a status envelope now")
	fmt.Fprintln(out, "  state                   Show connection and supervision state")
	fmt.Fprintln(out, "  watch <pattern>         Print messages matching a channel pattern (w)")
	fmt.Fprintln(out, "  reconnect               Drop and re-establish the connection")
	fmt.Fprintln(out, "  disconnect              Close the connection gracefully")
	fmt.Fprintln(out, "  help                    Show this help (?)")
	fmt.Fprintln(out, "  quit                    Exit (q)")
}

func (a *Agent) cmdSend(args []string) {
	out := a.rl.Stdout()
	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: send <channel> <json>")
		return
	}

	channel := args[0]
	raw := strings.Join(args[1:], " ")
	if !json.Valid([]byte(raw)) {
		fmt.Fprintf(out, "Payload is not valid JSON: %s\n", raw)
		return
	}

	if err := a.tr.Send(channel, json.RawMessage(raw)); err != nil {
		fmt.Fprintf(out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Sent on %s\n", channel)
}

func (a *Agent) cmdPing(args []string) {
	out := a.rl.Stdout()

	seq := uint64(1)
	if len(args) > 0 {
		parsed, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			fmt.Fprintf(out, "Invalid sequence number: %s\n", args[0])
			return
		}
		seq = parsed
	}

	if err := a.tr.Ping(transport.PingPayload{Seq: uint32(seq)}); err != nil {
		fmt.Fprintf(out, "Ping failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Ping sent (seq %d)\n", seq)
}

func (a *Agent) cmdStatus(ctx context.Context) {
	out := a.rl.Stdout()

	meta, err := a.meta.Metadata(ctx)
	if err != nil {
		fmt.Fprintf(out, "Status probe failed: %v\n", err)
		return
	}

	if err := a.tr.Send("status", meta); err != nil {
		fmt.Fprintf(out, "Status send failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Status sent: %s on %s (%s)\n", meta.Hostname, meta.Platform, meta.KernelArch)
}

func (a *Agent) cmdState() {
	out := a.rl.Stdout()
	fmt.Fprintf(out, "Transport:   %s (connected: %v)\n", a.tr.State(), a.tr.IsConnected())
	fmt.Fprintf(out, "Supervision: %s\n", a.sup.State())
	if addr := a.tr.LastAddress(); addr != "" {
		fmt.Fprintf(out, "Address:     %s\n", addr)
	}
}

func (a *Agent) cmdWatch(args []string) {
	out := a.rl.Stdout()
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: watch <pattern>")
		return
	}

	pattern := args[0]
	a.tr.On(pattern, func(channel string, payload json.RawMessage) {
		fmt.Fprintf(a.rl.Stdout(), "[%s] %s\n", channel, payload)
	})
	fmt.Fprintf(out, "Watching %s\n", pattern)
}

func (a *Agent) cmdReconnect(ctx context.Context) {
	out := a.rl.Stdout()
	if err := a.tr.Reconnect(ctx, ""); err != nil {
		fmt.Fprintf(out, "Reconnect failed: %v\n", err)
		return
	}
	fmt.Fprintln(out, "Reconnected")
}

func (a *Agent) cmdDisconnect() {
	out := a.rl.Stdout()
	if err := a.tr.Disconnect(); err != nil {
		fmt.Fprintf(out, "Disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintln(out, "Disconnected")
}
