// Package commands implements the uplink-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/uplink-protocol/uplink-go/pkg/log"
)

// FilterOptions holds the raw flag values shared by the view and
// filter commands.
type FilterOptions struct {
	ConnID    string
	Direction string
	Category  string
	Channel   string
	TimeStart string
	TimeEnd   string
}

// BuildFilter parses flag values into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		Channel:      opts.Channel,
	}

	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid start time: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid end time: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

func parseDirection(s string) (log.Direction, error) {
	switch s {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s (want in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch s {
	case "envelope":
		return log.CategoryEnvelope, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "drop":
		return log.CategoryDrop, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s", s)
	}
}

// RunView reads the log file and writes matching events to w in a
// human-readable format.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		formatEvent(w, event)
		count++
	}

	fmt.Fprintf(w, "%d events\n", count)
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION CATEGORY
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s\n", ts, connID, event.Direction, event.Category)

	switch {
	case event.Envelope != nil:
		formatEnvelopeDetails(w, event)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Control != nil:
		formatControlDetails(w, event.Control)
	case event.Drop != nil:
		formatDropDetails(w, event.Drop)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatEnvelopeDetails(w io.Writer, event log.Event) {
	env := event.Envelope
	fmt.Fprintf(w, "  Channel: %s\n", env.Channel)
	fmt.Fprintf(w, "  Size: %d bytes\n", env.Size)
	if event.Direction == log.DirectionIn {
		fmt.Fprintf(w, "  Subscribers: %d\n", env.Subscribers)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Transition: %s -> %s\n", sc.OldState, sc.NewState)
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatControlDetails(w io.Writer, ctrl *log.ControlEvent) {
	fmt.Fprintf(w, "  Type: %s\n", ctrl.Type)
	if ctrl.Type == "close" {
		fmt.Fprintf(w, "  Code: %d\n", ctrl.Code)
		if ctrl.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", ctrl.Reason)
		}
	}
}

func formatDropDetails(w io.Writer, drop *log.DropEvent) {
	fmt.Fprintf(w, "  Reason: %s\n", drop.Reason)
	if drop.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", drop.Size)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}
