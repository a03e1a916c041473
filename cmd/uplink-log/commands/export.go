package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/uplink-protocol/uplink-go/pkg/log"
)

// RunExport converts the log file to JSONL or CSV.
func RunExport(path, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (want jsonl or csv)", format)
	}
}

// jsonEvent mirrors log.Event with readable field names for export.
type jsonEvent struct {
	Timestamp    string                `json:"timestamp"`
	ConnectionID string                `json:"connection_id,omitempty"`
	Direction    string                `json:"direction"`
	Category     string                `json:"category"`
	RemoteAddr   string                `json:"remote_addr,omitempty"`
	Envelope     *log.EnvelopeEvent    `json:"envelope,omitempty"`
	StateChange  *log.StateChangeEvent `json:"state_change,omitempty"`
	Control      *log.ControlEvent     `json:"control,omitempty"`
	Drop         *log.DropEvent        `json:"drop,omitempty"`
	Error        *log.ErrorEventData   `json:"error,omitempty"`
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		je := jsonEvent{
			Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			ConnectionID: event.ConnectionID,
			Direction:    event.Direction.String(),
			Category:     event.Category.String(),
			RemoteAddr:   event.RemoteAddr,
			Envelope:     event.Envelope,
			StateChange:  event.StateChange,
			Control:      event.Control,
			Drop:         event.Drop,
			Error:        event.Error,
		}
		if err := enc.Encode(je); err != nil {
			return fmt.Errorf("failed to write JSONL: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "category", "remote_addr", "channel", "size", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var channel, size, detail string
		switch {
		case event.Envelope != nil:
			channel = event.Envelope.Channel
			size = strconv.Itoa(event.Envelope.Size)
		case event.StateChange != nil:
			detail = event.StateChange.OldState + " -> " + event.StateChange.NewState
		case event.Control != nil:
			detail = event.Control.Type
			if event.Control.Code != 0 {
				detail += " " + strconv.Itoa(event.Control.Code)
			}
		case event.Drop != nil:
			detail = event.Drop.Reason
			if event.Drop.Size > 0 {
				size = strconv.Itoa(event.Drop.Size)
			}
		case event.Error != nil:
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Category.String(),
			event.RemoteAddr,
			channel,
			size,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
}
