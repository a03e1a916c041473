package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/uplink-protocol/uplink-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EnvelopesByChannel map[string]int
	BytesIn           int
	BytesOut          int
	Drops             int
	Errors            int
	Connections       map[string]*ConnectionStats
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

// CollectStats reads the whole log file and aggregates statistics.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:   make(map[log.Category]int),
		EventsByDirection:  make(map[log.Direction]int),
		EnvelopesByChannel: make(map[string]int),
		Connections:        make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		switch event.Category {
		case log.CategoryEnvelope:
			if event.Envelope != nil {
				stats.EnvelopesByChannel[event.Envelope.Channel]++
				if event.Direction == log.DirectionIn {
					stats.BytesIn += event.Envelope.Size
				} else {
					stats.BytesOut += event.Envelope.Size
				}
			}
		case log.CategoryDrop:
			stats.Drops++
		case log.CategoryError:
			stats.Errors++
		}

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track connection stats
		if event.ConnectionID == "" {
			continue
		}
		conn, ok := stats.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.Before(conn.FirstSeen) {
			conn.FirstSeen = event.Timestamp
		}
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if event.RemoteAddr != "" {
			conn.RemoteAddr = event.RemoteAddr
		}
	}

	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if !stats.TimeRange.Start.IsZero() {
		fmt.Fprintf(w, "Time range:   %s - %s (%s)\n",
			stats.TimeRange.Start.UTC().Format(time.RFC3339),
			stats.TimeRange.End.UTC().Format(time.RFC3339),
			stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
	}

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range []log.Category{log.CategoryEnvelope, log.CategoryControl, log.CategoryState, log.CategoryDrop, log.CategoryError} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-9s %d\n", c, n)
		}
	}

	fmt.Fprintln(w, "\nBy direction:")
	fmt.Fprintf(w, "  IN   %d (%d bytes in envelopes)\n", stats.EventsByDirection[log.DirectionIn], stats.BytesIn)
	fmt.Fprintf(w, "  OUT  %d (%d bytes in envelopes)\n", stats.EventsByDirection[log.DirectionOut], stats.BytesOut)

	if len(stats.EnvelopesByChannel) > 0 {
		fmt.Fprintln(w, "\nEnvelopes by channel:")
		channels := make([]string, 0, len(stats.EnvelopesByChannel))
		for ch := range stats.EnvelopesByChannel {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			fmt.Fprintf(w, "  %-24s %d\n", ch, stats.EnvelopesByChannel[ch])
		}
	}

	if len(stats.Connections) > 0 {
		fmt.Fprintf(w, "\nConnections: %d\n", len(stats.Connections))
		ids := make([]string, 0, len(stats.Connections))
		for id := range stats.Connections {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			conn := stats.Connections[id]
			fmt.Fprintf(w, "  %s  %d events, %s",
				shortenConnID(id), conn.Events,
				conn.LastSeen.Sub(conn.FirstSeen).Round(time.Millisecond))
			if conn.RemoteAddr != "" {
				fmt.Fprintf(w, ", %s", conn.RemoteAddr)
			}
			fmt.Fprintln(w)
		}
	}

	if stats.Drops > 0 || stats.Errors > 0 {
		fmt.Fprintf(w, "\nDrops: %d  Errors: %d\n", stats.Drops, stats.Errors)
	}

	return nil
}
