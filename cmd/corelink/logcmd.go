package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read protocol captures (.clog)",
	}
	cmd.AddCommand(newLogViewCmd(), newLogStatsCmd(), newLogExportCmd())
	return cmd
}

// filterFlags are the event filters shared by view and export.
type filterFlags struct {
	layer     string
	direction string
	category  string
	verb      string
	connID    string
	requestID int64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.layer, "layer", "", "only this layer (transport, wire, service)")
	fs.StringVar(&f.direction, "direction", "", "only this direction (in, out)")
	fs.StringVar(&f.category, "category", "", "only this category (message, probe, state, error)")
	fs.StringVar(&f.verb, "verb", "", "only messages with this verb (REQUEST, COMPLETE, CONTINUE)")
	fs.StringVar(&f.connID, "conn-id", "", "only this connection id")
	fs.Int64Var(&f.requestID, "request-id", 0, "only this request id")
}

func (f *filterFlags) filter() (log.Filter, error) {
	var out log.Filter
	out.ConnectionID = f.connID
	if f.layer != "" {
		l, err := parseLayer(f.layer)
		if err != nil {
			return out, err
		}
		out.Layer = &l
	}
	if f.direction != "" {
		d, err := parseDirection(f.direction)
		if err != nil {
			return out, err
		}
		out.Direction = &d
	}
	if f.category != "" {
		c, err := parseCategory(f.category)
		if err != nil {
			return out, err
		}
		out.Category = &c
	}
	if f.verb != "" {
		v, err := wire.ParseVerb(strings.ToUpper(f.verb))
		if err != nil {
			return out, err
		}
		out.Verb = &v
	}
	if f.requestID != 0 {
		id := f.requestID
		out.RequestID = &id
	}
	return out, nil
}

func newLogViewCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "view <file.clog>",
		Short: "Print events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return eachEvent(args[0], filter, func(ev log.Event) error {
				formatEvent(cmd.OutOrStdout(), ev)
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newLogExportCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "export <file.clog>",
		Short: "Write events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return eachEvent(args[0], filter, func(ev log.Event) error {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("failed to encode event: %w", err)
				}
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newLogStatsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats <file.clog>",
		Short: "Summarize a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := log.NewStats()
			if err := eachEvent(args[0], log.Filter{}, func(ev log.Event) error {
				stats.Add(ev)
				return nil
			}); err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of message names to list")
	return cmd
}

// eachEvent streams the matching events of a capture file to fn.
func eachEvent(path string, filter log.Filter, fn func(log.Event) error) error {
	r, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// formatEvent writes one event: a header line, details, a blank line.
func formatEvent(w io.Writer, ev log.Event) {
	ts := ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var label string
	switch {
	case ev.Frame != nil:
		label = "Frame"
	case ev.Message != nil:
		label = ev.Message.Verb.String()
	case ev.StateChange != nil:
		label = "State"
	case ev.Probe != nil:
		label = "Probe"
	case ev.Error != nil:
		label = "Error"
	default:
		label = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, shortenConnID(ev.ConnectionID), ev.Direction, ev.Layer, label)

	switch {
	case ev.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", ev.Frame.Size)
		if len(ev.Frame.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(ev.Frame.Data))
			if ev.Frame.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case ev.Message != nil:
		m := ev.Message
		fmt.Fprintf(w, "  RequestID: %d\n  Name: %s\n", m.RequestID, m.Name)
		if m.BodySize > 0 {
			fmt.Fprintf(w, "  Body: %d bytes %s\n", m.BodySize, m.ContentType)
		}
		if m.RoundTrip != nil {
			fmt.Fprintf(w, "  RoundTrip: %s\n", formatDuration(*m.RoundTrip))
		}
		if m.Payload != nil {
			if out, err := json.Marshal(m.Payload); err == nil {
				fmt.Fprintf(w, "  Payload: %s\n", out)
			}
		}
	case ev.StateChange != nil:
		sc := ev.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case ev.Probe != nil:
		p := ev.Probe
		fmt.Fprintf(w, "  %s %s (request %d) answered=%t\n", p.Type, p.Name, p.RequestID, p.Answered)
	case ev.Error != nil:
		fmt.Fprintf(w, "  Layer: %s\n  Message: %s\n", ev.Error.Layer, ev.Error.Message)
		if ev.Error.RequestID != nil {
			fmt.Fprintf(w, "  RequestID: %d\n", *ev.Error.RequestID)
		}
		if ev.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", ev.Error.Context)
		}
	}
	if ev.RemoteAddr != "" {
		fmt.Fprintf(w, "  Core: %s", ev.RemoteAddr)
		if ev.CoreID != "" {
			fmt.Fprintf(w, " (%s)", ev.CoreID)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func printStats(w io.Writer, s *log.Stats, top int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Events:\t%d\n", s.Events)
	if s.Events > 0 {
		fmt.Fprintf(tw, "Time range:\t%s .. %s (%s)\n",
			s.First.UTC().Format(time.RFC3339), s.Last.UTC().Format(time.RFC3339), s.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(tw, "Connections:\t%d\n", s.Connections)
	fmt.Fprintf(tw, "Body bytes:\t%d\n", s.BodyBytes)
	fmt.Fprintf(tw, "Errors:\t%d\n", s.Errors)

	fmt.Fprintln(tw, "\nBy layer:")
	for _, l := range sortedKeys(s.ByLayer) {
		fmt.Fprintf(tw, "  %s\t%d\n", l, s.ByLayer[l])
	}
	fmt.Fprintln(tw, "\nBy category:")
	for _, c := range sortedKeys(s.ByCategory) {
		fmt.Fprintf(tw, "  %s\t%d\n", c, s.ByCategory[c])
	}
	if names := s.TopNames(top); len(names) > 0 {
		fmt.Fprintln(tw, "\nTop names:")
		for _, nc := range names {
			fmt.Fprintf(tw, "  %s\t%d\n", nc.Name, nc.Count)
		}
	}
	_ = tw.Flush()
}

func sortedKeys[K ~uint8, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or service)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "probe":
		return log.CategoryProbe, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, probe, state, or error)", s)
	}
}
