package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/internal/config"
	"github.com/corelink/corelink-go/pkg/wire"
)

func newRequestCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <name> [json-body]",
		Short: "Connect, send one request and print the reply",
		Example: `  corelink request svc.browse:1/browse '{"hierarchy":"browse","pop_all":true}'
  corelink request --host 192.168.1.20 --port 9330 svc.transport:2/get_zones`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			body, err := parseBody(args[1:])
			if err != nil {
				return err
			}

			waiter := newStateWaiter()
			s, err := a.newSession(sessionHooks{onState: waiter.observe})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := a.start(s); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Session.RequestTimeout+a.cfg.Transport.ConnectTimeout+a.cfg.Discovery.Interval)
			defer cancel()
			if err := waiter.waitConnected(ctx, s); err != nil {
				return err
			}

			resp, err := s.SendRequest(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return printReply(a.out, resp)
		},
	}
	config.AddConnectFlags(cmd)
	return cmd
}

// parseBody turns an optional JSON argument into a request body.
func parseBody(args []string) (wire.Body, error) {
	if len(args) == 0 || args[0] == "" {
		return wire.Body{}, nil
	}
	if !json.Valid([]byte(args[0])) {
		return wire.Body{}, fmt.Errorf("request body is not valid JSON")
	}
	return wire.RawBody(wire.ContentTypeJSON, []byte(args[0])), nil
}

// printReply writes the status line and an indented body.
func printReply(w io.Writer, msg *wire.Message) error {
	fmt.Fprintf(w, "%s %s (request %d)\n", msg.Verb, msg.Name, msg.RequestID)
	if msg.Body.IsEmpty() {
		return nil
	}
	var buf bytes.Buffer
	if doc := msg.Body.Map(); doc != nil {
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		buf.Write(out)
	} else {
		fmt.Fprintf(&buf, "<%d bytes %s>", msg.Body.Len(), msg.Body.ContentType)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
