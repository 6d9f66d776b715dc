package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/corelink/corelink-go/internal/config"
	"github.com/corelink/corelink-go/internal/observability"
	"github.com/corelink/corelink-go/pkg/session"
)

func newConnectCmd(v *viper.Viper) *cobra.Command {
	var queues []string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a Core and stay connected until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()
			return runConnect(cmd.Context(), a, queues)
		},
	}
	config.AddConnectFlags(cmd)
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringSliceVar(&queues, "queue", nil, "subscribe to the queue of these zones once connected")
	return cmd
}

func runConnect(ctx context.Context, a *app, queues []string) error {
	connected := make(chan struct{}, 1)
	s, err := a.newSession(sessionHooks{
		onState: func(st session.State) {
			fmt.Fprintf(a.out, "state: %s\n", st)
			if st.IsConnected() {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
		onZones: func(data []byte) {
			a.logger.Info("zones update", "bytes", len(data))
		},
		onQueue: func(zoneID string, data []byte) {
			a.logger.Info("queue update", "zone_id", zoneID, "bytes", len(data))
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		srv, err := observability.NewMetricsServer(addr, a.metricsRegistry(), a.logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		g.Go(func() error { return srv.Run(ctx) })
	}

	subs := &queueSubscriptions{zones: queues, logger: a.logger}
	g.Go(func() error {
		if err := a.start(s); err != nil {
			return err
		}
		for {
			select {
			case <-connected:
				subs.connected(s)
			case <-ctx.Done():
				return s.Disconnect()
			}
		}
	})

	return g.Wait()
}

type queueSubscriber interface {
	SubscribeQueue(zoneID string) error
}

// queueSubscriptions subscribes the requested zones on the first connect.
// The session renews them itself after every reconnect.
type queueSubscriptions struct {
	zones  []string
	logger *slog.Logger
	done   bool
}

func (q *queueSubscriptions) connected(s queueSubscriber) {
	if q.done {
		return
	}
	q.done = true
	for _, zone := range q.zones {
		if err := s.SubscribeQueue(zone); err != nil {
			q.logger.Warn("queue subscription failed", "zone_id", zone, "error", err)
		}
	}
}
