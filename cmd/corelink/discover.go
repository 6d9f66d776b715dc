package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/pkg/discovery"
)

func newDiscoverCmd(v *viper.Viper) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List Cores answering discovery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.discoverer()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			n := runDiscover(ctx, d, func(c discovery.Core) {
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Address(), c.UniqueID, c.DisplayVersion, c.Source)
				_ = tw.Flush()
			})
			if n == 0 {
				fmt.Fprintln(a.out, "no cores found")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to listen")
	return cmd
}

// runDiscover reports every Core found until ctx is done and returns how
// many were found.
func runDiscover(ctx context.Context, d discovery.Discoverer, report func(discovery.Core)) int {
	found := make(chan discovery.Core, 16)
	d.Start(func(c discovery.Core) {
		select {
		case found <- c:
		case <-ctx.Done():
		}
	})
	defer d.Stop()

	n := 0
	for {
		select {
		case c := <-found:
			n++
			report(c)
		case <-ctx.Done():
			return n
		}
	}
}
