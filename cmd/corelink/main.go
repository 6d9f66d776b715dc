// Command corelink discovers Cores on the LAN, registers with them as an
// extension and exchanges requests from the command line.
//
// Usage:
//
//	corelink discover                    list Cores answering discovery
//	corelink connect [--host h --port p] run a session until interrupted
//	corelink request <name> [json-body]  send one request and print the reply
//	corelink shell                       interactive session
//	corelink token show|clear|export     manage the stored registration token
//	corelink log view|stats <file.clog>  read protocol captures
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(viper.New()).ExecuteContext(ctx)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "corelink",
		Short:         "Client for Core music servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindGlobalFlags(root, v)

	root.AddCommand(newDiscoverCmd(v))
	root.AddCommand(newConnectCmd(v))
	root.AddCommand(newRequestCmd(v))
	root.AddCommand(newShellCmd(v))
	root.AddCommand(newTokenCmd(v))
	root.AddCommand(newLogCmd())
	return root
}
