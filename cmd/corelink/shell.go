package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/internal/config"
	"github.com/corelink/corelink-go/internal/observability"
	"github.com/corelink/corelink-go/pkg/session"
)

func newShellCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "corelink> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			// Route logs through readline so they do not garble the prompt.
			a.logger = observability.SetupLogger(a.cfg.Observability.LogLevel, a.cfg.Observability.LogFormat, rl.Stderr())
			a.out = rl.Stdout()

			sh := &shell{app: a, out: rl.Stdout()}
			s, err := a.newSession(sessionHooks{
				onState: func(st session.State) { fmt.Fprintf(sh.out, "* %s\n", st) },
				onQueue: func(zoneID string, data []byte) {
					fmt.Fprintf(sh.out, "* queue %s: %d bytes\n", zoneID, len(data))
				},
			})
			if err != nil {
				return err
			}
			defer s.Close()
			sh.s = s

			if err := a.start(s); err != nil {
				return err
			}
			sh.printHelp()
			return sh.run(cmd.Context(), rl)
		},
	}
	config.AddConnectFlags(cmd)
	return cmd
}

// shell is the interactive command loop.
type shell struct {
	app *app
	s   *session.Session
	out io.Writer
}

func (sh *shell) run(ctx context.Context, rl *readline.Instance) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(sh.out, "Exiting...")
			return nil
		}
		if sh.exec(ctx, line) {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		sh.printHelp()
	case "state", "s":
		fmt.Fprintln(sh.out, sh.s.State())
		if id := sh.s.CoreID(); id != "" {
			fmt.Fprintf(sh.out, "core id: %s\n", id)
		}
	case "services":
		n := sh.s.Services()
		fmt.Fprintf(sh.out, "registry:  %s\ntransport: %s\nbrowse:    %s\nimage:     %s\n",
			n.Registry, n.Transport, n.Browse, n.Image)
	case "request", "r":
		sh.cmdRequest(ctx, args)
	case "queue", "q":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "usage: queue <zone-or-output-id>")
			return false
		}
		sh.report(sh.s.SubscribeQueue(args[0]))
	case "connect":
		sh.cmdConnect(args)
	case "disconnect":
		sh.report(sh.s.Disconnect())
	case "quit", "exit":
		fmt.Fprintln(sh.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (sh *shell) cmdRequest(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, "usage: request <service/method> [json-body]")
		return
	}
	body, err := parseBody([]string{strings.Join(args[1:], " ")})
	if err != nil {
		sh.report(err)
		return
	}
	resp, err := sh.s.SendRequest(ctx, args[0], body)
	if err != nil {
		sh.report(err)
		return
	}
	sh.report(printReply(sh.out, resp))
}

func (sh *shell) cmdConnect(args []string) {
	switch len(args) {
	case 0:
		sh.report(sh.app.start(sh.s))
	case 2:
		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(sh.out, "invalid port %q\n", args[1])
			return
		}
		sh.report(sh.s.ConnectDirect(args[0], port))
	default:
		fmt.Fprintln(sh.out, "usage: connect [host port]")
	}
}

func (sh *shell) report(err error) {
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
	}
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, `
Commands:
  state                          - Show the session state
  services                       - Show negotiated service names
  request <name> [json-body]     - Send a request and print the reply
  queue <zone-or-output-id>      - Subscribe to a queue
  connect [host port]            - Connect (discovery without an address)
  disconnect                     - Disconnect and stop reconnecting
  help                           - Show this help
  quit                           - Exit`)
}
