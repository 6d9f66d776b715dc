package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/corelink/corelink-go/pkg/persistence"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored registration token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored token",
		Args:  cobra.NoArgs,
		RunE: withKeystore(v, func(a *app, ks persistence.Keystore, _ []string) error {
			tok, err := ks.LoadToken()
			if err != nil {
				return err
			}
			return showToken(a.out, tok)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored token; the next connection must be approved again",
		Args:  cobra.NoArgs,
		RunE: withKeystore(v, func(a *app, ks persistence.Keystore, _ []string) error {
			if err := ks.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "token cleared")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the stored token as YAML",
		Args:  cobra.NoArgs,
		RunE: withKeystore(v, func(a *app, ks persistence.Keystore, _ []string) error {
			tok, err := ks.LoadToken()
			if err != nil {
				return err
			}
			if tok == nil {
				return fmt.Errorf("no token stored")
			}
			return exportToken(a.out, tok)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Store a token exported with 'token export'",
		Args:  cobra.ExactArgs(1),
		RunE: withKeystore(v, func(a *app, ks persistence.Keystore, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			tok, err := importToken(f)
			if err != nil {
				return err
			}
			if err := ks.SaveToken(tok.Token, tok.CoreID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "token for core %s imported\n", tok.CoreID)
			return nil
		}),
	})

	return cmd
}

// withKeystore runs fn with the configured keystore open.
func withKeystore(v *viper.Viper, fn func(*app, persistence.Keystore, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, v)
		if err != nil {
			return err
		}
		defer a.close()
		ks, err := a.openKeystore()
		if err != nil {
			return err
		}
		return fn(a, ks, args)
	}
}

func showToken(w io.Writer, tok *persistence.Token) error {
	if tok == nil {
		_, err := fmt.Fprintln(w, "no token stored")
		return err
	}
	_, err := fmt.Fprintf(w, "core id:  %s\ntoken:    %s\nsaved at: %s\n",
		tok.CoreID, redact(tok.Token), tok.SavedAt.Format("2006-01-02 15:04:05 MST"))
	return err
}

// redact keeps the first four characters of a secret.
func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func exportToken(w io.Writer, tok *persistence.Token) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tok); err != nil {
		return err
	}
	return enc.Close()
}

func importToken(r io.Reader) (*persistence.Token, error) {
	var tok persistence.Token
	if err := yaml.NewDecoder(r).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("decode token: no token in input")
	}
	return &tok, nil
}
