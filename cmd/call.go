// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"code.hybscloud.com/captp"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// argJSON keeps integer arguments integral.
var argJSON = jsoniter.Config{UseNumber: true}.Froze()

func newCallCmd(cfg *viper.Viper) *cobra.Command {
	var then []string
	cmd := &cobra.Command{
		Use:   "call METHOD [JSON-ARG...]",
		Short: "Call a method on a peer's bootstrap object and print the result",
		Long: "call bootstraps the peer and sends METHOD without waiting for the bootstrap answer. " +
			"Each --then sends a further method, with no arguments, to the still-unsettled previous result.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog, err := loggerFromConfig(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			callArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetDuration(keyTimeout))
			defer cancel()

			var d net.Dialer
			nc, err := d.DialContext(ctx, "tcp", cfg.GetString(keyConnect))
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			c := captp.NewConn(ctx, nc, captp.WithLogger(log), captp.WithName("call"))
			defer func() { _ = c.Close(nil) }()

			v, err := callChain(ctx, c, args[0], callArgs, then)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().String("connect", "", "TCP address of the peer")
	cmd.Flags().StringArrayVar(&then, "then", nil, "pipeline a further method on the result (repeatable)")
	cmd.Flags().Duration("timeout", 0, "give up after this long")
	_ = cfg.BindPFlag(keyConnect, cmd.Flags().Lookup("connect"))
	_ = cfg.BindPFlag(keyTimeout, cmd.Flags().Lookup("timeout"))
	return cmd
}

// callChain sends method to the peer's bootstrap object, then each of then
// to the previous result, all before any answer arrives.
func callChain(ctx context.Context, c *captp.Conn, method string, args []any, then []string) (any, error) {
	return c.Await(ctx, func(s *captp.Session) *captp.Promise {
		p := captp.E(s.Bootstrap(), method, args...)
		for _, m := range then {
			p = captp.E(p, m)
		}
		return p
	})
}

func parseArgs(raw []string) ([]any, error) {
	out := make([]any, len(raw))
	for i, r := range raw {
		var v any
		if err := argJSON.UnmarshalFromString(r, &v); err != nil {
			return nil, fmt.Errorf("argument %d is not JSON: %w", i+1, err)
		}
		out[i] = numbers(v)
	}
	return out, nil
}

// numbers replaces decoded number text with int64 where it fits and
// float64 otherwise.
func numbers(v any) any {
	switch t := v.(type) {
	case interface {
		Int64() (int64, error)
		Float64() (float64, error)
	}:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i, x := range t {
			t[i] = numbers(x)
		}
	case map[string]any:
		for k, x := range t {
			t[k] = numbers(x)
		}
	}
	return v
}

func writeResult(w io.Writer, v any) error {
	var re *captp.RemoteError
	if err, ok := v.(error); ok && errors.As(err, &re) {
		v = map[string]any{"error": re.Name, "message": re.Message}
	}
	out, err := json.MarshalIndent(printable(v), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printable replaces references with their names.
func printable(v any) any {
	switch t := v.(type) {
	case *captp.Presence:
		return t.String()
	case *captp.Promise:
		return "Promise"
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = printable(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = printable(x)
		}
		return out
	}
	return v
}
