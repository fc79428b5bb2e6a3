// Command minikern boots the kernel reference model and attaches the
// serial console to the host terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"minikern"
	"minikern/console"
	"minikern/shell"
)

type cmdRun struct {
	script      string
	metricsAddr string
}

func (c *cmdRun) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minikern",
		Short: "tick-driven process scheduling engine",
		Long: `Boots the minikern reference model and runs its command shell on
stdin/stdout. Without -c the shell is interactive; with -c the given
semicolon-separated commands run and the process exits.`,
		RunE:          c.Run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&c.script, "commands", "c", "",
		"semicolon-separated shell commands to run instead of the REPL")
	cmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address (e.g. :9091)")
	return cmd
}

func (c *cmdRun) Run(cmd *cobra.Command, args []string) error {
	con := console.New(os.Stdout, os.Stdin)
	k := minikern.New(con)
	k.Boot()
	sh := shell.New(k)

	g, ctx := errgroup.WithContext(context.Background())

	var srv *http.Server
	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: c.metricsAddr, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}
		}()

		if c.script != "" {
			for _, line := range strings.Split(c.script, ";") {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if !sh.Execute(strings.TrimSpace(line)) {
					break
				}
			}
			return nil
		}
		sh.Run()
		return nil
	})

	return g.Wait()
}

func main() {
	c := &cmdRun{}
	if err := c.Command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
