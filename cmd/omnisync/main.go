// Command omnisync is the terminal client: it runs the sync components
// in-process and renders the inbox and threads with tview.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/daemon"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/session"
	"github.com/matheus3301/omnisync/internal/status"
	"github.com/matheus3301/omnisync/internal/tui"
)

var (
	profileFlag string
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "omnisync",
	Short:         "Terminal client for the omnichannel inbox",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := session.Resolve(profileFlag)
		if err := session.ValidateName(profile); err != nil {
			return err
		}
		if err := session.EnsureDir(profile); err != nil {
			return err
		}
		return run(daemon.Params{
			Profile:     profile,
			Binary:      "omnisync",
			ConfigPath:  configFlag,
			FileLogOnly: true,
		})
	},
}

func init() {
	rootCmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "config file (default ~/.omnisync/config.toml)")
}

func run(p daemon.Params) error {
	var (
		in      *inbox.View
		b       *bus.Bus
		machine *status.Machine
		open    daemon.ThreadOpener
		logger  *zap.Logger
	)
	app := fx.New(
		daemon.Client(p),
		fx.Populate(&in, &b, &machine, &open, &logger),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ui := tui.NewApp(tui.Deps{
		Profile:    p.Profile,
		Inbox:      in,
		Bus:        b,
		Machine:    machine,
		OpenThread: open,
		Logger:     logger.Named("tui"),
	})
	runErr := ui.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
