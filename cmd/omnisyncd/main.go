// Command omnisyncd keeps one CRM profile's inbox in sync with the backend
// and serves its state on a local gRPC socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/daemon"
	"github.com/matheus3301/omnisync/internal/session"
)

var (
	profileFlag string
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "omnisyncd",
	Short:         "Run the sync daemon for a profile",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := session.Resolve(profileFlag)
		if err := session.ValidateName(profile); err != nil {
			return err
		}

		app := fx.New(
			daemon.Module(daemon.Params{Profile: profile, ConfigPath: configFlag}),
			fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: l.Named("fx")}
			}),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "config file (default ~/.omnisync/config.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
