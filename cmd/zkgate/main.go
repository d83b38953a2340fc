// Command zkgate provisions, proves entry to and runs a zero-knowledge access gate.
package main

import (
	"os"

	"github.com/privacybydesign/zkgate/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Logger = logrus.StandardLogger()

type rootOptions struct {
	configFile string
	conf       *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "zkgate",
		Short:         "Zero-knowledge access gate",
		Long:          "zkgate admits a party that proves knowledge of the secret behind a one-time public key, and has that key invalidated so the proof cannot be replayed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if err = conf.ConfigureLogger(Logger); err != nil {
				return err
			}
			opts.conf = conf
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "configuration file (YAML)")

	cmd.AddCommand(
		setupCmd(opts),
		gatekeyCmd(opts),
		enrollCmd(opts),
		proveCmd(opts),
		rotateCmd(opts),
		scanCmd(opts),
		serveCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		Logger.Error(err)
		os.Exit(1)
	}
}
