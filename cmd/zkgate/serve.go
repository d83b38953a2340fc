package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/privacybydesign/zkgate/gate"
	"github.com/privacybydesign/zkgate/internal/common"
	"github.com/privacybydesign/zkgate/invalidation"
	"github.com/spf13/cobra"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gate",
		Long:  "Run the gate HTTP service. The domain parameters and the gate key are loaded once at startup; the gate never generates keys.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := opts.conf
			params, err := zkgate.LoadParameters(conf.Params.File)
			if err != nil {
				return err
			}
			if err = params.ValidateForDeployment(); err != nil {
				return err
			}
			key, err := envelope.LoadPrivateKeyFile(conf.Gate.KeyFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			authority, closer, err := openAuthority(ctx, conf, params)
			if err != nil {
				return err
			}
			defer common.Close(closer)

			server, err := gate.New(gate.Config{
				Params:      params,
				GateID:      conf.Gate.ID,
				Key:         key,
				Coordinator: invalidation.NewCoordinator(authority, params, conf.RetryPolicy()),
			})
			if err != nil {
				return err
			}
			defer common.Close(server)

			Logger.WithField("backend", conf.Ledger.Backend).Infof("%d-bit parameters loaded", params.P.BitLen())
			err = server.ListenAndServe(ctx, conf.Gate.Listen)
			if ctx.Err() != nil {
				Logger.Info("gate stopped")
			}
			return err
		},
	}
}
