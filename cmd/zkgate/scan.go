package main

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/privacybydesign/zkgate/internal/common"
	"github.com/privacybydesign/zkgate/optical"
	"github.com/spf13/cobra"
)

var errProofRejected = errors.New("entry proof rejected")

func scanCmd(opts *rootOptions) *cobra.Command {
	var (
		gateKeyFile string
		plain       bool
	)
	cmd := &cobra.Command{
		Use:   "scan <image.png>",
		Short: "Check an entry proof offline",
		Long:  "Decode a QR code image, open it with the gate key and verify the entry proof it holds. The public key is not invalidated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if gateKeyFile == "" {
				gateKeyFile = opts.conf.Gate.KeyFile
			}
			params, err := zkgate.LoadParameters(opts.conf.Params.File)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer common.Close(f)
			text, err := optical.DecodePNG(f)
			if err != nil {
				return err
			}

			var bundle *zkgate.ProofBundle
			if plain {
				bundle, err = zkgate.ParseProofBundle([]byte(text))
			} else {
				bundle, err = openEnvelope([]byte(text), gateKeyFile)
			}
			if err != nil {
				return err
			}
			if !zkgate.VerifyBundle(params, bundle, opts.conf.Gate.ID) {
				return errProofRejected
			}
			y, err := bundle.Y.MarshalText()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid entry proof\npublic key: %s\ninvalidation id: %s\n", y, bundle.InvalidationID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&gateKeyFile, "gate-key", "", "private key of the gate (default gate.keyFile from the configuration)")
	flags.BoolVar(&plain, "plain", false, "the code holds an unencrypted proof")
	return cmd
}

func openEnvelope(text []byte, gateKeyFile string) (*zkgate.ProofBundle, error) {
	sk, err := envelope.LoadPrivateKeyFile(gateKeyFile)
	if err != nil {
		return nil, err
	}
	env, err := envelope.ParseEnvelope(text)
	if err != nil {
		return nil, err
	}
	return envelope.Open(env, sk)
}
