package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/privacybydesign/zkgate/gate"
	"github.com/privacybydesign/zkgate/optical"
	"github.com/spf13/cobra"
)

// Output formats of the prove command.
const (
	formatTerminal = "terminal"
	formatPNG      = "png"
	formatHex      = "hex"
)

func proveCmd(opts *rootOptions) *cobra.Command {
	var (
		passphraseFile string
		gateKeyFile    string
		gateID         string
		format         string
		out            string
		moduleSize     int
		plain          bool
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Create an entry proof",
		Long: `Create a non-interactive entry proof for a gate, encrypt it to the gate key and render it as
a QR code (on the terminal or as PNG) or as hex for the process_user_entry endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gateID == "" {
				gateID = opts.conf.Gate.ID
			}
			params, err := zkgate.LoadParameters(opts.conf.Params.File)
			if err != nil {
				return err
			}
			kp, err := keyPairFromPassphrase(cmd, passphraseFile, "Passphrase", params)
			if err != nil {
				return err
			}
			defer kp.Wipe()

			bundle, err := zkgate.Prove(params, kp, gateID, nil)
			if err != nil {
				return err
			}
			var payload []byte
			if plain {
				payload, err = bundle.MarshalText()
			} else {
				payload, err = sealBundle(bundle, gateKeyFile)
			}
			if err != nil {
				return err
			}
			Logger.WithField("invalidation_id", bundle.InvalidationID).Info("created entry proof")

			if format == formatHex {
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(payload))
				return nil
			}
			code, err := (&optical.Encoder{ModuleSize: moduleSize}).Encode(payload)
			if err != nil {
				return err
			}
			switch format {
			case formatTerminal:
				fmt.Fprint(cmd.OutOrStdout(), code.Terminal())
				return nil
			case formatPNG:
				if out == "" {
					return errors.New("--out is required for png output")
				}
				png, err := code.PNG()
				if err != nil {
					return err
				}
				return os.WriteFile(out, png, 0644)
			}
			return errors.Errorf("unknown output format %q", format)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&passphraseFile, "passphrase-file", "", "read the passphrase from this file")
	flags.StringVar(&gateKeyFile, "gate-key", "gate_public_key.pem", "public key of the gate (PEM)")
	flags.StringVar(&gateID, "gate-id", "", "gate to prove entry to (default gate.id from the configuration)")
	flags.StringVarP(&format, "format", "f", formatTerminal, "terminal, png or hex")
	flags.StringVarP(&out, "out", "o", "", "output file for png output")
	flags.IntVar(&moduleSize, "module-size", optical.DefaultModuleSize, "pixels per QR module")
	flags.BoolVar(&plain, "plain", false, "do not encrypt the proof (testing only)")
	return cmd
}

func sealBundle(bundle *zkgate.ProofBundle, gateKeyFile string) ([]byte, error) {
	pk, err := envelope.LoadPublicKeyFile(gateKeyFile)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Seal(bundle, pk)
	if err != nil {
		return nil, err
	}
	return env.MarshalText()
}

func keyPairFromPassphrase(cmd *cobra.Command, file, prompt string, params *zkgate.DomainParameters) (*zkgate.KeyPair, error) {
	passphrase, err := readPassphrase(cmd, file, prompt)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(passphrase)
	return zkgate.DeriveKeyPair(passphrase, params)
}

func rotateCmd(opts *rootOptions) *cobra.Command {
	var oldFile, newFile string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Authorize replacing a public key",
		Long:  "Prove ownership of the key behind the old passphrase and print the update_public_key request that replaces it by the key behind the new passphrase.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if oldFile == "" || newFile == "" {
				return errors.New("--old-passphrase-file and --new-passphrase-file are required")
			}
			params, err := zkgate.LoadParameters(opts.conf.Params.File)
			if err != nil {
				return err
			}
			oldKp, err := keyPairFromPassphrase(cmd, oldFile, "Old passphrase", params)
			if err != nil {
				return err
			}
			defer oldKp.Wipe()
			newKp, err := keyPairFromPassphrase(cmd, newFile, "New passphrase", params)
			if err != nil {
				return err
			}
			defer newKp.Wipe()

			id, err := zkgate.NewInvalidationID(nil)
			if err != nil {
				return err
			}
			proof, err := zkgate.ProveOwnership(params, oldKp, newKp.PublicKey, id, nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(&gate.UpdateRequest{
				OldPublicKey:   oldKp.PublicKey,
				NewPublicKey:   newKp.PublicKey,
				InvalidationID: id,
				Proof:          proof,
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&oldFile, "old-passphrase-file", "", "file holding the current passphrase")
	flags.StringVar(&newFile, "new-passphrase-file", "", "file holding the new passphrase")
	return cmd
}
