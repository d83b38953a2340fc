package main

import (
	"fmt"

	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/privacybydesign/zkgate/internal/common"
	"github.com/privacybydesign/zkgate/invalidation"
	"github.com/spf13/cobra"
)

func gatekeyCmd(opts *rootOptions) *cobra.Command {
	var (
		bits       int
		privateOut string
		publicOut  string
	)
	cmd := &cobra.Command{
		Use:   "gatekey",
		Short: "Create the gate RSA keypair",
		Long:  "Create the RSA keypair of a gate. Provers encrypt their entry proofs to the public key. Existing files are never overwritten.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if privateOut == "" {
				privateOut = opts.conf.Gate.KeyFile
			}
			sk, err := envelope.GenerateGateKey(bits)
			if err != nil {
				return err
			}
			if err = envelope.WritePrivateKeyFile(privateOut, sk); err != nil {
				return err
			}
			if err = envelope.WritePublicKeyFile(publicOut, &sk.PublicKey); err != nil {
				return err
			}
			Logger.Infof("wrote gate keypair to %s and %s", privateOut, publicOut)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&bits, "bits", "b", envelope.MinGateKeyBits, "RSA modulus size")
	flags.StringVar(&privateOut, "private", "", "private key file (default gate.keyFile from the configuration)")
	flags.StringVar(&publicOut, "public", "gate_public_key.pem", "public key file")
	return cmd
}

func enrollCmd(opts *rootOptions) *cobra.Command {
	var (
		passphraseFile string
		register       bool
	)
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Derive a public key from a passphrase",
		Long:  "Derive the one-time public key belonging to a passphrase and print it. With --register the key is also registered at the configured ledger authority.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := zkgate.LoadParameters(opts.conf.Params.File)
			if err != nil {
				return err
			}
			passphrase, err := readPassphrase(cmd, passphraseFile, "Passphrase")
			if err != nil {
				return err
			}
			kp, err := zkgate.DeriveKeyPair(passphrase, params)
			wipeBytes(passphrase)
			if err != nil {
				return err
			}
			defer kp.Wipe()

			y, err := kp.PublicKey.MarshalText()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(y))
			if !register {
				return nil
			}

			authority, closer, err := openAuthority(cmd.Context(), opts.conf, params)
			if err != nil {
				return err
			}
			defer common.Close(closer)
			coordinator := invalidation.NewCoordinator(authority, params, opts.conf.RetryPolicy())
			ref, err := coordinator.RegisterPublicKey(cmd.Context(), kp.PublicKey)
			if err != nil {
				return err
			}
			Logger.WithField("txn_hash", ref).Infof("registered key %s", zkgate.KeyHint(kp.PublicKey))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&passphraseFile, "passphrase-file", "", "read the passphrase from this file")
	flags.BoolVar(&register, "register", false, "register the public key at the ledger authority")
	return cmd
}
