package main

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/spf13/cobra"
)

func setupCmd(opts *rootOptions) *cobra.Command {
	var (
		bits  int
		mode  string
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create domain parameters",
		Long: `Create the domain parameters (p, g) shared by provers and gates. The default mode picks a
precomputed safe prime of at least the requested size; "safe" searches for a fresh safe prime,
which may take minutes; "prime" draws a random prime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = opts.conf.Params.File
			}
			params, err := generateParameters(cmd.Context(), mode, bits)
			if err != nil {
				return err
			}
			if err = params.ValidateForDeployment(); err != nil {
				return err
			}
			if _, err = params.WriteToFile(out, force); err != nil {
				return err
			}
			Logger.Infof("wrote %d-bit domain parameters to %s", params.P.BitLen(), out)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&bits, "bits", "b", zkgate.DefaultParameterBits, "minimum size of p in bits")
	flags.StringVarP(&mode, "mode", "m", "recommended", "recommended, safe or prime")
	flags.StringVarP(&out, "out", "o", "", "output file (default params.file from the configuration)")
	flags.BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func generateParameters(ctx context.Context, mode string, bits int) (*zkgate.DomainParameters, error) {
	switch mode {
	case "recommended":
		return zkgate.RecommendedParameters(bits)
	case "safe":
		Logger.Infof("searching for a %d-bit safe prime, this may take a while", bits)
		return zkgate.GenerateSafeParameters(ctx, bits)
	case "prime":
		return zkgate.GenerateParameters(bits)
	}
	return nil, errors.Errorf("unknown parameter mode %q", mode)
}
