package cli

import (
	"github.com/spf13/cobra"

	"idprivacy/errs"
	"idprivacy/merkle"
	"idprivacy/zkp"
)

var verifyProofCmd = &cobra.Command{
	Use:   "verify-proof [verification_key.json] [proof.json] [public.json]",
	Short: "Check a snarkjs Groth16 proof against its verification key",
	Long: "Runs the Groth16 pairing check on a proof produced by snarkjs without touching the chain.\n" +
		"Exits non-zero when the proof does not verify.",
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		vk, err := zkp.LoadVerifyingKey(args[0])
		if err != nil {
			return err
		}
		raw, err := zkp.ReadProof(args[1], args[2])
		if err != nil {
			return err
		}
		ok, err := zkp.VerifyLocally(vk, raw)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Ef(errs.Cryptographic, "cli", "proof does not verify")
		}
		return printJSON(map[string]interface{}{"valid": true, "publicSignals": raw.PublicSignals})
	},
}

var registryRootCmd = &cobra.Command{
	Use:   "registry-root",
	Short: "Compare the registry's root with the root rebuilt from its events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()
		registry := e.registry(ctx)
		leaves, err := registry.Leaves(ctx)
		if err != nil {
			return err
		}
		tree, err := merkle.New(e.settings.TreeLevels, leaves)
		if err != nil {
			return err
		}
		onChain, err := registry.LastRoot(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"leaves":    len(leaves),
			"lastRoot":  onChain.String(),
			"localRoot": tree.Root().String(),
			"match":     onChain.Cmp(tree.Root()) == 0,
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyProofCmd)
	rootCmd.AddCommand(registryRootCmd)
}
