package cli

import (
	"encoding/json"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/userop"
)

var (
	countID uint64
	salt    string
	force   bool
)

var leafCmd = &cobra.Command{
	Use:   "leaf [address] [secret] [nullifier]",
	Short: "Print the accumulator leaf for an identity",
	Long: "Prints the leaf that binds an account address, its secret and an optional nullifier (default 0).\n" +
		"Runs offline.",
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, nullifier, err := identityArgs(args)
		if err != nil {
			return err
		}
		leaf, err := identity.CalculateLeaf(address, args[1], nullifier)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"leaf": leaf.String()})
	},
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment [secret]",
	Short: "Print the commitment that controls a smart account",
	Long:  "Prints the Pedersen commitment of secret and --count. Runs offline.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := identity.ComputeCommitment(args[0], countID)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"commitment": c.String()})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [address] [secret] [nullifier]",
	Short: "Register an identity leaf in the on-chain registry",
	Long: "Computes the leaf for the identity and inserts it into the registry unless it is already there.\n" +
		"Requires RPC_URL, PRIVATE_KEY and a recorded MerkleRegistry address.",
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, nullifier, err := identityArgs(args)
		if err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()
		reg, err := e.registry(cmd.Context()).Register(cmd.Context(), address, args[1], nullifier)
		if err != nil {
			return err
		}
		return printJSON(reg)
	},
}

var smartAccountCmd = &cobra.Command{
	Use:   "smart-account [secret]",
	Short: "Create the smart account controlled by a secret",
	Long: "Deploys the account for the commitment of secret and --count through the factory.\n" +
		"An account that already exists is reported unless --force is set.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := createOptions()
		if err != nil {
			return err
		}
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()
		acct, err := e.factory(cmd.Context()).CreateSmartAccount(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		return printJSON(acct)
	},
}

func init() {
	commitmentCmd.Flags().Uint64Var(&countID, "count", 0, "account counter mixed into the commitment")
	smartAccountCmd.Flags().Uint64Var(&countID, "count", 0, "account counter mixed into the commitment")
	smartAccountCmd.Flags().StringVar(&salt, "salt", "", "factory salt (default 1)")
	smartAccountCmd.Flags().BoolVar(&force, "force", false, "call the factory even if the account exists")

	rootCmd.AddCommand(leafCmd)
	rootCmd.AddCommand(commitmentCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(smartAccountCmd)
}

func identityArgs(args []string) (common.Address, *big.Int, error) {
	if !common.IsHexAddress(args[0]) {
		return common.Address{}, nil, errs.Ef(errs.Validation, "cli", "%q is not an address", args[0])
	}
	nullifier := new(big.Int)
	if len(args) > 2 {
		v, err := userop.ParseQuantity(args[2])
		if err != nil {
			return common.Address{}, nil, errs.E(errs.Validation, "cli", err)
		}
		nullifier = v
	}
	return common.HexToAddress(args[0]), nullifier, nil
}

func createOptions() (identity.CreateOptions, error) {
	opts := identity.CreateOptions{CountID: countID, Force: force}
	if salt != "" {
		v, err := userop.ParseQuantity(salt)
		if err != nil {
			return opts, errs.E(errs.Validation, "cli", err)
		}
		opts.Salt = v
	}
	return opts, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "write output")
}
