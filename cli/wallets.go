package cli

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/store"
	"idprivacy/userop"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Manage the simulated user wallets kept in the store",
}

var walletsGenerateCmd = &cobra.Command{
	Use:   "generate [count]",
	Short: "Generate fresh wallet keys",
	Long:  "Generates count EOA keys. Refuses to run when wallets already exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return errs.Ef(errs.Validation, "cli", "count %q is not a positive integer", args[0])
		}
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		wallets, err := e.wallets.Generate(cmd.Context(), n)
		if err != nil {
			return err
		}
		log.Info("Generated wallets", "count", len(wallets))
		return printJSON(addressesOf(wallets))
	},
}

var walletsSecretsCmd = &cobra.Command{
	Use:   "assign-secrets",
	Short: "Give every wallet without a secret its default secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		n, err := e.wallets.AssignSecrets(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("Assigned secrets", "updated", n)
		return nil
	},
}

var walletsAccountsCmd = &cobra.Command{
	Use:   "create-accounts",
	Short: "Create a smart account for every wallet with a secret",
	Long: "Deploys (or looks up) the smart account controlled by each wallet's secret and records its\n" +
		"address on the wallet. Wallets that already have an account are skipped.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()
		all, err := e.wallets.All(ctx)
		if err != nil {
			return err
		}
		factory := e.factory(ctx)
		for _, w := range all {
			if w.Secret == "" || w.SmartAccountAddress != nil {
				continue
			}
			acct, err := factory.CreateSmartAccount(ctx, w.Secret, identity.CreateOptions{})
			if err != nil {
				return err
			}
			if err := e.wallets.SetSmartAccount(ctx, w.Index, acct.Address); err != nil {
				return err
			}
		}
		return nil
	},
}

var walletsFundCmd = &cobra.Command{
	Use:   "fund [amount]",
	Short: "Send amount wei from the service key to every wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := userop.ParseQuantity(args[0])
		if err != nil {
			return errs.E(errs.Validation, "cli", err)
		}
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()
		registry := e.registry(ctx)
		funded, err := e.simulator(ctx, registry, e.operations(ctx, registry, e.proofs())).Fund(ctx, amount)
		if err != nil {
			return err
		}
		return printJSON(funded)
	},
}

var walletsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the wallets without their keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		all, err := e.wallets.All(cmd.Context())
		if err != nil {
			return err
		}
		for i := range all {
			all[i].PrivateKey = ""
		}
		return printJSON(all)
	},
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Record and show contract deployment addresses",
}

var addressesSetCmd = &cobra.Command{
	Use:   "set [name] [address]",
	Short: "Record the address of a deployment",
	Long: "Records the address deployed under name. Known names: " + store.EntryPoint + ", " + store.Registry + ", " +
		store.AccountFactory + ", " + store.VerifyingPaymaster + ", " + store.CommitmentVerifier + ", " +
		store.RegisterVerifier + " and " + store.Runner + " (appended to the runner list).",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[1]) {
			return errs.Ef(errs.Validation, "cli", "%q is not an address", args[1])
		}
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		return e.addresses.Set(cmd.Context(), args[0], common.HexToAddress(args[1]))
	},
}

var addressesGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print the address recorded for a deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		if args[0] == store.Runner {
			runners, err := e.addresses.Runners(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(runners)
		}
		addr, err := e.addresses.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(addr)
	},
}

func init() {
	walletsCmd.AddCommand(walletsGenerateCmd, walletsSecretsCmd, walletsAccountsCmd, walletsFundCmd, walletsListCmd)
	addressesCmd.AddCommand(addressesSetCmd, addressesGetCmd)
	rootCmd.AddCommand(walletsCmd)
	rootCmd.AddCommand(addressesCmd)
}

func addressesOf(wallets []store.Wallet) []common.Address {
	out := make([]common.Address, len(wallets))
	for i, w := range wallets {
		out[i] = w.Address
	}
	return out
}
