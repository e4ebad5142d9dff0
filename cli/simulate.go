package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"idprivacy/errs"
	"idprivacy/operations"
	"idprivacy/simulation"
)

var simulateMode string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated users against the deployed contracts",
	Long: "Each simulated user gets a smart account, is registered in the registry when --mode is privacy\n" +
		"and deploys a UserData contract through the chosen mode. Requires RPC_URL, BUNDLER_URL and\n" +
		"PRIVATE_KEY, which sponsors the operations.",
}

var simulateUserCmd = &cobra.Command{
	Use:   "user [secret]",
	Short: "Simulate one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := operations.ParseMode(simulateMode)
		if err != nil {
			return err
		}
		sim, closeEnv, err := openSimulator(cmd)
		if err != nil {
			return err
		}
		defer closeEnv()
		res, err := sim.SimulateUser(cmd.Context(), args[0], mode)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var simulateWalletsCmd = &cobra.Command{
	Use:   "wallets [index...]",
	Short: "Simulate stored wallets in order",
	Long:  "Runs the stored wallets with the given indices, or all of them, one after another.",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := operations.ParseMode(simulateMode)
		if err != nil {
			return err
		}
		indices, err := walletIndices(args)
		if err != nil {
			return err
		}
		sim, closeEnv, err := openSimulator(cmd)
		if err != nil {
			return err
		}
		defer closeEnv()
		results, err := sim.SimulateStored(cmd.Context(), indices, mode)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	simulateCmd.PersistentFlags().StringVar(&simulateMode, "mode", "standard", "operation mode: standard or privacy")
	simulateCmd.AddCommand(simulateUserCmd, simulateWalletsCmd)
	rootCmd.AddCommand(simulateCmd)
}

func openSimulator(cmd *cobra.Command) (*simulation.Simulator, func(), error) {
	ctx := cmd.Context()
	e, err := openEnv(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	registry := e.registry(ctx)
	return e.simulator(ctx, registry, e.operations(ctx, registry, e.proofs())), e.Close, nil
}

func walletIndices(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil || i < 0 {
			return nil, errs.Ef(errs.Validation, "cli", "wallet index %q is not a non-negative integer", a)
		}
		out = append(out, i)
	}
	return out, nil
}
