// Package cli is the idprivacy command line: the HTTP service plus the
// one-shot credential and wallet tools.
package cli

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"idprivacy/config"
)

var (
	envFiles  []string
	verbosity int
)

var rootCmd = &cobra.Command{
	Use:   "idprivacy",
	Short: "Anonymous credentials and sponsored ERC-4337 operations",
	Long: "idprivacy registers identity commitments in an on-chain Merkle registry, proves membership or\n" +
		"ownership with Groth16 proofs and submits sponsored user operations through a bundler.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbosity)
		config.LoadEnv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load; missing files are skipped")
	rootCmd.PersistentFlags().IntVar(&verbosity, "verbosity", int(log.LvlInfo), "log level: 0=crit 1=error 2=warn 3=info 4=debug 5=trace")
}

func setupLogging(level int) {
	color := isatty.IsTerminal(os.Stderr.Fd())
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(level), log.StreamHandler(os.Stderr, log.TerminalFormat(color))))
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
