package cli

import (
	"encoding/json"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"idprivacy/config"
	"idprivacy/errs"
	"idprivacy/userop"
)

var (
	hashEntryPoint string
	hashChainID    uint64
)

var userOpHashCmd = &cobra.Command{
	Use:   "userop-hash [path/to/userop.json]",
	Short: "Print the hash and packed form of a user operation",
	Long: "Reads a partial user operation, fills the unset fields with the defaults and prints the hash the\n" +
		"entry point signs over together with the packed encoding. Runs offline; --chain-id is required\n" +
		"unless CHAIN_ID is set.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "read user operation")
		}
		var partial userop.Fields
		if err := json.Unmarshal(raw, &partial); err != nil {
			return errs.E(errs.Validation, "cli", err)
		}
		s, err := config.FromEnv()
		if err != nil {
			return err
		}
		entryPoint := s.EntryPoint
		if hashEntryPoint != "" {
			if !common.IsHexAddress(hashEntryPoint) {
				return errs.Ef(errs.Validation, "cli", "%q is not an address", hashEntryPoint)
			}
			entryPoint = common.HexToAddress(hashEntryPoint)
		}
		chainID := s.ChainID
		if hashChainID != 0 {
			chainID = new(big.Int).SetUint64(hashChainID)
		}
		if chainID == nil {
			return errs.Ef(errs.Validation, "cli", "chain id is required")
		}

		op := userop.FillDefaults(partial, userop.Defaults())
		hash, err := userop.Hash(op, entryPoint, chainID)
		if err != nil {
			return err
		}
		packed, err := userop.Pack(op)
		if err != nil {
			return err
		}
		enc, err := userop.EncodePacked(packed, false)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"userOpHash": hash,
			"entryPoint": entryPoint,
			"chainId":    chainID.String(),
			"packed":     hexutil.Bytes(enc),
		})
	},
}

func init() {
	userOpHashCmd.Flags().StringVar(&hashEntryPoint, "entry-point", "", "entry point address (default ENTRY_POINT)")
	userOpHashCmd.Flags().Uint64Var(&hashChainID, "chain-id", 0, "chain id (default CHAIN_ID)")
	rootCmd.AddCommand(userOpHashCmd)
}
