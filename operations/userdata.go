package operations

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"idprivacy/contracts"
	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/userop"
	"idprivacy/zkp"
)

// DeployUserData executes a deployment of the UserData contract through
// the sender: execute(0x0, 0, bytecode || constructor(verifier, commitment,
// data)). A nil commitment binds the contract to HashMessage of the
// holder's secret.
func DeployUserData(verifier common.Address, commitment *big.Int, data string, bytecode []byte) CallDataBuilder {
	return CallDataFunc(func(ctx context.Context, id Identity) ([]byte, error) {
		if len(bytecode) == 0 {
			return nil, errs.Ef(errs.Validation, "operations.DeployUserData", "UserData bytecode is not configured")
		}
		c := commitment
		if c == nil {
			var err error
			if c, err = identity.HashMessage(id.Secret); err != nil {
				return nil, err
			}
		}
		args, err := contracts.UserData.Pack("", verifier, c, data)
		if err != nil {
			return nil, errs.E(errs.Validation, "operations.DeployUserData", err)
		}
		initCode := append(common.CopyBytes(bytecode), args...)
		return userop.ExecuteCallData(common.Address{}, nil, initCode)
	})
}

// UpdateUserData executes update(newData, proof) on a deployed UserData
// contract. The proof shows ownership of the holder's secret for the
// contract's checksummed address.
func UpdateUserData(proofs *zkp.Adapter, userData common.Address, newData string) CallDataBuilder {
	return CallDataFunc(func(ctx context.Context, id Identity) ([]byte, error) {
		proof, err := proofs.GenerateOwnershipProof(ctx, id.Secret, userData.Hex())
		if err != nil {
			return nil, err
		}
		call, err := contracts.UserData.Pack("update", newData, proof.Encoded)
		if err != nil {
			return nil, errs.E(errs.Validation, "operations.UpdateUserData", err)
		}
		return userop.ExecuteCallData(userData, nil, call)
	})
}

// LoadBytecode reads contract creation code from a compiler artifact with
// a "bytecode" field or from a file holding the hex string.
func LoadBytecode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read bytecode")
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var artifact struct {
			Bytecode string `json:"bytecode"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return nil, errors.Wrapf(err, "decode artifact %s", path)
		}
		text = artifact.Bytecode
	}
	if !strings.HasPrefix(text, "0x") {
		text = "0x" + text
	}
	code, err := hexutil.Decode(text)
	if err != nil {
		return nil, errors.Wrapf(err, "bytecode in %s", path)
	}
	if len(code) == 0 {
		return nil, errors.Errorf("no bytecode in %s", path)
	}
	return code, nil
}

// DeployedContracts returns the addresses announced by the sender's
// ContractDeployed events in receipt, in log order.
func DeployedContracts(receipt *types.Receipt, sender common.Address) []common.Address {
	if receipt == nil {
		return nil
	}
	id := contracts.Account.Events["ContractDeployed"].ID
	var out []common.Address
	for _, l := range receipt.Logs {
		if l.Address != sender || len(l.Topics) < 2 || l.Topics[0] != id {
			continue
		}
		out = append(out, common.BytesToAddress(l.Topics[1].Bytes()))
	}
	return out
}
