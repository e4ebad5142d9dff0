// Package contracts carries the minimal ABIs of the on-chain collaborators:
// registry, account factory, smart account / runner, verifying paymaster,
// entry point and the UserData sample contract.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const packedUserOpTuple = `{"name":"userOp","type":"tuple","internalType":"struct PackedUserOperation","components":[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"accountGasLimits","type":"bytes32"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"gasFees","type":"bytes32"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}]}`

const registryJSON = `[
	{"type":"function","name":"registerUser","stateMutability":"nonpayable","inputs":[{"name":"leaf","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"isKnownRoot","stateMutability":"view","inputs":[{"name":"root","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getLastRoot","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"UserRegistered","anonymous":false,"inputs":[{"name":"leaf","type":"uint256","indexed":false},{"name":"index","type":"uint32","indexed":false}]}
]`

const factoryJSON = `[
	{"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"commitment","type":"uint256"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getSender","stateMutability":"view","inputs":[{"name":"commitment","type":"uint256"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const accountJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"preVerifySignature","stateMutability":"nonpayable","inputs":[{"name":"signature","type":"bytes"},{"name":"userOpHash","type":"bytes32"}],"outputs":[]},
	{"type":"event","name":"ContractDeployed","anonymous":false,"inputs":[{"name":"contractAddress","type":"address","indexed":true}]}
]`

const paymasterJSON = `[
	{"type":"function","name":"getHash","stateMutability":"view","inputs":[` + packedUserOpTuple + `,{"name":"validUntil","type":"uint48"},{"name":"validAfter","type":"uint48"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"getDeposit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const entryPointJSON = `[
	{"type":"function","name":"handleOps","stateMutability":"nonpayable","inputs":[{"name":"ops","type":"tuple[]","internalType":"struct PackedUserOperation[]","components":[
		{"name":"sender","type":"address"},
		{"name":"nonce","type":"uint256"},
		{"name":"initCode","type":"bytes"},
		{"name":"callData","type":"bytes"},
		{"name":"accountGasLimits","type":"bytes32"},
		{"name":"preVerificationGas","type":"uint256"},
		{"name":"gasFees","type":"bytes32"},
		{"name":"paymasterAndData","type":"bytes"},
		{"name":"signature","type":"bytes"}]},{"name":"beneficiary","type":"address"}],"outputs":[]},
	{"type":"function","name":"getUserOpHash","stateMutability":"view","inputs":[` + packedUserOpTuple + `],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

const userDataJSON = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"verifier","type":"address"},{"name":"commitment","type":"uint256"},{"name":"data","type":"string"}]},
	{"type":"function","name":"update","stateMutability":"nonpayable","inputs":[{"name":"newData","type":"string"},{"name":"proof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"getData","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getCommitment","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	Registry   = mustParse(registryJSON)
	Factory    = mustParse(factoryJSON)
	Account    = mustParse(accountJSON)
	Paymaster  = mustParse(paymasterJSON)
	EntryPoint = mustParse(entryPointJSON)
	UserData   = mustParse(userDataJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contracts: invalid ABI: " + err.Error())
	}
	return parsed
}
