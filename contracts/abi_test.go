package contracts

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	assert.Equal(t, "0x765e827f", hexutil.Encode(EntryPoint.Methods["handleOps"].ID))
	assert.Equal(t, "0xb61d27f6", hexutil.Encode(Account.Methods["execute"].ID))
	assert.Equal(t, "0xd0e30db0", hexutil.Encode(Paymaster.Methods["deposit"].ID))

	for sig, id := range map[string][]byte{
		"registerUser(uint256)":      Registry.Methods["registerUser"].ID,
		"getSender(uint256,uint256)": Factory.Methods["getSender"].ID,
		"getNonce(address,uint192)":  EntryPoint.Methods["getNonce"].ID,
		"update(string,bytes)":       UserData.Methods["update"].ID,
	} {
		assert.Equal(t, crypto.Keccak256([]byte(sig))[:4], id, sig)
	}
}

func TestEvents(t *testing.T) {
	ev, ok := Registry.Events["UserRegistered"]
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash([]byte("UserRegistered(uint256,uint32)")), ev.ID)

	ev, ok = Account.Events["ContractDeployed"]
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash([]byte("ContractDeployed(address)")), ev.ID)
	assert.True(t, ev.Inputs[0].Indexed)
}

func TestUserDataConstructor(t *testing.T) {
	args := UserData.Constructor.Inputs
	require.Len(t, args, 3)
	assert.Equal(t, "address", args[0].Type.String())
	assert.Equal(t, "uint256", args[1].Type.String())
	assert.Equal(t, "string", args[2].Type.String())
}
