package chains

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

func testDescriptor(id interfaces.ChainID) interfaces.ChainDescriptor {
	return interfaces.ChainDescriptor{
		ChainID:     id,
		RPCEndpoint: "http://127.0.0.1:8011",
		Contracts: interfaces.ContractSet{
			SessionModule:         common.HexToAddress("0x848eB049C5a3A86E006131FA737F1c7d9431bc18"),
			PasskeyModule:         common.HexToAddress("0x8FB03ED4a9c9Dc185bc9d1dE39e0070E7fbbfCA4"),
			AccountFactory:        common.HexToAddress("0x23b13d016E973C9915c6252271fF06cCA2098885"),
			AccountImplementation: common.HexToAddress("0x1A7b6cdEbEB7D0BC40604D523a4b9946CE42B985"),
		},
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry([]interfaces.ChainDescriptor{testDescriptor(260)})
	require.NoError(t, err)

	desc, err := reg.Resolve(260)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ChainID(260), desc.ChainID)

	_, err = reg.Resolve(1)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedChain)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]interfaces.ChainDescriptor{testDescriptor(260), testDescriptor(260)})
	assert.Error(t, err)
}

func TestRequireProvisioning(t *testing.T) {
	// A chain with placeholder addresses is resolvable but must fail fast for
	// provisioning.
	placeholder := interfaces.ChainDescriptor{
		ChainID:     324,
		RPCEndpoint: "https://mainnet.era.zksync.io",
	}
	reg, err := NewRegistry([]interfaces.ChainDescriptor{testDescriptor(260), placeholder})
	require.NoError(t, err)

	_, err = reg.RequireProvisioning(260)
	assert.NoError(t, err)

	_, err = reg.Resolve(324)
	assert.NoError(t, err)
	_, err = reg.RequireProvisioning(324)
	assert.ErrorIs(t, err, interfaces.ErrChainNotProvisionable)

	_, err = reg.RequireProvisioning(999)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedChain)
}

func TestLoadRegistry(t *testing.T) {
	cfg := `{
		"chains": [
			{
				"chainId": 260,
				"rpc": "http://127.0.0.1:8011",
				"contracts": {
					"sessionModule": "0x848eB049C5a3A86E006131FA737F1c7d9431bc18",
					"passkeyModule": "0x8FB03ED4a9c9Dc185bc9d1dE39e0070E7fbbfCA4",
					"accountFactory": "0x23b13d016E973C9915c6252271fF06cCA2098885",
					"accountImplementation": "0x1A7b6cdEbEB7D0BC40604D523a4b9946CE42B985"
				}
			}
		]
	}`
	path := filepath.Join(t.TempDir(), "chains.json")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	desc, err := reg.RequireProvisioning(260)
	require.NoError(t, err)
	assert.True(t, desc.Contracts.Complete())
	assert.Equal(t, common.HexToAddress("0x23b13d016E973C9915c6252271fF06cCA2098885"), desc.Contracts.AccountFactory)
}

func TestUserClientWithoutSession(t *testing.T) {
	reg, err := NewRegistry([]interfaces.ChainDescriptor{testDescriptor(260)})
	require.NoError(t, err)

	factory := NewClientFactory(reg, nil, discardLogger())
	_, _, err = factory.UserClient(context.Background(), 260, nil)
	assert.ErrorIs(t, err, interfaces.ErrNotLoggedIn)
}
