package deployer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// MockDeployer mocks the interfaces.AccountDeployer interface.
type MockDeployer struct {
	mock.Mock
}

// Deploy mocks the Deploy method.
func (m *MockDeployer) Deploy(ctx context.Context, chain interfaces.ChainDescriptor, credential *interfaces.Credential, username string, session interfaces.SessionAuthorization) (common.Address, error) {
	args := m.Called(ctx, chain, credential, username, session)
	return args.Get(0).(common.Address), args.Error(1)
}
