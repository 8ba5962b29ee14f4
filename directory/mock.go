package directory

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// MockClient mocks the interfaces.DirectoryClient interface.
type MockClient struct {
	mock.Mock
}

// Lookup mocks the Lookup method.
func (m *MockClient) Lookup(ctx context.Context, purpose interfaces.LookupPurpose, username string, chain interfaces.ChainID) (*interfaces.DirectoryRecord, error) {
	args := m.Called(ctx, purpose, username, chain)
	record, _ := args.Get(0).(*interfaces.DirectoryRecord)
	return record, args.Error(1)
}
