package passkey

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// MockProvider mocks the interfaces.CredentialProvider interface.
type MockProvider struct {
	mock.Mock
}

// CreateCredential mocks the CreateCredential method.
func (m *MockProvider) CreateCredential(ctx context.Context, username string) (*interfaces.Credential, error) {
	args := m.Called(ctx, username)
	credential, _ := args.Get(0).(*interfaces.Credential)
	return credential, args.Error(1)
}

// VerifyAssertion mocks the VerifyAssertion method.
func (m *MockProvider) VerifyAssertion(ctx context.Context, username string, record *interfaces.DirectoryRecord) error {
	args := m.Called(ctx, username, record)
	return args.Error(0)
}
