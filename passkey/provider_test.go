package passkey

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

type funcAuthenticator struct {
	create func(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error)
	assert func(ctx context.Context, username string, options *protocol.CredentialAssertion) ([]byte, error)
}

func (a *funcAuthenticator) CreateCredential(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error) {
	return a.create(ctx, options)
}

func (a *funcAuthenticator) GetAssertion(ctx context.Context, username string, options *protocol.CredentialAssertion) ([]byte, error) {
	return a.assert(ctx, username, options)
}

func testProvider(t *testing.T, authenticator Authenticator) *WebAuthnProvider {
	t.Helper()
	provider, err := NewWebAuthnProvider(Config{
		RPDisplayName: "Session Wallet",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:3000"},
	}, authenticator, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return provider
}

func TestCreateCredentialOptionsCarryUsername(t *testing.T) {
	var seen *protocol.CredentialCreation
	provider := testProvider(t, &funcAuthenticator{
		create: func(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error) {
			seen = options
			return nil, errors.New("user cancelled")
		},
	})

	_, err := provider.CreateCredential(context.Background(), "alice")
	assert.ErrorIs(t, err, interfaces.ErrCredentialCreation)

	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Response.User.Name)
	assert.Equal(t, "alice", seen.Response.User.DisplayName)
	assert.Equal(t, protocol.ResidentKeyRequirementRequired, seen.Response.AuthenticatorSelection.ResidentKey)
}

func TestCreateCredentialRejectionCollapses(t *testing.T) {
	// Rejection, timeout and malformed responses are indistinguishable to the
	// caller: all collapse to the credential creation failure kind.
	cases := map[string]*funcAuthenticator{
		"rejected": {create: func(ctx context.Context, _ *protocol.CredentialCreation) ([]byte, error) {
			return nil, errors.New("NotAllowedError")
		}},
		"timeout": {create: func(ctx context.Context, _ *protocol.CredentialCreation) ([]byte, error) {
			return nil, context.DeadlineExceeded
		}},
		"garbage response": {create: func(ctx context.Context, _ *protocol.CredentialCreation) ([]byte, error) {
			return []byte("not json"), nil
		}},
	}

	for name, authenticator := range cases {
		t.Run(name, func(t *testing.T) {
			provider := testProvider(t, authenticator)
			credential, err := provider.CreateCredential(context.Background(), "alice")
			assert.ErrorIs(t, err, interfaces.ErrCredentialCreation)
			assert.Nil(t, credential)
		})
	}
}

func TestVerifyAssertionFailureCollapses(t *testing.T) {
	provider := testProvider(t, &funcAuthenticator{
		assert: func(ctx context.Context, username string, _ *protocol.CredentialAssertion) ([]byte, error) {
			assert.Equal(t, "alice", username)
			return nil, errors.New("no credentials available")
		},
	})

	err := provider.VerifyAssertion(context.Background(), "alice", &interfaces.DirectoryRecord{})
	assert.ErrorIs(t, err, interfaces.ErrCredentialAssertion)
}

func TestInvalidRelyingPartyConfig(t *testing.T) {
	_, err := NewWebAuthnProvider(Config{}, nil, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
