// Package passkey wraps the WebAuthn registration and login ceremonies behind
// the credential provider contract. The actual device interaction happens on
// the connected client; an Authenticator implementation carries the ceremony
// payloads to it and back.
package passkey

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Authenticator is the boundary to the platform authenticator. CreateCredential
// receives registration options and returns the raw credential creation
// response; GetAssertion does the same for the login ceremony, keyed by
// username because discoverable assertion options carry no user identity.
// Both block until the device interaction completes, fails, or ctx is done.
type Authenticator interface {
	CreateCredential(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error)
	GetAssertion(ctx context.Context, username string, options *protocol.CredentialAssertion) ([]byte, error)
}

// Config identifies the relying party for WebAuthn ceremonies.
type Config struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
}

// WebAuthnProvider implements interfaces.CredentialProvider using the
// go-webauthn ceremony engine.
type WebAuthnProvider struct {
	webAuthn      *webauthn.WebAuthn
	authenticator Authenticator
	log           *slog.Logger
}

// NewWebAuthnProvider creates a credential provider for the given relying
// party configuration.
func NewWebAuthnProvider(cfg Config, authenticator Authenticator, log *slog.Logger) (*WebAuthnProvider, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webauthn configuration: %w", err)
	}

	return &WebAuthnProvider{
		webAuthn:      wa,
		authenticator: authenticator,
		log:           log,
	}, nil
}

// CreateCredential runs the full registration ceremony for a username. Any
// failure (user rejection, timeout, unsupported platform, malformed response)
// collapses to interfaces.ErrCredentialCreation; a partially created
// credential cannot be resumed and the caller must restart the whole flow.
func (p *WebAuthnProvider) CreateCredential(ctx context.Context, username string) (*interfaces.Credential, error) {
	user := &ceremonyUser{name: username, displayName: username}

	creation, session, err := p.webAuthn.BeginRegistration(user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: begin registration: %v", interfaces.ErrCredentialCreation, err)
	}

	responseBytes, err := p.authenticator.CreateCredential(ctx, creation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCredentialCreation, err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(responseBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse creation response: %v", interfaces.ErrCredentialCreation, err)
	}

	credential, err := p.webAuthn.CreateCredential(user, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCredentialCreation, err)
	}

	p.log.Debug("Passkey credential created", slog.String("username", username), slog.Int("pubkeyLen", len(credential.PublicKey)))

	return &interfaces.Credential{
		ID:          credential.ID,
		PublicKey:   credential.PublicKey,
		DisplayName: username,
	}, nil
}

// VerifyAssertion runs a discoverable login ceremony and validates the
// authenticator's signature against the credential the directory holds for
// the username.
func (p *WebAuthnProvider) VerifyAssertion(ctx context.Context, username string, record *interfaces.DirectoryRecord) error {
	assertion, session, err := p.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return fmt.Errorf("%w: begin login: %v", interfaces.ErrCredentialAssertion, err)
	}

	responseBytes, err := p.authenticator.GetAssertion(ctx, username, assertion)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrCredentialAssertion, err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes(responseBytes)
	if err != nil {
		return fmt.Errorf("%w: parse assertion response: %v", interfaces.ErrCredentialAssertion, err)
	}

	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		return &ceremonyUser{
			name:        username,
			displayName: username,
			credentials: []webauthn.Credential{{
				ID:        rawID,
				PublicKey: record.CredentialPublicKey,
			}},
		}, nil
	}

	if _, _, err := p.webAuthn.ValidatePasskeyLogin(handler, *session, parsed); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrCredentialAssertion, err)
	}
	return nil
}

// ceremonyUser adapts a username to the webauthn.User interface. The user
// handle is the username itself; the directory guarantees uniqueness per
// chain.
type ceremonyUser struct {
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return []byte(u.name) }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
