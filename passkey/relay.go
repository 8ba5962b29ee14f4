package passkey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
)

// ErrNoPendingCeremony is returned when the UI asks for ceremony options
// before the flow has reached the authenticator step.
var ErrNoPendingCeremony = errors.New("no pending passkey ceremony")

// CeremonyKind distinguishes registration from login ceremonies.
type CeremonyKind string

const (
	CeremonyRegistration CeremonyKind = "registration"
	CeremonyLogin        CeremonyKind = "login"
)

type pendingCeremony struct {
	kind     CeremonyKind
	creation *protocol.CredentialCreation
	request  *protocol.CredentialAssertion
	response chan []byte
}

// RelayAuthenticator bridges the blocking Authenticator contract to a remote
// UI. The provisioning flow blocks in CreateCredential/GetAssertion while the
// UI polls Challenge for the ceremony options, performs the device
// interaction, and posts the result through Respond.
//
// At most one ceremony is pending per username.
type RelayAuthenticator struct {
	mu      sync.Mutex
	pending map[string]*pendingCeremony
}

// NewRelayAuthenticator creates an empty relay.
func NewRelayAuthenticator() *RelayAuthenticator {
	return &RelayAuthenticator{pending: make(map[string]*pendingCeremony)}
}

// CreateCredential registers a pending registration ceremony for the username
// embedded in the options and waits for the UI's attestation response.
func (r *RelayAuthenticator) CreateCredential(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error) {
	username := options.Response.User.Name
	ceremony := &pendingCeremony{
		kind:     CeremonyRegistration,
		creation: options,
		response: make(chan []byte, 1),
	}
	if err := r.register(username, ceremony); err != nil {
		return nil, err
	}
	defer r.remove(username)

	select {
	case responseBytes := <-ceremony.response:
		return responseBytes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetAssertion registers a pending login ceremony for the username and waits
// for the UI's assertion response.
func (r *RelayAuthenticator) GetAssertion(ctx context.Context, username string, options *protocol.CredentialAssertion) ([]byte, error) {
	ceremony := &pendingCeremony{
		kind:     CeremonyLogin,
		request:  options,
		response: make(chan []byte, 1),
	}
	if err := r.register(username, ceremony); err != nil {
		return nil, err
	}
	defer r.remove(username)

	select {
	case responseBytes := <-ceremony.response:
		return responseBytes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Challenge returns the ceremony options currently pending for a username.
func (r *RelayAuthenticator) Challenge(username string) (CeremonyKind, any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ceremony, ok := r.pending[username]
	if !ok {
		return "", nil, ErrNoPendingCeremony
	}
	if ceremony.kind == CeremonyRegistration {
		return ceremony.kind, ceremony.creation, nil
	}
	return ceremony.kind, ceremony.request, nil
}

// Respond delivers the UI's authenticator response for a pending ceremony.
func (r *RelayAuthenticator) Respond(username string, responseBytes []byte) error {
	r.mu.Lock()
	ceremony, ok := r.pending[username]
	r.mu.Unlock()
	if !ok {
		return ErrNoPendingCeremony
	}

	select {
	case ceremony.response <- responseBytes:
		return nil
	default:
		return fmt.Errorf("ceremony for %q already answered", username)
	}
}

func (r *RelayAuthenticator) register(username string, ceremony *pendingCeremony) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[username]; ok {
		return fmt.Errorf("ceremony already pending for %q", username)
	}
	r.pending[username] = ceremony
	return nil
}

func (r *RelayAuthenticator) remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, username)
}
