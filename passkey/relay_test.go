package passkey

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registrationOptions(username string) *protocol.CredentialCreation {
	options := &protocol.CredentialCreation{}
	options.Response.User.Name = username
	options.Response.User.DisplayName = username
	return options
}

func TestRelayRoundTrip(t *testing.T) {
	relay := NewRelayAuthenticator()

	result := make(chan []byte, 1)
	go func() {
		responseBytes, err := relay.CreateCredential(context.Background(), registrationOptions("alice"))
		require.NoError(t, err)
		result <- responseBytes
	}()

	// The UI polls until the ceremony is pending, then answers it.
	var kind CeremonyKind
	var err error
	require.Eventually(t, func() bool {
		kind, _, err = relay.Challenge("alice")
		return err == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, CeremonyRegistration, kind)

	require.NoError(t, relay.Respond("alice", []byte(`{"id":"x"}`)))
	assert.Equal(t, []byte(`{"id":"x"}`), <-result)

	// Ceremony is cleared once answered.
	_, _, err = relay.Challenge("alice")
	assert.ErrorIs(t, err, ErrNoPendingCeremony)
}

func TestRelayCancellation(t *testing.T) {
	relay := NewRelayAuthenticator()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := relay.CreateCredential(ctx, registrationOptions("alice"))
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, _, err := relay.Challenge("alice")
		return err == nil
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRelayRespondWithoutCeremony(t *testing.T) {
	relay := NewRelayAuthenticator()
	assert.ErrorIs(t, relay.Respond("nobody", nil), ErrNoPendingCeremony)
}
