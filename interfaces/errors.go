package interfaces

import "errors"

// Failure kinds surfaced by the provisioning flow. Every component-level
// failure is classified into exactly one of these before reaching the caller;
// no raw transport or authenticator error is surfaced unwrapped. None of them
// are retried automatically: retry is a caller-initiated restart of the flow.
var (
	// ErrUnsupportedChain is returned when the chain identifier is not in the
	// static supported set.
	ErrUnsupportedChain = errors.New("chain is not supported")

	// ErrChainNotProvisionable is returned when a supported chain has
	// placeholder contract addresses and cannot host new account deployments.
	ErrChainNotProvisionable = errors.New("chain has no provisioning contracts configured")

	// ErrNotLoggedIn is returned when a user-authenticated client is requested
	// without an active local session.
	ErrNotLoggedIn = errors.New("no active session")

	// ErrInvalidUsername is returned when a flow is started with an empty or
	// malformed username. Rejected before any network call.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrDirectoryUnavailable is returned when the account directory cannot be
	// reached. Never conflated with "username available".
	ErrDirectoryUnavailable = errors.New("account directory is unavailable")

	// ErrUsernameTaken is returned when the directory reports the username as
	// already bound to an account.
	ErrUsernameTaken = errors.New("username is already registered")

	// ErrAccountNotFound is returned on login when no account is registered
	// for the username.
	ErrAccountNotFound = errors.New("no account registered for username")

	// ErrCredentialCreation is returned when the platform authenticator
	// rejects, times out or does not support credential creation. A partially
	// created credential cannot be resumed; the whole flow must be restarted.
	ErrCredentialCreation = errors.New("passkey credential creation failed")

	// ErrCredentialAssertion is returned when a login assertion cannot be
	// obtained or does not verify against the registered credential.
	ErrCredentialAssertion = errors.New("passkey assertion failed")

	// ErrSessionKeyGeneration is returned on entropy source failure. Fatal,
	// never retried silently.
	ErrSessionKeyGeneration = errors.New("session key generation failed")

	// ErrAccountDeployment is returned when the account creation transaction
	// reverts or cannot be submitted.
	ErrAccountDeployment = errors.New("account deployment failed")

	// ErrFunding is returned when the post-deployment transfer fails. The
	// deployed account is not rolled back; the failure carries the address.
	ErrFunding = errors.New("account funding failed")

	// ErrSessionNotFound is returned by the session store when no session is
	// persisted for the origin.
	ErrSessionNotFound = errors.New("no session stored for origin")

	// ErrSessionPersistence is returned when the committed session could not
	// be written to the session store.
	ErrSessionPersistence = errors.New("session persistence failed")

	// ErrProvisioningInFlight is returned when a second flow is started for a
	// username that already has one outstanding.
	ErrProvisioningInFlight = errors.New("provisioning already in flight for username")
)
