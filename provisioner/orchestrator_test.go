package provisioner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sessionwallet/provisioning-backend/chains"
	"github.com/sessionwallet/provisioning-backend/deployer"
	"github.com/sessionwallet/provisioning-backend/directory"
	"github.com/sessionwallet/provisioning-backend/funder"
	"github.com/sessionwallet/provisioning-backend/interfaces"
	"github.com/sessionwallet/provisioning-backend/passkey"
	"github.com/sessionwallet/provisioning-backend/sessionkey"
	"github.com/sessionwallet/provisioning-backend/sessionstore"
)

const testOrigin = interfaces.Origin("http://localhost:3000")

var (
	testToken      = common.HexToAddress("0x111C3E89Ce80e62EE88318C2804920D4c96f92bb")
	deployedAddr   = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	existingAddr   = common.HexToAddress("0x0000000000000000000000000000000000000def")
	testCredential = &interfaces.Credential{
		ID:          []byte("credential-id"),
		PublicKey:   hexutil.MustDecode("0xa5010203262001215820aabb"),
		DisplayName: "alice",
	}
)

type fixture struct {
	orchestrator *Orchestrator
	directory    *directory.MockClient
	credentials  *passkey.MockProvider
	deployer     *deployer.MockDeployer
	funder       *funder.MockFunder
	store        *sessionstore.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := chains.NewRegistry([]interfaces.ChainDescriptor{{
		ChainID:     260,
		RPCEndpoint: "http://127.0.0.1:8011",
		Contracts: interfaces.ContractSet{
			SessionModule:         common.HexToAddress("0x848eB049C5a3A86E006131FA737F1c7d9431bc18"),
			PasskeyModule:         common.HexToAddress("0x8FB03ED4a9c9Dc185bc9d1dE39e0070E7fbbfCA4"),
			AccountFactory:        common.HexToAddress("0x23b13d016E973C9915c6252271fF06cCA2098885"),
			AccountImplementation: common.HexToAddress("0x1A7b6cdEbEB7D0BC40604D523a4b9946CE42B985"),
		},
	}, {
		ChainID:     324,
		RPCEndpoint: "https://mainnet.era.zksync.io",
		// Placeholder contracts: not provisioning-capable.
	}})
	require.NoError(t, err)

	f := &fixture{
		directory:   new(directory.MockClient),
		credentials: new(passkey.MockProvider),
		deployer:    new(deployer.MockDeployer),
		funder:      new(funder.MockFunder),
		store:       sessionstore.NewMemoryStore(),
	}
	f.orchestrator = New(
		registry,
		f.directory,
		f.credentials,
		sessionkey.Generator{},
		f.deployer,
		f.funder,
		f.store,
		nil,
		Config{
			SessionDuration: 24 * time.Hour,
			SpendLimits:     interfaces.SpendLimits{testToken: decimal.NewFromInt(10000)},
			FundingAmount:   decimal.NewFromInt(1),
		},
		slog.New(slog.DiscardHandler),
	)
	return f
}

func registerRequest(username string) RegisterRequest {
	return RegisterRequest{Origin: testOrigin, Username: username, ChainID: 260}
}

// Scenario: username free, everything succeeds, session committed.
func TestRegisterSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, interfaces.PurposeRegistration, "alice", interfaces.ChainID(260)).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, testCredential, "alice", mock.Anything).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, deployedAddr, decimal.NewFromInt(1)).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	result, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, deployedAddr, result.Account.Address)

	session, err := f.store.Get(ctx, testOrigin)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, deployedAddr, session.Address)
	assert.Equal(t, hexutil.Bytes(testCredential.PublicKey), session.Passkey)
	assert.NotEmpty(t, session.SessionKey)

	// The authorization handed to the deployer matches the generated key and
	// the fixed policy.
	deployArgs := f.deployer.Calls[0].Arguments
	authorization := deployArgs.Get(4).(interfaces.SessionAuthorization)
	assert.Equal(t, decimal.NewFromInt(10000), authorization.SpendLimits[testToken])
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), authorization.ExpiresAt, time.Minute)

	signer, err := session.Signer()
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

// Scenario: username already bound, flow fails before any authenticator
// prompt.
func TestRegisterUsernameTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, interfaces.PurposeRegistration, "alice", interfaces.ChainID(260)).
		Return(&interfaces.DirectoryRecord{Address: existingAddr, CredentialPublicKey: hexutil.MustDecode("0x01")}, nil)

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, interfaces.ErrUsernameTaken)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StateCheckingAvailability, flowErr.State)

	f.credentials.AssertNotCalled(t, "CreateCredential", mock.Anything, mock.Anything)
	_, err = f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

// Directory outage must abort, never be read as availability.
func TestRegisterDirectoryUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, interfaces.ErrDirectoryUnavailable)
	f.credentials.AssertNotCalled(t, "CreateCredential", mock.Anything, mock.Anything)
}

// Scenario: authenticator rejects, flow fails, store untouched.
func TestRegisterCredentialCreationFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").Return(nil, errors.New("user cancelled"))

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, interfaces.ErrCredentialCreation)

	f.deployer.AssertNotCalled(t, "Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	_, err = f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

// Scenario: deployment reverts, no address reaches the caller, store
// untouched.
func TestRegisterDeploymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(common.Address{}, errors.New("execution reverted"))

	result, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, interfaces.ErrAccountDeployment)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StateDeploying, flowErr.State)
	assert.Nil(t, flowErr.Address)

	f.funder.AssertNotCalled(t, "Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	_, err = f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

// Scenario: funding fails after an irreversible deployment; the error carries
// the address, and the session is still not committed.
func TestRegisterFundingFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, deployedAddr, mock.Anything).Return(nil, errors.New("insufficient funds"))

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, interfaces.ErrFunding)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	require.NotNil(t, flowErr.Address)
	assert.Equal(t, deployedAddr, *flowErr.Address)

	_, err = f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

// Scenario: unsupported chain fails immediately, no network calls.
func TestRegisterUnsupportedChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orchestrator.Register(ctx, RegisterRequest{Origin: testOrigin, Username: "alice", ChainID: 999})
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedChain)
	f.directory.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterChainNotProvisionable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orchestrator.Register(ctx, RegisterRequest{Origin: testOrigin, Username: "alice", ChainID: 324})
	assert.ErrorIs(t, err, interfaces.ErrChainNotProvisionable)
	f.directory.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterEmptyUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orchestrator.Register(ctx, registerRequest("  "))
	assert.ErrorIs(t, err, interfaces.ErrInvalidUsername)
	f.directory.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Credential creation completes strictly before deployment begins, and
// deployment strictly before funding.
func TestRegisterStepOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var order []string
	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "lookup") }).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "credential") }).Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "deploy") }).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "fund") }).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup", "credential", "deploy", "fund"}, order)
}

// A failed run leaves a pre-existing session exactly as it was.
func TestRegisterFailureDoesNotTouchExistingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	previous := &interfaces.LocalSession{
		Username:   "bob",
		Address:    existingAddr,
		Passkey:    hexutil.MustDecode("0x02"),
		SessionKey: hexutil.MustDecode("0x03"),
	}
	require.NoError(t, f.store.Replace(ctx, testOrigin, previous))

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, mock.Anything).Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(common.Address{}, errors.New("reverted"))

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	require.ErrorIs(t, err, interfaces.ErrAccountDeployment)

	session, err := f.store.Get(ctx, testOrigin)
	require.NoError(t, err)
	assert.Equal(t, previous, session)
}

// Two concurrent attempts for one username must not both reach done.
func TestRegisterSingleFlightPerUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blockCredential := make(chan struct{})
	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").
		Run(func(mock.Arguments) { <-blockCredential }).Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
		firstErr <- err
	}()

	// Second attempt while the first is blocked in the authenticator step.
	require.Eventually(t, func() bool {
		_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
		return errors.Is(err, interfaces.ErrProvisioningInFlight)
	}, time.Second, time.Millisecond)

	close(blockCredential)
	wg.Wait()
	assert.NoError(t, <-firstErr)

	// The slot is released after the flow finishes; a deliberate restart is
	// allowed (and fails on the now-taken username only if the directory
	// says so, which the mock does not).
	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.NoError(t, err)
}

// Cancellation before deployment is guaranteed effective.
func TestRegisterCancelledBeforeDeploy(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(testCredential, nil)

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, interfaces.ErrAccountDeployment)
	assert.ErrorIs(t, err, context.Canceled)
	f.deployer.AssertNotCalled(t, "Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record := &interfaces.DirectoryRecord{Address: existingAddr, CredentialPublicKey: hexutil.MustDecode("0x0a0b")}
	f.directory.On("Lookup", mock.Anything, interfaces.PurposeLogin, "alice", interfaces.ChainID(260)).Return(record, nil)
	f.credentials.On("VerifyAssertion", mock.Anything, "alice", record).Return(nil)

	result, err := f.orchestrator.Login(ctx, LoginRequest{Origin: testOrigin, Username: "alice", ChainID: 260})
	require.NoError(t, err)
	assert.Equal(t, existingAddr, result.Session.Address)

	session, err := f.store.Get(ctx, testOrigin)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.NotEmpty(t, session.SessionKey)
}

func TestLoginUnknownUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directory.On("Lookup", mock.Anything, interfaces.PurposeLogin, "alice", interfaces.ChainID(260)).Return(nil, nil)

	_, err := f.orchestrator.Login(ctx, LoginRequest{Origin: testOrigin, Username: "alice", ChainID: 260})
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)
	f.credentials.AssertNotCalled(t, "VerifyAssertion", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginBadAssertion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record := &interfaces.DirectoryRecord{Address: existingAddr, CredentialPublicKey: hexutil.MustDecode("0x0a0b")}
	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(record, nil)
	f.credentials.On("VerifyAssertion", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("signature mismatch"))

	_, err := f.orchestrator.Login(ctx, LoginRequest{Origin: testOrigin, Username: "alice", ChainID: 260})
	assert.ErrorIs(t, err, interfaces.ErrCredentialAssertion)
	_, err = f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.Replace(ctx, testOrigin, &interfaces.LocalSession{Username: "alice", Address: existingAddr}))
	require.NoError(t, f.orchestrator.Logout(ctx, testOrigin))

	_, err := f.store.Get(ctx, testOrigin)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)

	// Logout with no session is a no-op.
	assert.NoError(t, f.orchestrator.Logout(ctx, testOrigin))
}

func TestObserverSeesLinearPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var states []State
	f.orchestrator.SetObserver(func(flowID string, state State) {
		states = append(states, state)
	})

	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, mock.Anything).Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateCheckingAvailability,
		StateCreatingCredential,
		StateGeneratingSessionKey,
		StateDeploying,
		StateFunding,
		StateCommitting,
		StateDone,
	}, states)
}
