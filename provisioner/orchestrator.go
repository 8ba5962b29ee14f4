// Package provisioner sequences the account registration pipeline: directory
// pre-flight, passkey creation, session key generation, on-chain deployment,
// funding, and the local session commit.
//
// The orchestrator is a single-threaded linear state machine driven by
// externally awaited operations. At most one step is outstanding at a time.
// Every collaborator failure is classified into exactly one failure kind
// before reaching the caller, and nothing is retried automatically: retry is
// a caller-initiated restart from idle.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sessionwallet/provisioning-backend/chains"
	"github.com/sessionwallet/provisioning-backend/events"
	"github.com/sessionwallet/provisioning-backend/interfaces"
	"github.com/sessionwallet/provisioning-backend/metrics"
)

// Config carries the fixed session policy attached to every new account.
type Config struct {
	// SessionDuration is how long the initial session authorization is valid,
	// measured from the start of deployment.
	SessionDuration time.Duration

	// SpendLimits is the fixed spend-limit policy for the initial session.
	SpendLimits interfaces.SpendLimits

	// FundingAmount is the native-currency amount, in whole units, sent to
	// the account after deployment.
	FundingAmount decimal.Decimal
}

// RegisterRequest starts a registration flow.
type RegisterRequest struct {
	Origin   interfaces.Origin
	Username string
	ChainID  interfaces.ChainID
}

// LoginRequest starts a login flow for an already provisioned username.
type LoginRequest struct {
	Origin   interfaces.Origin
	Username string
	ChainID  interfaces.ChainID
}

// Result reports a completed flow.
type Result struct {
	FlowID  string
	Session *interfaces.LocalSession
	Account interfaces.ProvisionedAccount
}

// Observer receives state transitions for progress reporting. Called
// synchronously from the flow goroutine.
type Observer func(flowID string, state State)

// Orchestrator wires the provisioning collaborators together.
type Orchestrator struct {
	registry    *chains.Registry
	directory   interfaces.DirectoryClient
	credentials interfaces.CredentialProvider
	keys        interfaces.SessionKeyGenerator
	deployer    interfaces.AccountDeployer
	funder      interfaces.Funder
	store       interfaces.SessionStore
	publisher   events.Publisher
	cfg         Config
	observer    Observer
	log         *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an orchestrator. publisher and observer may be nil.
func New(
	registry *chains.Registry,
	directory interfaces.DirectoryClient,
	credentials interfaces.CredentialProvider,
	keys interfaces.SessionKeyGenerator,
	deployer interfaces.AccountDeployer,
	funder interfaces.Funder,
	store interfaces.SessionStore,
	publisher events.Publisher,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		registry:    registry,
		directory:   directory,
		credentials: credentials,
		keys:        keys,
		deployer:    deployer,
		funder:      funder,
		store:       store,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		inflight:    make(map[string]struct{}),
	}
}

// SetObserver installs a state transition observer. Must be called before
// any flow starts.
func (o *Orchestrator) SetObserver(observer Observer) {
	o.observer = observer
}

// Register runs the full registration pipeline. On success the local session
// has been committed and is returned; on failure a *FlowError describes the
// kind and the step, and the session store is untouched.
//
// Cancellation via ctx is guaranteed effective before deployment begins;
// after the deployment transaction is submitted it is best-effort only, since
// a submitted transaction cannot be un-submitted.
func (o *Orchestrator) Register(ctx context.Context, req RegisterRequest) (*Result, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, failure(StateIdle, interfaces.ErrInvalidUsername, errors.New("username is empty"))
	}

	if err := o.acquire(username); err != nil {
		return nil, failure(StateIdle, err, nil)
	}
	defer o.release(username)

	started := time.Now()
	flowID := uuid.NewString()
	log := o.log.With(
		slog.String("flow", flowID),
		slog.String("username", username),
		slog.Uint64("chainId", uint64(req.ChainID)))

	result, err := o.register(ctx, log, flowID, req.Origin, username, req.ChainID)
	outcome := "done"
	if err != nil {
		var flowErr *FlowError
		if errors.As(err, &flowErr) {
			outcome = flowErr.Kind.Error()
			log.Warn("Provisioning flow failed",
				slog.String("state", string(flowErr.State)),
				slog.String("err", flowErr.Error()))
		}
	}
	metrics.RecordFlowOutcome(outcome, time.Since(started))
	return result, err
}

func (o *Orchestrator) register(ctx context.Context, log *slog.Logger, flowID string, origin interfaces.Origin, username string, chainID interfaces.ChainID) (*Result, error) {
	// Chain resolution happens before any network call; unsupported and
	// placeholder-address chains fail immediately.
	chain, err := o.registry.RequireProvisioning(chainID)
	if err != nil {
		if errors.Is(err, interfaces.ErrChainNotProvisionable) {
			return nil, failure(StateIdle, interfaces.ErrChainNotProvisionable, err)
		}
		return nil, failure(StateIdle, interfaces.ErrUnsupportedChain, err)
	}

	o.transition(flowID, StateCheckingAvailability)
	if err := ctx.Err(); err != nil {
		return nil, failure(StateCheckingAvailability, interfaces.ErrDirectoryUnavailable, err)
	}
	record, err := o.directory.Lookup(ctx, interfaces.PurposeRegistration, username, chainID)
	if err != nil {
		// A directory outage must never be read as "username available".
		return nil, failure(StateCheckingAvailability, interfaces.ErrDirectoryUnavailable, err)
	}
	if record != nil {
		return nil, failure(StateCheckingAvailability, interfaces.ErrUsernameTaken,
			fmt.Errorf("username %q bound to %s", username, record.Address.Hex()))
	}

	// Credential creation is sequenced before any on-chain write: the
	// authenticator-side credential cannot be rolled back, but a later
	// failure then only leaves a disconnected credential, never orphaned
	// on-chain state.
	o.transition(flowID, StateCreatingCredential)
	if err := ctx.Err(); err != nil {
		return nil, failure(StateCreatingCredential, interfaces.ErrCredentialCreation, err)
	}
	credential, err := o.credentials.CreateCredential(ctx, username)
	if err != nil {
		return nil, failure(StateCreatingCredential, interfaces.ErrCredentialCreation, err)
	}

	o.transition(flowID, StateGeneratingSessionKey)
	sessionKey, err := o.keys.Generate()
	if err != nil {
		return nil, failure(StateGeneratingSessionKey, interfaces.ErrSessionKeyGeneration, err)
	}
	authorization := interfaces.SessionAuthorization{
		SessionPublicKey: sessionKey.Address,
		ExpiresAt:        time.Now().Add(o.cfg.SessionDuration),
		SpendLimits:      o.cfg.SpendLimits,
	}

	// Last guaranteed cancellation point: once Deploy is called the
	// transaction may already be on its way to the chain.
	o.transition(flowID, StateDeploying)
	if err := ctx.Err(); err != nil {
		return nil, failure(StateDeploying, interfaces.ErrAccountDeployment, err)
	}
	address, err := o.deployer.Deploy(ctx, chain, credential, username, authorization)
	if err != nil {
		return nil, failure(StateDeploying, interfaces.ErrAccountDeployment, err)
	}

	o.transition(flowID, StateFunding)
	if _, err := o.funder.Fund(ctx, chain, address, o.cfg.FundingAmount); err != nil {
		// The deployed account is not rolled back; the failure carries the
		// address so the UI can say "account exists but was not funded".
		return nil, failureAt(StateFunding, interfaces.ErrFunding, address, err)
	}

	o.transition(flowID, StateCommitting)
	session := &interfaces.LocalSession{
		Username:   username,
		Address:    address,
		Passkey:    credential.PublicKey,
		SessionKey: sessionKey.Bytes(),
	}
	if err := o.store.Replace(ctx, origin, session); err != nil {
		return nil, failureAt(StateCommitting, interfaces.ErrSessionPersistence, address, err)
	}

	o.transition(flowID, StateDone)
	log.Info("Account provisioned", slog.String("account", address.Hex()))

	if err := o.publisher.PublishProvisioned(ctx, events.ProvisionedEvent{
		Username: username,
		Address:  address.Hex(),
		ChainID:  uint64(chainID),
		FlowID:   flowID,
	}); err != nil {
		log.Warn("Could not publish provisioned event", slog.String("err", err.Error()))
	}

	return &Result{
		FlowID:  flowID,
		Session: session,
		Account: interfaces.ProvisionedAccount{
			Address:              address,
			ChainID:              chainID,
			Credential:           *credential,
			InitialAuthorization: authorization,
		},
	}, nil
}

// Login verifies an existing registration with a passkey assertion and
// replaces the local session with a freshly generated session key. No
// on-chain write happens here.
func (o *Orchestrator) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, failure(StateIdle, interfaces.ErrInvalidUsername, errors.New("username is empty"))
	}

	if _, err := o.registry.Resolve(req.ChainID); err != nil {
		return nil, failure(StateIdle, interfaces.ErrUnsupportedChain, err)
	}

	record, err := o.directory.Lookup(ctx, interfaces.PurposeLogin, username, req.ChainID)
	if err != nil {
		return nil, failure(StateCheckingAvailability, interfaces.ErrDirectoryUnavailable, err)
	}
	if record == nil {
		return nil, failure(StateCheckingAvailability, interfaces.ErrAccountNotFound,
			fmt.Errorf("username %q is not registered", username))
	}

	if err := o.credentials.VerifyAssertion(ctx, username, record); err != nil {
		return nil, failure(StateCreatingCredential, interfaces.ErrCredentialAssertion, err)
	}

	sessionKey, err := o.keys.Generate()
	if err != nil {
		return nil, failure(StateGeneratingSessionKey, interfaces.ErrSessionKeyGeneration, err)
	}

	session := &interfaces.LocalSession{
		Username:   username,
		Address:    record.Address,
		Passkey:    record.CredentialPublicKey,
		SessionKey: sessionKey.Bytes(),
	}
	if err := o.store.Replace(ctx, req.Origin, session); err != nil {
		return nil, failure(StateCommitting, interfaces.ErrSessionPersistence, err)
	}

	o.log.Info("Session logged in",
		slog.String("username", username),
		slog.String("account", record.Address.Hex()))

	return &Result{FlowID: uuid.NewString(), Session: session}, nil
}

// Logout clears the local session for an origin and publishes a logout
// event. Logging out with no active session is not an error.
func (o *Orchestrator) Logout(ctx context.Context, origin interfaces.Origin) error {
	session, err := o.store.Get(ctx, origin)
	if err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
		return err
	}

	if err := o.store.Clear(ctx, origin); err != nil {
		return err
	}

	if session != nil {
		if err := o.publisher.PublishLogout(ctx, events.LogoutEvent{
			Origin:   string(origin),
			Username: session.Username,
			Address:  session.Address.Hex(),
		}); err != nil {
			o.log.Warn("Could not publish logout event", slog.String("err", err.Error()))
		}
	}
	return nil
}

// CurrentSession returns the active session for an origin, or
// ErrSessionNotFound.
func (o *Orchestrator) CurrentSession(ctx context.Context, origin interfaces.Origin) (*interfaces.LocalSession, error) {
	return o.store.Get(ctx, origin)
}

// acquire takes the per-username single-flight slot. Two concurrent attempts
// for one username racing to create two credentials and deploy twice is a
// correctness hazard; the second attempt is rejected, never interleaved.
func (o *Orchestrator) acquire(username string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[username]; ok {
		return interfaces.ErrProvisioningInFlight
	}
	o.inflight[username] = struct{}{}
	return nil
}

func (o *Orchestrator) release(username string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, username)
}

func (o *Orchestrator) transition(flowID string, state State) {
	o.log.Debug("Flow transition", slog.String("flow", flowID), slog.String("state", string(state)))
	if o.observer != nil {
		o.observer(flowID, state)
	}
}
