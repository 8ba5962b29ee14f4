package provisioner

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// State names the steps of the provisioning pipeline. The pipeline is linear;
// no state is re-entered, and Failed is absorbing.
type State string

const (
	StateIdle                 State = "idle"
	StateCheckingAvailability State = "checking_availability"
	StateCreatingCredential   State = "creating_credential"
	StateGeneratingSessionKey State = "generating_session_key"
	StateDeploying            State = "deploying"
	StateFunding              State = "funding"
	StateCommitting           State = "committing"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// FlowError is the single error type the orchestrator returns. Kind is always
// one of the sentinel kinds from the interfaces package; State is the step at
// which the flow failed, so the UI can explain what happened.
//
// Address is set only when the failure occurred after an irreversible
// deployment (funding and later): the account exists on-chain even though the
// flow failed, and the caller must be told where.
type FlowError struct {
	Kind    error
	State   State
	Address *common.Address
	Err     error
}

// Error renders the kind, failing step and cause.
func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (at %s): %s", e.Kind.Error(), e.State, e.Err.Error())
	}
	return fmt.Sprintf("%s (at %s)", e.Kind.Error(), e.State)
}

// Unwrap exposes both the kind sentinel and the underlying cause to
// errors.Is/As.
func (e *FlowError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func failure(state State, kind error, cause error) *FlowError {
	return &FlowError{Kind: kind, State: state, Err: cause}
}

func failureAt(state State, kind error, address common.Address, cause error) *FlowError {
	return &FlowError{Kind: kind, State: state, Address: &address, Err: cause}
}
