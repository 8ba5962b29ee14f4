package provisioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

func errorsIs(err error) bool { return errors.Is(err, interfaces.ErrProvisioningInFlight) }

func TestDiagSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blockCredential := make(chan struct{})
	f.directory.On("Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.credentials.On("CreateCredential", mock.Anything, "alice").
		Run(func(mock.Arguments) { <-blockCredential }).Return(testCredential, nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(deployedAddr, nil)
	f.funder.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	_, err := f.orchestrator.Register(ctx, registerRequest("alice"))
	t.Logf("second register err: %v (%T)", err, err)
	t.Logf("errors.Is in-flight: %v", errorsIs(err))
	close(blockCredential)
	t.Logf("first register err: %v", <-done)
}
