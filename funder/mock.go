package funder

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// MockFunder mocks the interfaces.Funder interface.
type MockFunder struct {
	mock.Mock
}

// Fund mocks the Fund method.
func (m *MockFunder) Fund(ctx context.Context, chain interfaces.ChainDescriptor, to common.Address, amount decimal.Decimal) (*types.Receipt, error) {
	args := m.Called(ctx, chain, to, amount)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}
