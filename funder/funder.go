// Package funder sends the initial native-asset transfer to a freshly
// deployed account so it can pay gas and operate.
package funder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"

	"github.com/sessionwallet/provisioning-backend/chains"
	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Funder implements interfaces.Funder by signing EIP-1559 transfers with the
// funder key.
type Funder struct {
	clients *chains.ClientFactory
	log     *slog.Logger
}

// New creates a funder using the client factory's funder transactor.
func New(clients *chains.ClientFactory, log *slog.Logger) *Funder {
	return &Funder{clients: clients, log: log}
}

// Fund transfers amount, denominated in whole native-currency units, to the
// given address and waits for inclusion. Any failure wraps ErrFunding; the
// already-deployed account is left as is.
func (f *Funder) Fund(ctx context.Context, chain interfaces.ChainDescriptor, to common.Address, amount decimal.Decimal) (*types.Receipt, error) {
	client, auth, err := f.clients.FunderClient(ctx, chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrFunding, err)
	}

	nonce, err := client.PendingNonceAt(ctx, auth.From)
	if err != nil {
		return nil, fmt.Errorf("%w: could not fetch nonce: %v", interfaces.ErrFunding, err)
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not fetch gas tip: %v", interfaces.ErrFunding, err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not fetch head: %v", interfaces.ErrFunding, err)
	}

	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	value := toWei(amount)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(uint64(chain.ChainID)),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       params.TxGas,
		To:        &to,
		Value:     value,
	})
	signedTx, err := auth.Signer(auth.From, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not sign transfer: %v", interfaces.ErrFunding, err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrFunding, err)
	}

	f.log.Info("Funding transfer submitted",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
		slog.String("tx", signedTx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for transfer: %v", interfaces.ErrFunding, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transfer %s reverted", interfaces.ErrFunding, signedTx.Hash().Hex())
	}
	return receipt, nil
}

// toWei converts a whole-unit native currency amount to wei, truncating any
// precision below 1 wei.
func toWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(18).BigInt()
}
