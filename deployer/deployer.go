// Package deployer submits account creation transactions to the account
// factory contract and extracts the deployed account address.
package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sessionwallet/provisioning-backend/chains"
	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// factoryABI covers the single factory entry point the backend uses plus the
// event it reads the deployed address from. The factory enforces
// uniqueAccountId uniqueness on-chain, so a lost check-then-deploy race
// reverts here instead of producing a second account for the same username.
const factoryABI = `[
	{
		"type": "function",
		"name": "deployAccount",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "credentialPublicKey", "type": "bytes"},
			{"name": "uniqueAccountId", "type": "string"},
			{"name": "initialSessions", "type": "tuple[]", "components": [
				{"name": "sessionPublicKey", "type": "address"},
				{"name": "expiresAt", "type": "uint256"},
				{"name": "spendTokens", "type": "address[]"},
				{"name": "spendLimits", "type": "uint256[]"}
			]}
		],
		"outputs": [{"name": "account", "type": "address"}]
	},
	{
		"type": "event",
		"name": "AccountCreated",
		"anonymous": false,
		"inputs": [
			{"name": "account", "type": "address", "indexed": true},
			{"name": "uniqueAccountId", "type": "string", "indexed": false}
		]
	}
]`

// initialSessionArg mirrors the factory's InitialSession tuple for ABI
// packing.
type initialSessionArg struct {
	SessionPublicKey common.Address
	ExpiresAt        *big.Int
	SpendTokens      []common.Address
	SpendLimits      []*big.Int
}

// Deployer implements interfaces.AccountDeployer against the account factory
// contract, using the funder signer to pay deployment gas.
type Deployer struct {
	clients *chains.ClientFactory
	abi     abi.ABI
	log     *slog.Logger
}

// New creates a deployer using the client factory for chain transports and
// the funder transactor.
func New(clients *chains.ClientFactory, log *slog.Logger) (*Deployer, error) {
	parsed, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("could not parse factory ABI: %w", err)
	}
	return &Deployer{clients: clients, abi: parsed, log: log}, nil
}

// Deploy submits the account creation transaction and waits for it to be
// mined. Either the account exists at the returned address with the
// credential and session authorization bound, or an error wrapping
// ErrAccountDeployment is returned and no partial account exists.
//
// Deployment failures are not retried: resubmitting with the same nonce and
// username can produce confusing duplicate-attempt states, so the caller must
// restart the flow explicitly.
func (d *Deployer) Deploy(ctx context.Context, chain interfaces.ChainDescriptor, credential *interfaces.Credential, username string, session interfaces.SessionAuthorization) (common.Address, error) {
	if !chain.Contracts.Complete() {
		return common.Address{}, fmt.Errorf("%w: chain %d", interfaces.ErrChainNotProvisionable, chain.ChainID)
	}

	client, auth, err := d.clients.FunderClient(ctx, chain.ChainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrAccountDeployment, err)
	}

	bound := bind.NewBoundContract(chain.Contracts.AccountFactory, d.abi, client, client, client)

	sessions := []initialSessionArg{packSession(session)}
	tx, err := bound.Transact(auth, "deployAccount", credential.PublicKey, username, sessions)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrAccountDeployment, err)
	}

	d.log.Info("Account deployment submitted",
		slog.String("username", username),
		slog.Uint64("chainId", uint64(chain.ChainID)),
		slog.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: waiting for deployment: %v", interfaces.ErrAccountDeployment, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, fmt.Errorf("%w: transaction %s reverted", interfaces.ErrAccountDeployment, tx.Hash().Hex())
	}

	address, err := d.accountFromReceipt(chain.Contracts.AccountFactory, receipt)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrAccountDeployment, err)
	}

	d.log.Info("Account deployed",
		slog.String("username", username),
		slog.String("account", address.Hex()))
	return address, nil
}

// accountFromReceipt finds the factory's AccountCreated event in the receipt
// logs and returns the indexed account address.
func (d *Deployer) accountFromReceipt(factory common.Address, receipt *types.Receipt) (common.Address, error) {
	eventID := d.abi.Events["AccountCreated"].ID
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != factory || len(logEntry.Topics) < 2 || logEntry.Topics[0] != eventID {
			continue
		}
		return common.BytesToAddress(logEntry.Topics[1].Bytes()), nil
	}
	return common.Address{}, fmt.Errorf("no AccountCreated event in receipt %s", receipt.TxHash.Hex())
}

// packSession converts a session authorization into the factory's tuple
// layout. Tokens are sorted so packing is deterministic.
func packSession(session interfaces.SessionAuthorization) initialSessionArg {
	tokens := make([]common.Address, 0, len(session.SpendLimits))
	for token := range session.SpendLimits {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Cmp(tokens[j]) < 0
	})

	limits := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		limits[i] = session.SpendLimits[token].BigInt()
	}

	return initialSessionArg{
		SessionPublicKey: session.SessionPublicKey,
		ExpiresAt:        big.NewInt(session.ExpiresAt.Unix()),
		SpendTokens:      tokens,
		SpendLimits:      limits,
	}
}
