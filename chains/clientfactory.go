package chains

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// ClientFactory constructs role-scoped RPC clients for registered chains.
// Dialed clients are cached per chain; transport construction is the only
// side effect.
type ClientFactory struct {
	registry  *Registry
	funderKey *ecdsa.PrivateKey
	log       *slog.Logger

	mu      sync.Mutex
	clients map[interfaces.ChainID]*ethclient.Client
}

// NewClientFactory creates a factory bound to a chain registry. funderKey is
// the deployer-funded signer used for deployment and funding transactions.
func NewClientFactory(registry *Registry, funderKey *ecdsa.PrivateKey, log *slog.Logger) *ClientFactory {
	return &ClientFactory{
		registry:  registry,
		funderKey: funderKey,
		log:       log,
		clients:   make(map[interfaces.ChainID]*ethclient.Client),
	}
}

// ReadClient returns a read-only client for the chain.
func (f *ClientFactory) ReadClient(ctx context.Context, id interfaces.ChainID) (*ethclient.Client, error) {
	desc, err := f.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	return f.dial(ctx, desc)
}

// FunderClient returns a client along with transaction options signed by the
// funder key.
func (f *ClientFactory) FunderClient(ctx context.Context, id interfaces.ChainID) (*ethclient.Client, *bind.TransactOpts, error) {
	desc, err := f.registry.Resolve(id)
	if err != nil {
		return nil, nil, err
	}
	client, err := f.dial(ctx, desc)
	if err != nil {
		return nil, nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(f.funderKey, new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, nil, fmt.Errorf("could not create funder transactor: %w", err)
	}
	auth.Context = ctx
	return client, auth, nil
}

// UserClient returns a client with transaction options signed by the session
// key of the currently logged-in user. Fails with ErrNotLoggedIn when no
// local session is provided.
func (f *ClientFactory) UserClient(ctx context.Context, id interfaces.ChainID, session *interfaces.LocalSession) (*ethclient.Client, *bind.TransactOpts, error) {
	if session == nil {
		return nil, nil, interfaces.ErrNotLoggedIn
	}
	desc, err := f.registry.Resolve(id)
	if err != nil {
		return nil, nil, err
	}
	client, err := f.dial(ctx, desc)
	if err != nil {
		return nil, nil, err
	}

	key, err := session.Signer()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid session key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, nil, fmt.Errorf("could not create session transactor: %w", err)
	}
	auth.Context = ctx
	return client, auth, nil
}

func (f *ClientFactory) dial(ctx context.Context, desc interfaces.ChainDescriptor) (*ethclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[desc.ChainID]; ok {
		return client, nil
	}

	f.log.Debug("Dialing chain RPC", slog.Uint64("chainId", uint64(desc.ChainID)), slog.String("rpc", desc.RPCEndpoint))
	client, err := ethclient.DialContext(ctx, desc.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("could not dial RPC for chain %d: %w", desc.ChainID, err)
	}
	f.clients[desc.ChainID] = client
	return client, nil
}

// Close closes all cached RPC connections.
func (f *ClientFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, client := range f.clients {
		client.Close()
	}
	f.clients = make(map[interfaces.ChainID]*ethclient.Client)
}
