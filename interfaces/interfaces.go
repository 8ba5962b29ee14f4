package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// DirectoryClient queries the external indexer for existing username
// registrations. Lookup is idempotent and side-effect-free.
//
// A nil record with a nil error means the username is not registered; "no
// record found" and "record found but empty" are the same negative result.
// Transport failures are returned wrapping ErrDirectoryUnavailable so callers
// never infer availability from a connectivity failure.
type DirectoryClient interface {
	Lookup(ctx context.Context, purpose LookupPurpose, username string, chain ChainID) (*DirectoryRecord, error)
}

// CredentialProvider wraps the platform authenticator.
type CredentialProvider interface {
	// CreateCredential creates a new non-exportable credential scoped to the
	// username. User rejection, timeout and unsupported platforms all return
	// an error wrapping ErrCredentialCreation. The credential registered with
	// the authenticator cannot be rolled back by this system.
	CreateCredential(ctx context.Context, username string) (*Credential, error)

	// VerifyAssertion runs a login ceremony with an existing credential,
	// verifying the authenticator's signature against the directory record.
	VerifyAssertion(ctx context.Context, username string, record *DirectoryRecord) error
}

// SessionKeyGenerator produces fresh session keypairs entirely client-side.
type SessionKeyGenerator interface {
	Generate() (*SessionKey, error)
}

// AccountDeployer submits the account creation transaction. Either the
// account exists at the returned address with the credential and session
// authorization bound, or the call fails and no partial account exists
// (atomicity is the contract platform's guarantee).
type AccountDeployer interface {
	Deploy(ctx context.Context, chain ChainDescriptor, credential *Credential, username string, session SessionAuthorization) (common.Address, error)
}

// Funder transfers native currency from the funding signer to a newly
// deployed account. Amount is denominated in whole native-currency units.
type Funder interface {
	Fund(ctx context.Context, chain ChainDescriptor, to common.Address, amount decimal.Decimal) (*types.Receipt, error)
}

// SessionStore persists zero or one LocalSession per origin. Replace must be
// a single atomic replacement; concurrent readers never observe a
// half-written record. Get returns ErrSessionNotFound when empty.
type SessionStore interface {
	Get(ctx context.Context, origin Origin) (*LocalSession, error)
	Replace(ctx context.Context, origin Origin, session *LocalSession) error
	Clear(ctx context.Context, origin Origin) error
}
