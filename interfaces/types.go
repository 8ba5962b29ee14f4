// Package interfaces defines the core types and component contracts of the
// account provisioning backend. It provides the contract between components
// without implementation details.
package interfaces

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// ChainID identifies a supported blockchain network.
type ChainID uint64

// ContractSet holds the deployed contract addresses a chain needs for
// passkey account provisioning.
type ContractSet struct {
	SessionModule         common.Address `json:"sessionModule"`
	PasskeyModule         common.Address `json:"passkeyModule"`
	AccountFactory        common.Address `json:"accountFactory"`
	AccountImplementation common.Address `json:"accountImplementation"`
}

// Complete reports whether every address in the set is configured. A chain
// with a placeholder (zero) address is resolvable but not provisioning-capable.
func (c ContractSet) Complete() bool {
	zero := common.Address{}
	return c.SessionModule != zero &&
		c.PasskeyModule != zero &&
		c.AccountFactory != zero &&
		c.AccountImplementation != zero
}

// ChainDescriptor is a static description of a supported chain. Immutable
// after process start.
type ChainDescriptor struct {
	ChainID     ChainID     `json:"chainId"`
	RPCEndpoint string      `json:"rpc"`
	Contracts   ContractSet `json:"contracts"`
}

// Credential describes a passkey credential held by a platform authenticator.
// The system only ever holds the public key and a reference name; private
// material never leaves the authenticator.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte

	// PublicKey is the opaque COSE-encoded public key produced by the
	// authenticator.
	PublicKey []byte

	// DisplayName equals the requested username at creation time.
	DisplayName string
}

// SpendLimits maps a token contract address to the maximum cumulative amount,
// in the token's base units, a session key may authorize.
type SpendLimits map[common.Address]decimal.Decimal

// SessionAuthorization constrains what a session key is allowed to do. It is
// bound into the account contract at deployment time; enforcement is the
// account contract's responsibility.
type SessionAuthorization struct {
	SessionPublicKey common.Address
	ExpiresAt        time.Time
	SpendLimits      SpendLimits
}

// SessionKey is a freshly generated software signing keypair. The private key
// stays on the invoking client and is never transmitted to the directory,
// funder or chain registry.
type SessionKey struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// Bytes returns the raw private key bytes.
func (k *SessionKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Hex returns the 0x-prefixed hex encoding of the private key.
func (k *SessionKey) Hex() string {
	return hexutil.Encode(k.Bytes())
}

// ProvisionedAccount is the result of a successful deployment: the account
// contract exists at Address with the credential and initial session
// authorization bound. Immutable once created.
type ProvisionedAccount struct {
	Address              common.Address
	ChainID              ChainID
	Credential           Credential
	InitialAuthorization SessionAuthorization
}

// Origin discriminates between calling applications sharing the session
// store; one LocalSession is kept per origin.
type Origin string

// LocalSession is the locally persisted projection of the latest successful
// provisioning, plus the session private key. Zero or one instance exists per
// origin; it is replaced wholesale and never partially written.
type LocalSession struct {
	Username   string         `json:"username"`
	Address    common.Address `json:"address"`
	Passkey    hexutil.Bytes  `json:"passkey"`
	SessionKey hexutil.Bytes  `json:"sessionKey"`
}

// Signer returns the session private key as an ECDSA key, for constructing a
// user-authenticated transactor.
func (s *LocalSession) Signer() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(s.SessionKey)
}

// LookupPurpose distinguishes directory queries made during registration from
// those made during login.
type LookupPurpose string

const (
	PurposeRegistration LookupPurpose = "registration"
	PurposeLogin        LookupPurpose = "login"
)

// DirectoryRecord is the directory's view of an already registered username.
type DirectoryRecord struct {
	Address             common.Address `json:"address"`
	CredentialPublicKey hexutil.Bytes  `json:"credentialPublicKey"`
}

// Empty reports whether the record carries no binding. The directory client
// treats an empty record the same as no record at all.
func (r *DirectoryRecord) Empty() bool {
	return r == nil || (r.Address == common.Address{} && len(r.CredentialPublicKey) == 0)
}
