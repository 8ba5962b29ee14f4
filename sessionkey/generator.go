// Package sessionkey generates ephemeral session signing keys. Generation is
// pure local compute with no network dependency.
package sessionkey

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Generator produces fresh secp256k1 keypairs from the system entropy source.
type Generator struct{}

// Generate returns a new session keypair. Entropy source failure is fatal and
// surfaced as ErrSessionKeyGeneration; it is never retried silently.
func (Generator) Generate() (*interfaces.SessionKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSessionKeyGeneration, err)
	}
	return &interfaces.SessionKey{
		PrivateKey: key,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}
