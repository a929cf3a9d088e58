package events

import (
	"errors"
	"fmt"
	"sync"

	"filippo.io/age"

	"attendify/internal/apperr"
	"attendify/internal/ledger"
)

// Vault holds custodial credentials, sealed to an identity that exists only
// for the lifetime of the process.
type Vault struct {
	mu       sync.RWMutex
	identity *age.X25519Identity
	sealed   map[int][]byte
}

func NewVault() (*Vault, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate vault identity: %w", err)
	}
	return &Vault{identity: identity, sealed: make(map[int][]byte)}, nil
}

// Seal stores cred under eventID. A credential is written once.
func (v *Vault) Seal(eventID int, cred ledger.Credential) error {
	const op = "vault seal"
	if cred.IsZero() {
		return apperr.Parameter(op, "credential", nil)
	}

	sealed, err := cred.Seal(v.identity.Recipient())
	if err != nil {
		return apperr.Application(op, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.sealed[eventID]; exists {
		return apperr.Application(op, fmt.Errorf("credential for event %d already sealed", eventID))
	}
	v.sealed[eventID] = sealed
	return nil
}

func (v *Vault) CredentialFor(eventID int) (ledger.Credential, error) {
	const op = "vault open"

	v.mu.RLock()
	sealed, ok := v.sealed[eventID]
	v.mu.RUnlock()
	if !ok {
		return ledger.Credential{}, apperr.NotFound(op, fmt.Errorf("no credential for event %d", eventID))
	}

	cred, err := ledger.OpenCredential(sealed, v.identity)
	if err != nil {
		return ledger.Credential{}, apperr.Application(op, err)
	}
	return cred, nil
}

// Export re-seals the credential for eventID to an external recipient, for
// operators who need to keep a custodial account reachable beyond this
// process.
func (v *Vault) Export(eventID int, recipient age.Recipient) ([]byte, error) {
	cred, err := v.CredentialFor(eventID)
	if err != nil {
		return nil, err
	}
	sealed, err := cred.Seal(recipient)
	if err != nil {
		return nil, apperr.Application("vault export", err)
	}
	return sealed, nil
}

var errNoVault = errors.New("registry has no vault")
