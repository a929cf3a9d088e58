package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

const redacted = "[REDACTED]"

// Credential is the signing material of a custodial account. The seed never
// leaves this package in clear text: it is only read when signing a
// submission or when sealing to an age recipient.
type Credential struct {
	address string
	seed    string
}

func NewCredential(address, seed string) Credential {
	return Credential{address: address, seed: seed}
}

func (c Credential) Address() string { return c.address }

func (c Credential) IsZero() bool { return c.address == "" || c.seed == "" }

func (c Credential) String() string {
	return fmt.Sprintf("Credential{%s, seed: %s}", c.address, redacted)
}

func (c Credential) GoString() string { return c.String() }

func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"address": c.address, "seed": redacted})
}

type sealedCredential struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// Seal encrypts the credential to recipient.
func (c Credential) Seal(recipient age.Recipient) ([]byte, error) {
	if c.IsZero() {
		return nil, errors.New("seal credential: empty credential")
	}
	plain, err := json.Marshal(sealedCredential{Address: c.address, Seed: c.seed})
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}
	return buf.Bytes(), nil
}

// OpenCredential reverses Seal.
func OpenCredential(sealed []byte, identity age.Identity) (Credential, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return Credential{}, fmt.Errorf("open credential: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return Credential{}, fmt.Errorf("open credential: %w", err)
	}
	var sc sealedCredential
	if err := json.Unmarshal(plain, &sc); err != nil {
		return Credential{}, fmt.Errorf("open credential: %w", err)
	}
	return NewCredential(sc.Address, sc.Seed), nil
}
