package ownership

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"attendify/internal/ledger/address"
)

const (
	ed25519Prefix        = 0xED
	publicKeyLength      = 33
	secp256k1SigLength   = 64
	maxEnvelopeHexLength = 8192
)

var (
	ErrMalformedSignature = errors.New("malformed signature envelope")
	ErrUnsupportedKey     = errors.New("unsupported public key type")
)

// Envelope is the signed message a wallet presents, CBOR-encoded with
// integer keys and then hex-encoded for transport in a query string.
type Envelope struct {
	PublicKey []byte `cbor:"1,keyasint"`
	Message   []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

var (
	envelopeEnc cbor.EncMode
	envelopeDec cbor.DecMode
)

func init() {
	var err error
	envelopeEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ownership: CBOR encoder initialization failed: " + err.Error())
	}
	envelopeDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic("ownership: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode renders the envelope in its hex transport form.
func (e Envelope) Encode() (string, error) {
	data, err := envelopeEnc.Marshal(e)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

func DecodeEnvelope(signature string) (Envelope, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" || len(signature) > maxEnvelopeHexLength {
		return Envelope{}, ErrMalformedSignature
	}
	data, err := hex.DecodeString(signature)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	var env Envelope
	if err := envelopeDec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	if len(env.PublicKey) != publicKeyLength || len(env.Message) == 0 || len(env.Signature) == 0 {
		return Envelope{}, ErrMalformedSignature
	}
	return env, nil
}

// EnvelopeVerifier checks Ed25519 and secp256k1 signed envelopes and names
// the signer by the classic address of the public key.
type EnvelopeVerifier struct{}

func (EnvelopeVerifier) Verify(signature string) (bool, string, error) {
	env, err := DecodeEnvelope(signature)
	if err != nil {
		return false, "", err
	}

	var valid bool
	switch {
	case env.PublicKey[0] == ed25519Prefix:
		valid, err = verifyEd25519(env)
	case env.PublicKey[0] == 0x02 || env.PublicKey[0] == 0x03:
		valid, err = verifySecp256k1(env)
	default:
		return false, "", fmt.Errorf("%w: prefix 0x%02X", ErrUnsupportedKey, env.PublicKey[0])
	}
	if err != nil {
		return false, "", err
	}
	return valid, address.FromPublicKey(env.PublicKey), nil
}

func verifyEd25519(env Envelope) (bool, error) {
	key := env.PublicKey[1:]
	if _, err := new(edwards25519.Point).SetBytes(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	if len(env.Signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(key), env.Message, env.Signature), nil
}

func verifySecp256k1(env Envelope) (bool, error) {
	if _, err := crypto.DecompressPubkey(env.PublicKey); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	if len(env.Signature) != secp256k1SigLength {
		return false, nil
	}
	return crypto.VerifySignature(env.PublicKey, sha512Half(env.Message), env.Signature), nil
}

// sha512Half is the ledger's standard digest: the first 32 bytes of SHA-512.
func sha512Half(msg []byte) []byte {
	sum := sha512.Sum512(msg)
	return sum[:32]
}
