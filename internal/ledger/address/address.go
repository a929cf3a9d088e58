// Package address encodes and decodes XRP Ledger classic addresses.
package address

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	AccountIDLength = 20
	seedLength      = 16

	accountIDVersion byte = 0x00
	seedVersion      byte = 0x21
	checksumLength        = 4
)

var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

var (
	ErrChecksum = errors.New("address: checksum mismatch")
	ErrVersion  = errors.New("address: unexpected version prefix")
	ErrLength   = errors.New("address: unexpected payload length")
)

// AccountID hashes a public key into the 20-byte account identifier.
func AccountID(publicKey []byte) []byte {
	sum := sha256.Sum256(publicKey)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// FromPublicKey returns the classic address owned by publicKey.
func FromPublicKey(publicKey []byte) string {
	addr, _ := Encode(AccountID(publicKey))
	return addr
}

// Encode renders a 20-byte account id as an r-address.
func Encode(accountID []byte) (string, error) {
	if len(accountID) != AccountIDLength {
		return "", fmt.Errorf("%w: %d", ErrLength, len(accountID))
	}
	return encodeVersioned(accountIDVersion, accountID), nil
}

// Decode returns the account id behind an r-address.
func Decode(addr string) ([]byte, error) {
	payload, err := decodeVersioned(accountIDVersion, addr)
	if err != nil {
		return nil, err
	}
	if len(payload) != AccountIDLength {
		return nil, fmt.Errorf("%w: %d", ErrLength, len(payload))
	}
	return payload, nil
}

func IsValid(addr string) bool {
	_, err := Decode(addr)
	return err == nil
}

// EncodeSeed renders 16 bytes of entropy as an s-prefixed family seed.
func EncodeSeed(entropy []byte) (string, error) {
	if len(entropy) != seedLength {
		return "", fmt.Errorf("%w: %d", ErrLength, len(entropy))
	}
	return encodeVersioned(seedVersion, entropy), nil
}

func encodeVersioned(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLength)
	buf = append(buf, version)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf)...)
	return base58.EncodeAlphabet(buf, rippleAlphabet)
}

func decodeVersioned(version byte, s string) ([]byte, error) {
	raw, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	if len(raw) < 1+checksumLength {
		return nil, fmt.Errorf("%w: %d", ErrLength, len(raw))
	}
	body, sum := raw[:len(raw)-checksumLength], raw[len(raw)-checksumLength:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, ErrChecksum
	}
	if body[0] != version {
		return nil, ErrVersion
	}
	return body[1:], nil
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
