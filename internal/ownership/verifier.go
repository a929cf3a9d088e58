// Package ownership answers whether a wallet that proves control of its
// keys currently holds a given token.
package ownership

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"attendify/internal/apperr"
	"attendify/internal/logger"
	"attendify/internal/models"
)

type SignatureVerifier interface {
	Verify(signature string) (valid bool, signer string, err error)
}

type TokenLister interface {
	AccountNFTs(ctx context.Context, account string) iter.Seq2[[]models.NFToken, error]
}

type Verifier struct {
	Signatures SignatureVerifier
	Ledger     TokenLister
	Logger     *logger.Logger
}

func NewVerifier(sigs SignatureVerifier, gw TokenLister, log *logger.Logger) *Verifier {
	return &Verifier{Signatures: sigs, Ledger: gw, Logger: log}
}

// VerifyOwnership requires signature to be a valid signature by wallet and
// then reports whether wallet holds tokenID. Token ids compare
// case-insensitively.
func (v *Verifier) VerifyOwnership(ctx context.Context, wallet, tokenID, signature string) (bool, error) {
	const op = "verify ownership"
	switch {
	case wallet == "":
		return false, apperr.Parameter(op, "walletAddress", nil)
	case tokenID == "":
		return false, apperr.Parameter(op, "id", nil)
	case signature == "":
		return false, apperr.Parameter(op, "signature", nil)
	}

	valid, signer, err := v.Signatures.Verify(signature)
	if err != nil {
		return false, apperr.Parameter(op, "signature", err)
	}
	if !valid {
		v.Logger.LogSecurity("bad-signature", fmt.Sprintf("invalid signature presented for %s", wallet))
		return false, apperr.Parameter(op, "signature", fmt.Errorf("signature does not verify"))
	}
	if signer != wallet {
		v.Logger.LogSecurity("signer-mismatch", fmt.Sprintf("signature by %s presented for %s", signer, wallet))
		return false, apperr.Parameter(op, "signature", fmt.Errorf("signed by %s, not %s", signer, wallet))
	}

	for nfts, err := range v.Ledger.AccountNFTs(ctx, wallet) {
		if err != nil {
			return false, apperr.Ledger(op, err)
		}
		for _, nft := range nfts {
			if strings.EqualFold(nft.NFTokenID, tokenID) {
				return true, nil
			}
		}
	}
	return false, nil
}
