// Package offer creates the zero-price, destination-locked sell offers that
// hand a claimed token to an attendee.
package offer

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"attendify/internal/apperr"
	"attendify/internal/ledger"
	"attendify/internal/logger"
	"attendify/internal/models"
)

type LedgerGateway interface {
	SubmitAndWait(ctx context.Context, cred ledger.Credential, tx ledger.Transaction) (*ledger.TxResult, error)
	SellOffers(ctx context.Context, tokenID string) iter.Seq2[[]models.SellOffer, error]
}

// ErrOutcomeUnknown marks a failure after which the sell offer may still be
// on the ledger.
var ErrOutcomeUnknown = errors.New("sell offer outcome unknown")

type Handshake struct {
	Ledger LedgerGateway
	Logger *logger.Logger
}

func NewHandshake(gw LedgerGateway, log *logger.Logger) *Handshake {
	return &Handshake{Ledger: gw, Logger: log}
}

// CreateTransferOffer offers tokenID from the custodial account to buyer for
// nothing. Only buyer can accept it; the offer does not expire.
func (h *Handshake) CreateTransferOffer(ctx context.Context, cred ledger.Credential, buyer, tokenID string) (*models.SellOffer, error) {
	const op = "create transfer offer"
	switch {
	case cred.IsZero():
		return nil, apperr.Parameter(op, "credential", nil)
	case buyer == "":
		return nil, apperr.Parameter(op, "buyer", nil)
	case tokenID == "":
		return nil, apperr.Parameter(op, "tokenId", nil)
	}

	res, err := h.Ledger.SubmitAndWait(ctx, cred, ledger.NFTokenCreateOffer{
		NFTokenID:   tokenID,
		Amount:      "0",
		Flags:       ledger.FlagSellOffer,
		Destination: buyer,
	})
	if err != nil {
		if !ledger.Uncommitted(err) {
			err = fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
		}
		return nil, apperr.Ledger(op, err)
	}
	h.Logger.LogLedger("offer", fmt.Sprintf("sell offer for %s to %s in %s", tokenID, buyer, res.Hash))

	found, err := h.FindTransferOffer(ctx, cred, buyer, tokenID)
	if err != nil {
		return nil, apperr.Ledger(op, fmt.Errorf("%w: %w", ErrOutcomeUnknown, err))
	}
	if found == nil {
		return nil, apperr.Ledger(op, fmt.Errorf("%w: no sell offer for %s to %s after submission %s", ErrOutcomeUnknown, tokenID, buyer, res.Hash))
	}
	return found, nil
}

// FindTransferOffer returns the validated sell offer of tokenID from the
// credential's account to buyer, or nil when there is none.
func (h *Handshake) FindTransferOffer(ctx context.Context, cred ledger.Credential, buyer, tokenID string) (*models.SellOffer, error) {
	for offers, err := range h.Ledger.SellOffers(ctx, tokenID) {
		if err != nil {
			return nil, err
		}
		for _, o := range offers {
			if o.Destination == buyer && o.Owner == cred.Address() {
				found := o
				return &found, nil
			}
		}
	}
	return nil, nil
}
