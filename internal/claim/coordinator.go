// Package claim gates attendees' claim attempts against the Event Registry
// and hands each successful claimant a transfer offer for one token.
package claim

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"attendify/internal/apperr"
	"attendify/internal/events"
	"attendify/internal/ledger"
	"attendify/internal/ledger/address"
	"attendify/internal/logger"
	"attendify/internal/models"
	"attendify/internal/offer"
)

type Registry interface {
	FindEventByCustodialAccount(account string) (models.Event, error)
	RecordClaim(eventID int, wallet string) (events.ClaimOutcome, models.Event, error)
	ReleaseClaim(eventID int, wallet string) (models.Event, error)
	ClaimStatus(eventID int, wallet string) (events.ClaimOutcome, models.Event, error)
}

type CredentialSource interface {
	CredentialFor(eventID int) (ledger.Credential, error)
}

type TokenLister interface {
	AccountNFTs(ctx context.Context, account string) iter.Seq2[[]models.NFToken, error]
}

type OfferCreator interface {
	CreateTransferOffer(ctx context.Context, cred ledger.Credential, buyer, tokenID string) (*models.SellOffer, error)
	FindTransferOffer(ctx context.Context, cred ledger.Credential, buyer, tokenID string) (*models.SellOffer, error)
}

type ClaimPublisher interface {
	PublishClaimTransferred(ctx context.Context, msg models.ClaimTransferredMessage) error
}

var errNoToken = errors.New("no unclaimed token left in custodial account")

const settleTimeout = 15 * time.Second

type Coordinator struct {
	Registry Registry
	Vault    CredentialSource
	Ledger   TokenLister
	Offers   OfferCreator
	Locks    TokenLocker
	Kafka    ClaimPublisher
	Logger   *logger.Logger
}

func NewCoordinator(registry Registry, vault CredentialSource, gw TokenLister, offers OfferCreator, locks TokenLocker, kafka ClaimPublisher, log *logger.Logger) *Coordinator {
	return &Coordinator{
		Registry: registry,
		Vault:    vault,
		Ledger:   gw,
		Offers:   offers,
		Locks:    locks,
		Kafka:    kafka,
		Logger:   log,
	}
}

func validate(op, wallet, account string) error {
	switch {
	case wallet == "":
		return apperr.Parameter(op, "walletAddress", nil)
	case !address.IsValid(wallet):
		return apperr.Parameter(op, "walletAddress", fmt.Errorf("%q is not a classic address", wallet))
	case account == "":
		return apperr.Parameter(op, "id", nil)
	}
	return nil
}

// AttemptClaim records wallet as a participant of the event held by account
// and creates the offer that transfers one token to it. A transfer that
// provably left no offer on the ledger releases the recorded claim so the
// wallet may try again. When the outcome cannot be settled the claim and the
// token lock are kept.
func (c *Coordinator) AttemptClaim(ctx context.Context, wallet, account string) (*models.ClaimResult, error) {
	const op = "claim"

	// Step 1: Validate and resolve the event
	if err := validate(op, wallet, account); err != nil {
		return nil, err
	}
	ev, err := c.Registry.FindEventByCustodialAccount(account)
	if apperr.Is(err, apperr.KindNotFound) {
		return &models.ClaimResult{Status: models.ClaimNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	// Step 2: Record the claim
	outcome, ev, err := c.Registry.RecordClaim(ev.ID, wallet)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case events.AlreadyClaimed:
		c.Logger.LogClaim("claimed", account, wallet, "wallet already claimed")
		return &models.ClaimResult{Status: models.ClaimClaimed, Event: &ev}, nil
	case events.Exhausted:
		c.Logger.LogClaim("empty", account, wallet, "no tokens remaining")
		return &models.ClaimResult{Status: models.ClaimEmpty, Event: &ev}, nil
	}

	// Step 3 and 4: Pick a token and offer it to the wallet
	sell, err := c.transfer(ctx, ev, wallet)
	if errors.Is(err, offer.ErrOutcomeUnknown) {
		c.Logger.Error("CLAIM", fmt.Sprintf("transfer to %s on event %d unsettled, claim kept: %v", wallet, ev.ID, err))
		return nil, err
	}
	if err != nil {
		if _, relErr := c.Registry.ReleaseClaim(ev.ID, wallet); relErr != nil {
			c.Logger.Error("CLAIM", fmt.Sprintf("release claim of %s on event %d: %v", wallet, ev.ID, relErr))
		}
		c.Logger.Error("CLAIM", fmt.Sprintf("transfer to %s on event %d failed, claim released: %v", wallet, ev.ID, err))
		return nil, err
	}

	// Step 5: Report the transfer
	c.Logger.LogClaim("transferred", account, wallet, fmt.Sprintf("offer %s for %s", sell.Index, sell.NFTokenID))
	if c.Kafka != nil {
		msg := models.ClaimTransferredMessage{
			EventID:          ev.ID,
			CustodialAccount: ev.CustodialAccount,
			Owner:            ev.Owner,
			Wallet:           wallet,
			NFTokenID:        sell.NFTokenID,
			OfferIndex:       sell.Index,
			Remaining:        ev.Remaining,
			ClaimedAt:        time.Now().UTC(),
		}
		if err := c.Kafka.PublishClaimTransferred(ctx, msg); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("claim by %s on event %d not published: %v", wallet, ev.ID, err))
		}
	}
	return &models.ClaimResult{Status: models.ClaimTransferred, Event: &ev, Offer: sell}, nil
}

func (c *Coordinator) transfer(ctx context.Context, ev models.Event, wallet string) (*models.SellOffer, error) {
	const op = "claim"

	cred, err := c.Vault.CredentialFor(ev.ID)
	if err != nil {
		return nil, apperr.Application(op, err)
	}

	tokenID, err := c.lockToken(ctx, ev, wallet)
	if err != nil {
		return nil, err
	}

	sell, err := c.Offers.CreateTransferOffer(ctx, cred, wallet, tokenID)
	if errors.Is(err, offer.ErrOutcomeUnknown) {
		sell, err = c.settle(ctx, cred, wallet, tokenID, err)
	}
	if err != nil {
		if !errors.Is(err, offer.ErrOutcomeUnknown) {
			if unlockErr := c.Locks.UnlockToken(ctx, tokenID, wallet); unlockErr != nil {
				c.Logger.Warn("CLAIM", fmt.Sprintf("unlock %s: %v", tokenID, unlockErr))
			}
		}
		return nil, err
	}
	if sell.NFTokenID == "" {
		sell.NFTokenID = tokenID
	}
	return sell, nil
}

// settle looks for the offer a submission with an unknown outcome may have
// created. The lookup is detached from ctx, which may be what failed.
func (c *Coordinator) settle(ctx context.Context, cred ledger.Credential, wallet, tokenID string, cause error) (*models.SellOffer, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	found, err := c.Offers.FindTransferOffer(ctx, cred, wallet, tokenID)
	if err != nil {
		c.Logger.Warn("CLAIM", fmt.Sprintf("look up offer of %s to %s: %v", tokenID, wallet, err))
		return nil, cause
	}
	if found == nil {
		return nil, cause
	}
	c.Logger.Warn("CLAIM", fmt.Sprintf("offer %s of %s to %s is on the ledger despite: %v", found.Index, tokenID, wallet, cause))
	return found, nil
}

// lockToken walks the custodial account's tokens of this event and returns
// the first one it manages to lock for wallet.
func (c *Coordinator) lockToken(ctx context.Context, ev models.Event, wallet string) (string, error) {
	const op = "claim"

	for nfts, err := range c.Ledger.AccountNFTs(ctx, ev.CustodialAccount) {
		if err != nil {
			return "", apperr.Ledger(op, err)
		}
		for _, nft := range nfts {
			if nft.NFTokenTaxon != uint32(ev.ID) {
				continue
			}
			ok, err := c.Locks.LockToken(ctx, nft.NFTokenID, wallet)
			if err != nil {
				return "", apperr.Application(op, err)
			}
			if ok {
				return nft.NFTokenID, nil
			}
		}
	}
	return "", apperr.Application(op, fmt.Errorf("event %d: %w", ev.ID, errNoToken))
}

// CheckClaim reports what AttemptClaim would answer, without side effects.
func (c *Coordinator) CheckClaim(_ context.Context, wallet, account string) (*models.ClaimResult, error) {
	const op = "check claim"
	if err := validate(op, wallet, account); err != nil {
		return nil, err
	}

	ev, err := c.Registry.FindEventByCustodialAccount(account)
	if apperr.Is(err, apperr.KindNotFound) {
		return &models.ClaimResult{Status: models.ClaimNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	outcome, ev, err := c.Registry.ClaimStatus(ev.ID, wallet)
	if err != nil {
		return nil, err
	}
	status := models.ClaimAvailable
	switch outcome {
	case events.AlreadyClaimed:
		status = models.ClaimClaimed
	case events.Exhausted:
		status = models.ClaimEmpty
	}
	return &models.ClaimResult{Status: status, Event: &ev}, nil
}

// Fanout delivers each claim to every publisher in order. Errors are joined;
// a failing publisher does not stop the rest.
type Fanout []ClaimPublisher

func (f Fanout) PublishClaimTransferred(ctx context.Context, msg models.ClaimTransferredMessage) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishClaimTransferred(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
