// Package mint fills a new event's custodial account with NFTs using
// ticket-sequenced NFTokenMint transactions.
package mint

import (
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"slices"
	"strings"

	"attendify/internal/apperr"
	"attendify/internal/events"
	"attendify/internal/ledger"
	"attendify/internal/ledger/address"
	"attendify/internal/logger"
	"attendify/internal/models"
)

const (
	// MaxTicketsPerBatch is the most tickets one TicketCreate may request.
	MaxTicketsPerBatch = 250
	// MaxURILength is the ledger's limit on an NFToken URI, in bytes.
	MaxURILength = 256

	TokenFlags = ledger.FlagBurnable | ledger.FlagTransferable
)

type LedgerGateway interface {
	FundAccount(ctx context.Context) (*models.Account, error)
	AccountInfo(ctx context.Context, account string) (*models.AccountInfo, error)
	SubmitAndWait(ctx context.Context, cred ledger.Credential, tx ledger.Transaction) (*ledger.TxResult, error)
	Tickets(ctx context.Context, account string) iter.Seq2[[]uint32, error]
}

type Registry interface {
	ReserveEventID() int
	CreateEvent(ne events.NewEvent) (models.Event, error)
}

type EventPublisher interface {
	PublishEventCreated(ctx context.Context, msg models.EventCreatedMessage) error
}

type Request struct {
	Owner       string
	Count       int
	MetadataRef string
	Title       string
	Description string
	Location    string
}

type Minter struct {
	Ledger    LedgerGateway
	Registry  Registry
	Kafka     EventPublisher
	Logger    *logger.Logger
	BatchSize int
}

func NewMinter(gw LedgerGateway, registry Registry, kafka EventPublisher, log *logger.Logger) *Minter {
	return &Minter{Ledger: gw, Registry: registry, Kafka: kafka, Logger: log, BatchSize: MaxTicketsPerBatch}
}

func (r Request) validate() error {
	const op = "mint"
	switch {
	case r.Owner == "":
		return apperr.Parameter(op, "walletAddress", nil)
	case !address.IsValid(r.Owner):
		return apperr.Parameter(op, "walletAddress", fmt.Errorf("%q is not a classic address", r.Owner))
	case r.Count <= 0:
		return apperr.Parameter(op, "tokenCount", fmt.Errorf("must be positive, got %d", r.Count))
	case r.MetadataRef == "":
		return apperr.Parameter(op, "url", nil)
	case len(r.MetadataRef) > MaxURILength:
		return apperr.Parameter(op, "url", fmt.Errorf("longer than %d bytes", MaxURILength))
	case r.Title == "":
		return apperr.Parameter(op, "title", nil)
	}
	return nil
}

// Mint funds a custodial account, mints req.Count tokens into it in ticket
// batches and registers the event. Tokens already minted when a later
// submission fails stay on the ledger; the error reports how many.
func (m *Minter) Mint(ctx context.Context, req Request) (models.Event, error) {
	const op = "mint"

	// Step 1: Validate before touching the ledger
	if err := req.validate(); err != nil {
		return models.Event{}, err
	}

	// Step 2: Fund the custodial account
	acct, err := m.Ledger.FundAccount(ctx)
	if err != nil {
		return models.Event{}, apperr.Ledger(op, fmt.Errorf("fund custodial account: %w", err))
	}
	cred := ledger.NewCredential(acct.Address, acct.Secret)

	// Step 3: Reserve the event id, used as the token taxon
	eventID := m.Registry.ReserveEventID()
	m.Logger.LogMint("start", eventID, fmt.Sprintf("minting %d tokens into %s for %s", req.Count, acct.Address, req.Owner))

	// Step 4: Create tickets and mint, batch by batch
	uri := strings.ToUpper(hex.EncodeToString([]byte(req.MetadataRef)))
	minted := 0
	for batchNo := 1; minted < req.Count; batchNo++ {
		size := min(req.Count-minted, m.batchSize())

		tickets, err := m.createTickets(ctx, cred, size)
		if err != nil {
			return models.Event{}, m.abort(eventID, minted, req.Count, fmt.Errorf("batch %d: %w", batchNo, err))
		}

		for _, ticket := range tickets {
			_, err := m.Ledger.SubmitAndWait(ctx, cred, ledger.NFTokenMint{
				URI:            uri,
				Flags:          TokenFlags,
				TransferFee:    0,
				NFTokenTaxon:   uint32(eventID),
				Sequence:       0,
				TicketSequence: ticket,
			})
			if err != nil {
				return models.Event{}, m.abort(eventID, minted, req.Count, fmt.Errorf("batch %d ticket %d: %w", batchNo, ticket, err))
			}
			minted++
		}
		m.Logger.LogMint("batch", eventID, fmt.Sprintf("batch %d done, %d/%d minted", batchNo, minted, req.Count))
	}

	// Step 5: Register the event
	ev, err := m.Registry.CreateEvent(events.NewEvent{
		ID:               eventID,
		Owner:            req.Owner,
		MetadataRef:      req.MetadataRef,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		TotalSupply:      req.Count,
		CustodialAccount: acct.Address,
		Credential:       cred,
	})
	if err != nil {
		return models.Event{}, err
	}
	m.Logger.LogMint("done", eventID, fmt.Sprintf("event %q registered with %d tokens", ev.Title, ev.TotalSupply))

	if m.Kafka != nil {
		msg := models.EventCreatedMessage{
			EventID:          ev.ID,
			CustodialAccount: ev.CustodialAccount,
			Owner:            ev.Owner,
			Title:            ev.Title,
			TotalSupply:      ev.TotalSupply,
			CreatedAt:        ev.CreatedAt,
		}
		if err := m.Kafka.PublishEventCreated(ctx, msg); err != nil {
			m.Logger.Warn("KAFKA", fmt.Sprintf("event %d created but not published: %v", ev.ID, err))
		}
	}

	return ev, nil
}

// createTickets issues a TicketCreate for count tickets at the account's
// current sequence and returns the count lowest tickets it then holds.
func (m *Minter) createTickets(ctx context.Context, cred ledger.Credential, count int) ([]uint32, error) {
	info, err := m.Ledger.AccountInfo(ctx, cred.Address())
	if err != nil {
		return nil, err
	}

	_, err = m.Ledger.SubmitAndWait(ctx, cred, ledger.TicketCreate{
		TicketCount: uint32(count),
		Sequence:    info.Sequence,
	})
	if err != nil {
		return nil, err
	}

	tickets, err := ledger.Collect(m.Ledger.Tickets(ctx, cred.Address()))
	if err != nil {
		return nil, err
	}
	if len(tickets) < count {
		return nil, fmt.Errorf("expected %d tickets, account holds %d", count, len(tickets))
	}
	slices.Sort(tickets)
	return tickets[:count], nil
}

func (m *Minter) abort(eventID, minted, total int, err error) error {
	m.Logger.Error("MINT", fmt.Sprintf("event=%d aborted after %d/%d tokens minted: %v", eventID, minted, total, err))
	return apperr.Ledger("mint", fmt.Errorf("%d of %d tokens minted: %w", minted, total, err))
}

func (m *Minter) batchSize() int {
	if m.BatchSize <= 0 || m.BatchSize > MaxTicketsPerBatch {
		return MaxTicketsPerBatch
	}
	return m.BatchSize
}
