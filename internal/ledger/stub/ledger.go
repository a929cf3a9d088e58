// Package stub is an in-memory XRP Ledger that implements ledger.Gateway.
// It applies TicketCreate, NFTokenMint, NFTokenCreateOffer and
// NFTokenAcceptOffer with the same sequencing rules as a real node, and
// validates every submission immediately.
package stub

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"attendify/internal/ledger"
	"attendify/internal/ledger/address"
	"attendify/internal/models"
)

const (
	DefaultPageSize = 400
	// MaxTicketsOwned is the ledger's cap on tickets held by one account.
	MaxTicketsOwned = 250

	startingSequence = 1000
)

var startingBalance = decimal.NewFromInt(1000)

type account struct {
	seed     string
	sequence uint32
	balance  decimal.Decimal
	tickets  map[uint32]struct{}
	nfts     []models.NFToken
	serial   uint32
}

type Ledger struct {
	mu          sync.Mutex
	accounts    map[string]*account
	offers      map[string][]models.SellOffer
	ledgerIndex uint32
	txCount     uint64
	submissions map[string]int

	// PageSize bounds every paged listing.
	PageSize int
	// FailSubmit, when set, is consulted before each submission is applied;
	// a non-nil error fails the submission without touching state.
	FailSubmit func(tx ledger.Transaction) error
}

func New() *Ledger {
	return &Ledger{
		accounts:    make(map[string]*account),
		offers:      make(map[string][]models.SellOffer),
		submissions: make(map[string]int),
		ledgerIndex: 1,
		PageSize:    DefaultPageSize,
	}
}

// RandomAddress returns a well-formed address that owns nothing.
func RandomAddress() string {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	return address.FromPublicKey(append([]byte{0xED}, pub...))
}

func (l *Ledger) FundAccount(_ context.Context) (*models.Account, error) {
	entropy := make([]byte, 16)
	if _, err := rand.Read(entropy); err != nil {
		return nil, err
	}
	seed, err := address.EncodeSeed(entropy)
	if err != nil {
		return nil, err
	}
	addr := RandomAddress()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[addr] = &account{
		seed:     seed,
		sequence: startingSequence,
		balance:  startingBalance,
		tickets:  make(map[uint32]struct{}),
	}
	return &models.Account{Address: addr, Secret: seed, Balance: startingBalance}, nil
}

func (l *Ledger) AccountInfo(_ context.Context, addr string) (*models.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[addr]
	if !ok {
		return nil, &ledger.RPCError{Code: "actNotFound", Message: "Account not found."}
	}
	return &models.AccountInfo{Address: addr, Sequence: acct.sequence, Balance: acct.balance}, nil
}

func (l *Ledger) SubmitAndWait(_ context.Context, cred ledger.Credential, tx ledger.Transaction) (*ledger.TxResult, error) {
	if l.FailSubmit != nil {
		if err := l.FailSubmit(tx); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[cred.Address()]
	if !ok {
		return nil, &ledger.RPCError{Code: "srcActNotFound", Message: "Source account not found."}
	}

	var result string
	switch t := tx.(type) {
	case ledger.TicketCreate:
		result = l.ticketCreate(acct, t)
	case ledger.NFTokenMint:
		result = l.mint(cred.Address(), acct, t)
	case ledger.NFTokenCreateOffer:
		result = l.createOffer(cred.Address(), acct, t)
	case ledger.NFTokenAcceptOffer:
		result = l.acceptOffer(cred.Address(), t)
	default:
		result = "temUNKNOWN"
	}

	l.txCount++
	hash := txHash(l.txCount)
	if strings.HasPrefix(result, "tem") || strings.HasPrefix(result, "tef") {
		return nil, &ledger.TxError{TxType: tx.TxType(), Hash: hash, Result: result}
	}
	l.ledgerIndex++
	if result != ledger.ResultSuccess {
		return nil, &ledger.TxError{TxType: tx.TxType(), Hash: hash, Result: result}
	}
	l.submissions[tx.TxType()]++

	meta, _ := json.Marshal(map[string]string{"TransactionResult": result})
	return &ledger.TxResult{
		Hash:        hash,
		Result:      result,
		LedgerIndex: l.ledgerIndex,
		Validated:   true,
		Meta:        meta,
	}, nil
}

func (l *Ledger) ticketCreate(acct *account, t ledger.TicketCreate) string {
	switch {
	case t.Sequence != acct.sequence:
		return "tefPAST_SEQ"
	case t.TicketCount == 0 || t.TicketCount > MaxTicketsOwned:
		return "temINVALID_COUNT"
	case len(acct.tickets)+int(t.TicketCount) > MaxTicketsOwned:
		acct.sequence++
		return "tecDIR_FULL"
	}
	for i := uint32(1); i <= t.TicketCount; i++ {
		acct.tickets[t.Sequence+i] = struct{}{}
	}
	acct.sequence += 1 + t.TicketCount
	return ledger.ResultSuccess
}

func (l *Ledger) mint(issuer string, acct *account, t ledger.NFTokenMint) string {
	if t.TicketSequence != 0 {
		if t.Sequence != 0 {
			return "temSEQ_AND_TICKET"
		}
		if _, ok := acct.tickets[t.TicketSequence]; !ok {
			return "tefNO_TICKET"
		}
		delete(acct.tickets, t.TicketSequence)
	} else {
		if t.Sequence != acct.sequence {
			return "tefPAST_SEQ"
		}
		acct.sequence++
	}

	id, err := tokenID(t.Flags, t.TransferFee, issuer, t.NFTokenTaxon, acct.serial)
	if err != nil {
		return "temMALFORMED"
	}
	acct.nfts = append(acct.nfts, models.NFToken{
		NFTokenID:    id,
		Issuer:       issuer,
		URI:          t.URI,
		NFTokenTaxon: t.NFTokenTaxon,
		Flags:        t.Flags,
		TransferFee:  t.TransferFee,
		Serial:       acct.serial,
	})
	acct.serial++
	return ledger.ResultSuccess
}

func (l *Ledger) createOffer(owner string, acct *account, t ledger.NFTokenCreateOffer) string {
	if t.Destination != "" && !address.IsValid(t.Destination) {
		return "temMALFORMED"
	}
	if t.Flags&ledger.FlagSellOffer == 0 {
		return "temMALFORMED"
	}
	if indexOf(acct.nfts, t.NFTokenID) < 0 {
		return "tecNO_ENTRY"
	}
	acct.sequence++

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s/%d", owner, t.NFTokenID, l.txCount)))
	l.offers[t.NFTokenID] = append(l.offers[t.NFTokenID], models.SellOffer{
		Index:       strings.ToUpper(hex.EncodeToString(sum[:])),
		NFTokenID:   t.NFTokenID,
		Owner:       owner,
		Destination: t.Destination,
		Amount:      t.Amount,
		Flags:       t.Flags,
	})
	return ledger.ResultSuccess
}

func (l *Ledger) acceptOffer(buyer string, t ledger.NFTokenAcceptOffer) string {
	buyerAcct, ok := l.accounts[buyer]
	if !ok {
		return "tecNO_DST"
	}
	for tokenID, offers := range l.offers {
		for i, offer := range offers {
			if offer.Index != t.SellOffer {
				continue
			}
			if offer.Destination != "" && offer.Destination != buyer {
				return "tecNO_PERMISSION"
			}
			seller := l.accounts[offer.Owner]
			idx := indexOf(seller.nfts, tokenID)
			if idx < 0 {
				return "tecNO_ENTRY"
			}
			token := seller.nfts[idx]
			seller.nfts = append(seller.nfts[:idx], seller.nfts[idx+1:]...)
			buyerAcct.nfts = append(buyerAcct.nfts, token)
			buyerAcct.sequence++
			l.offers[tokenID] = append(offers[:i], offers[i+1:]...)
			return ledger.ResultSuccess
		}
	}
	return "tecOBJECT_NOT_FOUND"
}

func (l *Ledger) Tickets(ctx context.Context, addr string) iter.Seq2[[]uint32, error] {
	return pages(ctx, l, func() []uint32 {
		acct, ok := l.accounts[addr]
		if !ok {
			return nil
		}
		out := make([]uint32, 0, len(acct.tickets))
		for t := range acct.tickets {
			out = append(out, t)
		}
		slices.Sort(out)
		return out
	})
}

func (l *Ledger) AccountNFTs(ctx context.Context, addr string) iter.Seq2[[]models.NFToken, error] {
	return pages(ctx, l, func() []models.NFToken {
		if acct, ok := l.accounts[addr]; ok {
			return append([]models.NFToken(nil), acct.nfts...)
		}
		return nil
	})
}

func (l *Ledger) SellOffers(ctx context.Context, tokenID string) iter.Seq2[[]models.SellOffer, error] {
	return pages(ctx, l, func() []models.SellOffer {
		return append([]models.SellOffer(nil), l.offers[tokenID]...)
	})
}

// Submissions reports how many validated transactions of txType were applied.
func (l *Ledger) Submissions(txType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions[txType]
}

// TicketsOwned reports the number of unused tickets held by addr.
func (l *Ledger) TicketsOwned(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[addr]; ok {
		return len(acct.tickets)
	}
	return 0
}

// pages serves a snapshot of a listing through ledger.Pages, using the
// offset as the marker.
func pages[T any](ctx context.Context, l *Ledger, snapshot func() []T) iter.Seq2[[]T, error] {
	return ledger.Pages(ctx, 0, func(_ context.Context, marker json.RawMessage) ([]T, json.RawMessage, error) {
		start := 0
		if len(marker) > 0 {
			var err error
			if start, err = strconv.Atoi(string(marker)); err != nil {
				return nil, nil, &ledger.RPCError{Code: "invalidParams", Message: "bad marker"}
			}
		}

		l.mu.Lock()
		items := snapshot()
		size := l.PageSize
		l.mu.Unlock()
		if size <= 0 {
			size = DefaultPageSize
		}

		if start >= len(items) {
			return nil, nil, nil
		}
		end := min(start+size, len(items))
		var next json.RawMessage
		if end < len(items) {
			next = json.RawMessage(strconv.Itoa(end))
		}
		return items[start:end], next, nil
	})
}

func tokenID(flags uint32, fee uint16, issuer string, taxon, serial uint32) (string, error) {
	accountID, err := address.Decode(issuer)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, 32)
	buf = binary.BigEndian.AppendUint16(buf, uint16(flags))
	buf = binary.BigEndian.AppendUint16(buf, fee)
	buf = append(buf, accountID...)
	buf = binary.BigEndian.AppendUint32(buf, taxon)
	buf = binary.BigEndian.AppendUint32(buf, serial)
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func indexOf(nfts []models.NFToken, tokenID string) int {
	for i, nft := range nfts {
		if strings.EqualFold(nft.NFTokenID, tokenID) {
			return i
		}
	}
	return -1
}

func txHash(n uint64) string {
	sum := sha256.Sum256([]byte(strconv.FormatUint(n, 10)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

var _ ledger.Gateway = (*Ledger)(nil)
