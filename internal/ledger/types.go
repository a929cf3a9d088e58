// Package ledger talks to an XRP Ledger node over JSON-RPC (HTTP) or
// WebSocket and exposes the handful of queries and submissions attendify
// needs.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"attendify/internal/models"
)

// NFTokenMint flags.
const (
	FlagBurnable     uint32 = 0x00000001
	FlagOnlyXRP      uint32 = 0x00000002
	FlagTransferable uint32 = 0x00000008
)

// FlagSellOffer marks an NFTokenCreateOffer as a sell offer.
const FlagSellOffer uint32 = 0x00000001

const ResultSuccess = "tesSUCCESS"

// Transport sends one request to a rippled node and decodes the result
// object into result.
type Transport interface {
	Call(ctx context.Context, method string, params map[string]any, result any) error
	Close() error
}

// Gateway is everything the attendify workflows ask of the ledger.
type Gateway interface {
	FundAccount(ctx context.Context) (*models.Account, error)
	AccountInfo(ctx context.Context, account string) (*models.AccountInfo, error)
	SubmitAndWait(ctx context.Context, cred Credential, tx Transaction) (*TxResult, error)
	Tickets(ctx context.Context, account string) iter.Seq2[[]uint32, error]
	AccountNFTs(ctx context.Context, account string) iter.Seq2[[]models.NFToken, error]
	SellOffers(ctx context.Context, tokenID string) iter.Seq2[[]models.SellOffer, error]
}

// Transaction is a typed tx_json body. The Account field is filled from the
// signing credential at submission.
type Transaction interface {
	TxType() string
}

type TicketCreate struct {
	Account     string `json:"Account"`
	TicketCount uint32 `json:"TicketCount"`
	Sequence    uint32 `json:"Sequence"`
}

func (TicketCreate) TxType() string { return "TicketCreate" }

type NFTokenMint struct {
	Account        string `json:"Account"`
	URI            string `json:"URI,omitempty"`
	Flags          uint32 `json:"Flags"`
	TransferFee    uint16 `json:"TransferFee"`
	NFTokenTaxon   uint32 `json:"NFTokenTaxon"`
	Sequence       uint32 `json:"Sequence"`
	TicketSequence uint32 `json:"TicketSequence,omitempty"`
}

func (NFTokenMint) TxType() string { return "NFTokenMint" }

type NFTokenCreateOffer struct {
	Account     string `json:"Account"`
	NFTokenID   string `json:"NFTokenID"`
	Amount      string `json:"Amount"`
	Flags       uint32 `json:"Flags"`
	Destination string `json:"Destination,omitempty"`
}

func (NFTokenCreateOffer) TxType() string { return "NFTokenCreateOffer" }

type NFTokenAcceptOffer struct {
	Account   string `json:"Account"`
	SellOffer string `json:"NFTokenSellOffer"`
}

func (NFTokenAcceptOffer) TxType() string { return "NFTokenAcceptOffer" }

// TxResult is the validated outcome of a submission.
type TxResult struct {
	Hash        string          `json:"hash"`
	Result      string          `json:"result"`
	LedgerIndex uint32          `json:"ledger_index"`
	Validated   bool            `json:"validated"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// RPCError is an error reported by the node itself, as opposed to a
// transport failure.
type RPCError struct {
	Code    string `json:"error"`
	Message string `json:"error_message"`
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error: %s", e.Code)
	}
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
}

// TxError reports a submission the ledger refused or applied with a
// non-success result.
type TxError struct {
	TxType string
	Hash   string
	Result string
}

func (e *TxError) Error() string {
	if e.Hash == "" {
		return fmt.Sprintf("%s rejected: %s", e.TxType, e.Result)
	}
	return fmt.Sprintf("%s %s failed: %s", e.TxType, e.Hash, e.Result)
}

// ErrNotSubmitted marks a failure that happened before the transaction was
// handed to the node.
var ErrNotSubmitted = errors.New("transaction not submitted")

// Uncommitted reports whether err proves the transaction left no effect on
// the ledger other than, at most, its fee. Transport failures and validation
// timeouts after submission are not proof.
func Uncommitted(err error) bool {
	var txErr *TxError
	return errors.As(err, &txErr) || errors.Is(err, ErrNotSubmitted)
}

// txJSON flattens a typed transaction into the map rippled expects.
func txJSON(tx Transaction, account string) (map[string]any, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tx.TxType(), err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode %s: %w", tx.TxType(), err)
	}
	out["TransactionType"] = tx.TxType()
	out["Account"] = account
	return out, nil
}
