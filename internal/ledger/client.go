package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"attendify/internal/logger"
	"attendify/internal/models"
)

const (
	DefaultPollInterval      = time.Second
	DefaultValidationTimeout = 60 * time.Second
	DefaultPageLimit         = 400
)

// Client implements Gateway on top of a Transport and a test-net Faucet.
// Transactions are signed by the node (submit with tx_json and secret).
type Client struct {
	transport         Transport
	faucet            *Faucet
	log               *logger.Logger
	pollInterval      time.Duration
	validationTimeout time.Duration
	maxPages          int
	pageLimit         int
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithValidationTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.validationTimeout = d
		}
	}
}

func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

func WithPageLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

func NewClient(transport Transport, faucet *Faucet, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		transport:         transport,
		faucet:            faucet,
		log:               log,
		pollInterval:      DefaultPollInterval,
		validationTimeout: DefaultValidationTimeout,
		maxPages:          DefaultMaxPages,
		pageLimit:         DefaultPageLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial picks the transport from the URL scheme: ws/wss use the WebSocket
// API, http/https use JSON-RPC.
func Dial(ctx context.Context, rawURL string, timeout time.Duration, maxRetries int) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		cfg := DefaultWSConfig()
		if timeout > 0 {
			cfg.RequestTimeout = timeout
		}
		return NewWSClient(ctx, rawURL, &cfg)
	case "http", "https":
		return NewHTTPClient(rawURL, WithTimeout(timeout), WithMaxRetries(maxRetries)), nil
	default:
		return nil, fmt.Errorf("unsupported ledger url scheme %q", u.Scheme)
	}
}

func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) FundAccount(ctx context.Context) (*models.Account, error) {
	if c.faucet == nil {
		return nil, errors.New("no faucet configured")
	}
	acct, err := c.faucet.FundAccount(ctx)
	if err != nil {
		return nil, err
	}
	c.log.LogLedger("faucet", fmt.Sprintf("funded %s with %s XRP", acct.Address, acct.Balance))
	return acct, nil
}

type accountInfoResult struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
}

func (c *Client) AccountInfo(ctx context.Context, account string) (*models.AccountInfo, error) {
	var res accountInfoResult
	params := map[string]any{"account": account, "ledger_index": "current"}
	if err := c.transport.Call(ctx, "account_info", params, &res); err != nil {
		return nil, fmt.Errorf("account_info %s: %w", account, err)
	}
	balance, err := DropsToXRP(res.AccountData.Balance)
	if err != nil {
		return nil, fmt.Errorf("account_info %s: %w", account, err)
	}
	return &models.AccountInfo{
		Address:  res.AccountData.Account,
		Sequence: res.AccountData.Sequence,
		Balance:  balance,
	}, nil
}

type submitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
}

type txResult struct {
	Hash        string          `json:"hash"`
	LedgerIndex uint32          `json:"ledger_index"`
	Validated   bool            `json:"validated"`
	Meta        json.RawMessage `json:"meta"`
}

// SubmitAndWait submits tx signed with cred and polls until the transaction
// is in a validated ledger. Anything but tesSUCCESS is a *TxError.
func (c *Client) SubmitAndWait(ctx context.Context, cred Credential, tx Transaction) (*TxResult, error) {
	if cred.IsZero() {
		return nil, fmt.Errorf("submit: missing credential: %w", ErrNotSubmitted)
	}
	body, err := txJSON(tx, cred.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSubmitted, err)
	}

	var sub submitResult
	params := map[string]any{"tx_json": body, "secret": cred.seed}
	if err := c.transport.Call(ctx, "submit", params, &sub); err != nil {
		return nil, fmt.Errorf("submit %s: %w", tx.TxType(), err)
	}
	if rejected(sub.EngineResult) {
		return nil, &TxError{TxType: tx.TxType(), Hash: sub.TxJSON.Hash, Result: sub.EngineResult}
	}
	c.log.LogLedger("submit", fmt.Sprintf("%s %s: %s", tx.TxType(), sub.TxJSON.Hash, sub.EngineResult))

	return c.waitValidated(ctx, tx.TxType(), sub.TxJSON.Hash)
}

func (c *Client) waitValidated(ctx context.Context, txType, hash string) (*TxResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.validationTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var res txResult
		err := c.transport.Call(ctx, "tx", map[string]any{"transaction": hash}, &res)
		var rpcErr *RPCError
		switch {
		case errors.As(err, &rpcErr) && rpcErr.Code == "txnNotFound":
		case err != nil && ctx.Err() == nil:
			return nil, fmt.Errorf("tx %s: %w", hash, err)
		case err == nil && res.Validated:
			result := transactionResult(res.Meta)
			if result != ResultSuccess {
				return nil, &TxError{TxType: txType, Hash: hash, Result: result}
			}
			return &TxResult{
				Hash:        hash,
				Result:      result,
				LedgerIndex: res.LedgerIndex,
				Validated:   true,
				Meta:        res.Meta,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s %s not validated: %w", txType, hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

type accountObjectsResult struct {
	AccountObjects []struct {
		LedgerEntryType string `json:"LedgerEntryType"`
		TicketSequence  uint32 `json:"TicketSequence"`
	} `json:"account_objects"`
	Marker json.RawMessage `json:"marker"`
}

// Tickets lists the ticket sequence numbers owned by account.
func (c *Client) Tickets(ctx context.Context, account string) iter.Seq2[[]uint32, error] {
	return Pages(ctx, c.maxPages, func(ctx context.Context, marker json.RawMessage) ([]uint32, json.RawMessage, error) {
		params := c.pageParams(marker)
		params["account"] = account
		params["type"] = "ticket"

		var res accountObjectsResult
		if err := c.transport.Call(ctx, "account_objects", params, &res); err != nil {
			return nil, nil, fmt.Errorf("account_objects %s: %w", account, err)
		}
		tickets := make([]uint32, 0, len(res.AccountObjects))
		for _, obj := range res.AccountObjects {
			if obj.LedgerEntryType == "Ticket" || obj.TicketSequence != 0 {
				tickets = append(tickets, obj.TicketSequence)
			}
		}
		return tickets, res.Marker, nil
	})
}

type accountNFTsResult struct {
	AccountNFTs []models.NFToken `json:"account_nfts"`
	Marker      json.RawMessage  `json:"marker"`
}

func (c *Client) AccountNFTs(ctx context.Context, account string) iter.Seq2[[]models.NFToken, error] {
	return Pages(ctx, c.maxPages, func(ctx context.Context, marker json.RawMessage) ([]models.NFToken, json.RawMessage, error) {
		params := c.pageParams(marker)
		params["account"] = account

		var res accountNFTsResult
		if err := c.transport.Call(ctx, "account_nfts", params, &res); err != nil {
			return nil, nil, fmt.Errorf("account_nfts %s: %w", account, err)
		}
		return res.AccountNFTs, res.Marker, nil
	})
}

type sellOffersResult struct {
	NFTokenID string             `json:"nft_id"`
	Offers    []models.SellOffer `json:"offers"`
	Marker    json.RawMessage    `json:"marker"`
}

// SellOffers lists the sell offers on tokenID. A token without offers is an
// empty listing, not an error.
func (c *Client) SellOffers(ctx context.Context, tokenID string) iter.Seq2[[]models.SellOffer, error] {
	return Pages(ctx, c.maxPages, func(ctx context.Context, marker json.RawMessage) ([]models.SellOffer, json.RawMessage, error) {
		params := c.pageParams(marker)
		params["nft_id"] = tokenID

		var res sellOffersResult
		err := c.transport.Call(ctx, "nft_sell_offers", params, &res)
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == "objectNotFound" {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("nft_sell_offers %s: %w", tokenID, err)
		}
		for i := range res.Offers {
			if res.Offers[i].NFTokenID == "" {
				res.Offers[i].NFTokenID = tokenID
			}
		}
		return res.Offers, res.Marker, nil
	})
}

func (c *Client) pageParams(marker json.RawMessage) map[string]any {
	params := map[string]any{"limit": c.pageLimit, "ledger_index": "validated"}
	if len(marker) > 0 {
		params["marker"] = marker
	}
	return params
}

// DropsToXRP converts a drops amount string into XRP.
func DropsToXRP(drops string) (decimal.Decimal, error) {
	if drops == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(drops)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse drops %q: %w", drops, err)
	}
	return d.Shift(-6), nil
}

// rejected reports engine results that guarantee the transaction will never
// reach a ledger.
func rejected(engineResult string) bool {
	for _, prefix := range []string{"tem", "tef", "tel"} {
		if strings.HasPrefix(engineResult, prefix) {
			return true
		}
	}
	return false
}

func transactionResult(meta json.RawMessage) string {
	var m struct {
		TransactionResult string `json:"TransactionResult"`
	}
	if err := json.Unmarshal(meta, &m); err != nil || m.TransactionResult == "" {
		return "unknown"
	}
	return m.TransactionResult
}

var _ Gateway = (*Client)(nil)
