package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"attendify/internal/models"
)

// Faucet funds fresh accounts on a test network.
type Faucet struct {
	url    string
	client *http.Client
}

func NewFaucet(url string, timeout time.Duration) *Faucet {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Faucet{url: url, client: &http.Client{Timeout: timeout}}
}

type faucetResponse struct {
	Account struct {
		ClassicAddress string `json:"classicAddress"`
		Address        string `json:"address"`
		Secret         string `json:"secret"`
	} `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

func (f *Faucet) FundAccount(ctx context.Context) (*models.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("faucet: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("faucet: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("faucet: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("faucet: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var fr faucetResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("faucet: unmarshal response: %w", err)
	}

	addr := fr.Account.ClassicAddress
	if addr == "" {
		addr = fr.Account.Address
	}
	if addr == "" || fr.Account.Secret == "" {
		return nil, fmt.Errorf("faucet: response missing account credentials")
	}

	return &models.Account{Address: addr, Secret: fr.Account.Secret, Balance: fr.Balance}, nil
}
