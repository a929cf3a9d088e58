package models

import "github.com/shopspring/decimal"

// Account is a freshly funded test-net wallet as handed back by the faucet.
type Account struct {
	Address string          `json:"address"`
	Secret  string          `json:"secret"`
	Balance decimal.Decimal `json:"balance"`
}

type AccountInfo struct {
	Address  string          `json:"address"`
	Sequence uint32          `json:"sequence"`
	Balance  decimal.Decimal `json:"balance"`
}
