package models

import "time"

type EventCreatedMessage struct {
	EventID          int       `json:"event_id"`
	CustodialAccount string    `json:"account"`
	Owner            string    `json:"owner"`
	Title            string    `json:"title"`
	TotalSupply      int       `json:"claimable"`
	CreatedAt        time.Time `json:"created_at"`
}

type ClaimTransferredMessage struct {
	EventID          int       `json:"event_id"`
	CustodialAccount string    `json:"account"`
	Owner            string    `json:"owner"`
	Wallet           string    `json:"wallet"`
	NFTokenID        string    `json:"nft_id"`
	OfferIndex       string    `json:"nft_offer_index"`
	Remaining        int       `json:"remaining"`
	ClaimedAt        time.Time `json:"claimed_at"`
}
