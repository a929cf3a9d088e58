package models

type ClaimStatus string

const (
	ClaimNotFound    ClaimStatus = "404"
	ClaimClaimed     ClaimStatus = "claimed"
	ClaimEmpty       ClaimStatus = "empty"
	ClaimTransferred ClaimStatus = "transferred"
	// ClaimAvailable is only reported by read-only checks.
	ClaimAvailable ClaimStatus = "success"
)

type ClaimResult struct {
	Status ClaimStatus `json:"status"`
	Event  *Event      `json:"result,omitempty"`
	Offer  *SellOffer  `json:"claimed,omitempty"`
}
