package models

import "time"

type Event struct {
	ID               int       `json:"id"`
	CustodialAccount string    `json:"account"`
	Owner            string    `json:"owner"`
	MetadataRef      string    `json:"URI"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Location         string    `json:"location,omitempty"`
	TotalSupply      int       `json:"claimable"`
	Remaining        int       `json:"remaining"`
	Participants     []string  `json:"participants"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Claimed is the number of tokens already handed out.
func (e Event) Claimed() int {
	return e.TotalSupply - e.Remaining
}

// HasParticipant reports whether wallet already claimed from the event.
func (e Event) HasParticipant(wallet string) bool {
	for _, p := range e.Participants {
		if p == wallet {
			return true
		}
	}
	return false
}
