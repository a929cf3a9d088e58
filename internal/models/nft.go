package models

type NFToken struct {
	NFTokenID    string `json:"NFTokenID"`
	Issuer       string `json:"Issuer"`
	URI          string `json:"URI,omitempty"`
	NFTokenTaxon uint32 `json:"NFTokenTaxon"`
	Flags        uint32 `json:"Flags"`
	TransferFee  uint16 `json:"TransferFee"`
	Serial       uint32 `json:"nft_serial"`
}

type SellOffer struct {
	Index       string `json:"nft_offer_index"`
	NFTokenID   string `json:"nft_id,omitempty"`
	Owner       string `json:"owner"`
	Destination string `json:"destination,omitempty"`
	Amount      string `json:"amount"`
	Flags       uint32 `json:"flags"`
}
