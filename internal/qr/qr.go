// Package qr renders claim links as QR codes for printing at the venue.
package qr

import (
	"errors"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

type Generator struct {
	publicURL string
	size      int
}

func NewGenerator(publicURL string) *Generator {
	return &Generator{publicURL: strings.TrimRight(publicURL, "/"), size: DefaultSize}
}

// ClaimLink is the page attendees open to claim from the given custodial
// account.
func (g *Generator) ClaimLink(account string) string {
	return g.publicURL + "/claim?id=" + url.QueryEscape(account)
}

// ClaimQR returns a PNG encoding ClaimLink(account).
func (g *Generator) ClaimQR(account string) ([]byte, error) {
	if account == "" {
		return nil, errors.New("qr: empty account")
	}
	return qrcode.Encode(g.ClaimLink(account), qrcode.Medium, g.size)
}
