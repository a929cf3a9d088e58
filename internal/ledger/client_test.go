package ledger

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify/internal/logger"
)

func newTestClient(t *testing.T) (*fakeNode, *Client) {
	t.Helper()
	node, srv := newFakeNode(t)
	c := NewClient(NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond)), nil, logger.NewWithWriter(io.Discard),
		WithPollInterval(time.Millisecond),
		WithValidationTimeout(2*time.Second),
	)
	return node, c
}

func TestClient_AccountInfo(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("account_info", func(p map[string]any) map[string]any {
		return map[string]any{"account_data": map[string]any{
			"Account":  p["account"],
			"Balance":  "1000000123",
			"Sequence": 42,
		}}
	})

	info, err := c.AccountInfo(context.Background(), "rCustody")

	require.NoError(t, err)
	assert.Equal(t, "rCustody", info.Address)
	assert.EqualValues(t, 42, info.Sequence)
	assert.True(t, decimal.RequireFromString("1000.000123").Equal(info.Balance))
}

func TestClient_SubmitAndWait_PollsUntilValidated(t *testing.T) {
	node, c := newTestClient(t)
	var submitted map[string]any
	node.handle("submit", func(p map[string]any) map[string]any {
		submitted = p
		return map[string]any{"engine_result": "tesSUCCESS", "tx_json": map[string]any{"hash": "ABC"}}
	})
	polls := 0
	node.handle("tx", func(p map[string]any) map[string]any {
		polls++
		switch polls {
		case 1:
			return map[string]any{"status": "error", "error": "txnNotFound"}
		case 2:
			return map[string]any{"hash": "ABC", "validated": false}
		}
		return map[string]any{"hash": "ABC", "validated": true, "ledger_index": 77,
			"meta": map[string]any{"TransactionResult": "tesSUCCESS"}}
	})

	cred := NewCredential("rCustody", "sSeed")
	res, err := c.SubmitAndWait(context.Background(), cred, NFTokenMint{
		URI: "6970", Flags: FlagBurnable | FlagTransferable, NFTokenTaxon: 3, TicketSequence: 12,
	})

	require.NoError(t, err)
	assert.Equal(t, "ABC", res.Hash)
	assert.EqualValues(t, 77, res.LedgerIndex)
	require.Equal(t, 3, node.count("tx"))
	assert.Equal(t, 3, polls)

	txJSON := submitted["tx_json"].(map[string]any)
	assert.Equal(t, "NFTokenMint", txJSON["TransactionType"])
	assert.Equal(t, "rCustody", txJSON["Account"])
	assert.EqualValues(t, 9, txJSON["Flags"])
	assert.EqualValues(t, 0, txJSON["Sequence"])
	assert.EqualValues(t, 12, txJSON["TicketSequence"])
	assert.Equal(t, "sSeed", submitted["secret"])
}

func TestClient_SubmitAndWait_Rejected(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("submit", func(map[string]any) map[string]any {
		return map[string]any{"engine_result": "temMALFORMED", "tx_json": map[string]any{"hash": "DEF"}}
	})

	_, err := c.SubmitAndWait(context.Background(), NewCredential("rA", "sA"), TicketCreate{TicketCount: 5, Sequence: 1})

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "temMALFORMED", txErr.Result)
	assert.True(t, Uncommitted(err))
	assert.Zero(t, node.count("tx"))
}

func TestClient_SubmitAndWait_FailedResult(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("submit", func(map[string]any) map[string]any {
		return map[string]any{"engine_result": "terQUEUED", "tx_json": map[string]any{"hash": "H"}}
	})
	node.handle("tx", func(map[string]any) map[string]any {
		return map[string]any{"validated": true, "meta": map[string]any{"TransactionResult": "tecNO_PERMISSION"}}
	})

	_, err := c.SubmitAndWait(context.Background(), NewCredential("rA", "sA"), NFTokenCreateOffer{NFTokenID: "00", Amount: "0"})

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "tecNO_PERMISSION", txErr.Result)
	assert.True(t, Uncommitted(err))
}

func TestClient_SubmitAndWait_ValidationTimeout(t *testing.T) {
	node, c := newTestClient(t)
	c.validationTimeout = 20 * time.Millisecond
	node.handle("submit", func(map[string]any) map[string]any {
		return map[string]any{"engine_result": "tesSUCCESS", "tx_json": map[string]any{"hash": "H"}}
	})
	node.handle("tx", func(map[string]any) map[string]any {
		return map[string]any{"validated": false}
	})

	_, err := c.SubmitAndWait(context.Background(), NewCredential("rA", "sA"), TicketCreate{TicketCount: 1, Sequence: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, Uncommitted(err))
}

func TestClient_SubmitAndWait_MissingCredentialIsUncommitted(t *testing.T) {
	node, c := newTestClient(t)

	_, err := c.SubmitAndWait(context.Background(), Credential{}, TicketCreate{TicketCount: 1, Sequence: 1})

	assert.ErrorIs(t, err, ErrNotSubmitted)
	assert.True(t, Uncommitted(err))
	assert.Zero(t, node.count("submit"))
}

func TestClient_Tickets_FollowsMarker(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("account_objects", func(p map[string]any) map[string]any {
		assert.Equal(t, "ticket", p["type"])
		if p["marker"] == nil {
			return map[string]any{"account_objects": []map[string]any{
				{"LedgerEntryType": "Ticket", "TicketSequence": 5},
				{"LedgerEntryType": "Ticket", "TicketSequence": 6},
			}, "marker": "page2"}
		}
		return map[string]any{"account_objects": []map[string]any{
			{"LedgerEntryType": "Ticket", "TicketSequence": 7},
		}}
	})

	tickets, err := Collect(c.Tickets(context.Background(), "rCustody"))

	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6, 7}, tickets)
	assert.Equal(t, 2, node.count("account_objects"))
}

func TestClient_AccountNFTs_RepeatedMarkerStops(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("account_nfts", func(map[string]any) map[string]any {
		return map[string]any{"account_nfts": []map[string]any{{"NFTokenID": "AA"}}, "marker": "stuck"}
	})

	_, err := Collect(c.AccountNFTs(context.Background(), "rW"))

	assert.ErrorIs(t, err, ErrRepeatedMarker)
	assert.Equal(t, 2, node.count("account_nfts"))
}

func TestClient_SellOffers(t *testing.T) {
	node, c := newTestClient(t)
	node.handle("nft_sell_offers", func(p map[string]any) map[string]any {
		if p["nft_id"] == "NONE" {
			return map[string]any{"status": "error", "error": "objectNotFound"}
		}
		return map[string]any{"nft_id": p["nft_id"], "offers": []map[string]any{
			{"nft_offer_index": "OFF1", "owner": "rCustody", "destination": "rW", "amount": "0", "flags": 1},
		}}
	})

	offers, err := Collect(c.SellOffers(context.Background(), "TOKEN"))
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "TOKEN", offers[0].NFTokenID)
	assert.Equal(t, "rW", offers[0].Destination)

	none, err := Collect(c.SellOffers(context.Background(), "NONE"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDropsToXRP(t *testing.T) {
	tests := []struct {
		drops string
		want  string
	}{
		{"1000000", "1"},
		{"12", "0.000012"},
		{"", "0"},
	}
	for _, tt := range tests {
		t.Run(strconv.Quote(tt.drops), func(t *testing.T) {
			got, err := DropsToXRP(tt.drops)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), got.String())
		})
	}

	_, err := DropsToXRP("lots")
	assert.Error(t, err)
}

func TestDial_SelectsTransportByScheme(t *testing.T) {
	tr, err := Dial(context.Background(), "https://s.altnet.rippletest.net:51234", time.Second, 1)
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, tr)

	_, err = Dial(context.Background(), "ftp://example.com", time.Second, 1)
	assert.Error(t, err)
}
