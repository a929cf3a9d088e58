package attendify_api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify/internal/claim"
	"attendify/internal/events"
	"attendify/internal/kafka"
	"attendify/internal/ledger"
	"attendify/internal/ledger/stub"
	"attendify/internal/logger"
	"attendify/internal/mint"
	"attendify/internal/models"
	"attendify/internal/offer"
	"attendify/internal/ownership"
	"attendify/internal/qr"
	"attendify/internal/sse"
)

// prefixSignatures accepts "signed-by:<address>" as a valid signature by
// that address.
type prefixSignatures struct{}

func (prefixSignatures) Verify(sig string) (bool, string, error) {
	signer, ok := strings.CutPrefix(sig, "signed-by:")
	if !ok {
		return false, "", errors.New("malformed signature")
	}
	return true, signer, nil
}

type fakeStore struct {
	uploaded [][]byte
	err      error
}

func (s *fakeStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploaded = append(s.uploaded, data)
	return "https://ipfs.io/ipfs/QmMeta", nil
}

type fixture struct {
	ledger   *stub.Ledger
	registry *events.Registry
	handler  *Handler
	router   chi.Router
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	vault, err := events.NewVault()
	require.NoError(t, err)
	registry := events.NewRegistry(vault)
	l := stub.New()
	stream := sse.NewClaimEmitter()

	h := &Handler{
		Minter:    mint.NewMinter(l, registry, kafka.NoopPublisher{}, log),
		Claims:    claim.NewCoordinator(registry, vault, l, offer.NewHandshake(l, log), claim.NewMemoryLocker(), claim.Fanout{kafka.NoopPublisher{}, stream}, log),
		Ownership: ownership.NewVerifier(prefixSignatures{}, l, log),
		Ledger:    l,
		Events:    registry,
		QR:        qr.NewGenerator("http://localhost:3000"),
		Stream:    stream,
		Logger:    log,
	}
	r := chi.NewRouter()
	r.Use(RequestID)
	h.RegisterRoutes(r)
	return &fixture{ledger: l, registry: registry, handler: h, router: r}
}

func (f *fixture) get(t *testing.T, path string, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	target := path
	if params != nil {
		target += "?" + params.Encode()
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (f *fixture) mint(t *testing.T, count int) models.Event {
	t.Helper()
	rec := f.get(t, "/api/mint", url.Values{
		"walletAddress": {stub.RandomAddress()},
		"tokenCount":    {strconv.Itoa(count)},
		"url":           {"https://example.com/badge.png"},
		"title":         {"Go Meetup"},
		"desc":          {"monthly"},
		"loc":           {"Berlin"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Result models.Event `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Result
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMintClaimAndVerify(t *testing.T) {
	f := setup(t)
	ev := f.mint(t, 2)
	assert.Equal(t, 2, ev.TotalSupply)
	assert.Equal(t, 2, ev.Remaining)
	assert.Equal(t, "https://example.com/badge.png", ev.MetadataRef)

	buyer, err := f.ledger.FundAccount(context.Background())
	require.NoError(t, err)

	rec := f.get(t, "/api/claim", url.Values{"walletAddress": {buyer.Address}, "id": {ev.CustodialAccount}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var claimed models.ClaimResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.Equal(t, models.ClaimTransferred, claimed.Status)
	require.NotNil(t, claimed.Offer)
	assert.Equal(t, buyer.Address, claimed.Offer.Destination)

	// Second claim by the same wallet is refused without a new offer.
	rec = f.get(t, "/api/claim", url.Values{"walletAddress": {buyer.Address}, "id": {ev.CustodialAccount}})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.Equal(t, models.ClaimClaimed, claimed.Status)

	rec = f.get(t, "/api/attendees", url.Values{"id": {ev.CustodialAccount}})
	assert.JSONEq(t, `{"result":["`+buyer.Address+`"]}`, rec.Body.String())

	verify := url.Values{
		"walletAddress": {buyer.Address},
		"id":            {claimed.Offer.NFTokenID},
		"signature":     {"signed-by:" + buyer.Address},
	}
	rec = f.get(t, "/api/verifyOwnership", verify)
	assert.JSONEq(t, `{"result":false}`, rec.Body.String())

	// The token moves once the buyer accepts the offer.
	_, err = f.ledger.SubmitAndWait(context.Background(),
		ledger.NewCredential(buyer.Address, buyer.Secret),
		ledger.NFTokenAcceptOffer{Account: buyer.Address, SellOffer: claimed.Offer.Index})
	require.NoError(t, err)

	rec = f.get(t, "/api/verifyOwnership", verify)
	assert.JSONEq(t, `{"result":true}`, rec.Body.String())

	rec = f.get(t, "/api/getMyNfts", url.Values{"walletAddress": {buyer.Address}})
	var nfts struct {
		Result []models.NFToken `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nfts))
	require.Len(t, nfts.Result, 1)
	assert.Equal(t, claimed.Offer.NFTokenID, nfts.Result[0].NFTokenID)
}

func TestMint_ParameterErrors(t *testing.T) {
	f := setup(t)
	valid := url.Values{
		"walletAddress": {stub.RandomAddress()},
		"tokenCount":    {"3"},
		"url":           {"https://example.com/badge.png"},
		"title":         {"Go Meetup"},
	}

	tests := []struct {
		name  string
		field string
		value string
	}{
		{"missing wallet", "walletAddress", ""},
		{"malformed wallet", "walletAddress", "not-an-address"},
		{"non-numeric count", "tokenCount", "three"},
		{"zero count", "tokenCount", "0"},
		{"missing url", "url", ""},
		{"missing title", "title", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := url.Values{}
			for k, v := range valid {
				params[k] = v
			}
			params.Set(tt.field, tt.value)

			rec := f.get(t, "/api/mint", params)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "100", body.Error)
			assert.Contains(t, body.Message, tt.field)
		})
	}
	assert.Equal(t, 0, f.ledger.Submissions("NFTokenMint"))
	assert.Empty(t, f.registry.Events())
}

// cancelingLedger cancels the request after a number of token mints and,
// like a real node client, fails any call made under a canceled context.
type cancelingLedger struct {
	*stub.Ledger
	cancel context.CancelFunc
	after  int32
	mints  atomic.Int32
}

func (l *cancelingLedger) SubmitAndWait(ctx context.Context, cred ledger.Credential, tx ledger.Transaction) (*ledger.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := tx.(ledger.NFTokenMint); ok && l.mints.Add(1) == l.after {
		l.cancel()
	}
	return l.Ledger.SubmitAndWait(ctx, cred, tx)
}

func TestMint_ClientGoneMidwayStillCompletes(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &cancelingLedger{Ledger: f.ledger, cancel: cancel, after: 10}
	f.handler.Minter = mint.NewMinter(gw, f.registry, kafka.NoopPublisher{}, logger.NewWithWriter(io.Discard))

	params := url.Values{
		"walletAddress": {stub.RandomAddress()},
		"tokenCount":    {"300"},
		"url":           {"https://example.com/badge.png"},
		"title":         {"Go Meetup"},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/mint?"+params.Encode(), nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Error(t, ctx.Err())
	assert.Equal(t, 300, f.ledger.Submissions("NFTokenMint"))
	registered := f.registry.Events()
	require.Len(t, registered, 1)
	assert.Equal(t, 300, registered[0].TotalSupply)
	assert.Equal(t, 300, registered[0].Remaining)
}

func TestClaim_ClientGoneStillTransfers(t *testing.T) {
	f := setup(t)
	ev := f.mint(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wallet := stub.RandomAddress()
	params := url.Values{"walletAddress": {wallet}, "id": {ev.CustodialAccount}}
	req := httptest.NewRequest(http.MethodGet, "/api/claim?"+params.Encode(), nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	after, err := f.registry.FindEventByCustodialAccount(ev.CustodialAccount)
	require.NoError(t, err)
	assert.Equal(t, []string{wallet}, after.Participants)
	assert.Equal(t, 1, f.ledger.Submissions("NFTokenCreateOffer"))
}

func TestMint_UploadsMetadata(t *testing.T) {
	f := setup(t)
	store := &fakeStore{}
	f.handler.Content = store

	ev := f.mint(t, 1)

	assert.Equal(t, "https://ipfs.io/ipfs/QmMeta", ev.MetadataRef)
	require.Len(t, store.uploaded, 1)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(store.uploaded[0], &meta))
	assert.Equal(t, "Go Meetup", meta["title"])
	assert.Equal(t, "https://example.com/badge.png", meta["image"])
	assert.EqualValues(t, 1, meta["collectionSize"])
}

func TestMint_ContentStoreFailure(t *testing.T) {
	f := setup(t)
	f.handler.Content = &fakeStore{err: errors.New("gateway timeout")}
	params := url.Values{
		"walletAddress": {stub.RandomAddress()},
		"tokenCount":    {"1"},
		"url":           {"https://example.com/badge.png"},
		"title":         {"Go Meetup"},
	}

	rec := f.get(t, "/api/mint", params)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "101", decodeError(t, rec).Error)
	assert.Equal(t, 0, f.ledger.Submissions("NFTokenMint"))
}

func TestClaim_UnknownEvent(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/api/claim", url.Values{"walletAddress": {stub.RandomAddress()}, "id": {stub.RandomAddress()}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"404"}`, rec.Body.String())
}

func TestCheckClaims(t *testing.T) {
	f := setup(t)
	ev := f.mint(t, 1)
	wallet := stub.RandomAddress()

	rec := f.get(t, "/api/checkClaims", url.Values{"walletAddress": {wallet}, "id": {ev.CustodialAccount}})

	var res models.ClaimResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, models.ClaimAvailable, res.Status)
	assert.Equal(t, 1, res.Event.Remaining)
	assert.Equal(t, 0, f.ledger.Submissions("NFTokenCreateOffer"))
}

func TestAttendees_UnknownEvent(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/api/attendees", url.Values{"id": {"rUnknown"}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404", decodeError(t, rec).Error)
}

func TestVerifyOwnership_MalformedSignature(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/api/verifyOwnership", url.Values{
		"walletAddress": {stub.RandomAddress()},
		"id":            {"000800"},
		"signature":     {"garbage"},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "100", decodeError(t, rec).Error)
}

func TestGetNewAccount(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/api/getNewAccount", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Result models.Account `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Result.Address)
	assert.NotEmpty(t, body.Result.Secret)
}

func TestListEventsAndQR(t *testing.T) {
	f := setup(t)
	first := f.mint(t, 1)
	second := f.mint(t, 1)

	rec := f.get(t, "/api/events", nil)
	var body struct {
		Result []models.Event `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Result, 2)
	assert.Equal(t, first.ID, body.Result[0].ID)
	assert.Equal(t, second.ID, body.Result[1].ID)

	rec = f.get(t, "/api/claimQR", url.Values{"id": {first.CustodialAccount}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = f.get(t, "/api/claimQR", url.Values{"id": {"rUnknown"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/healthz", nil)

	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestStreamClaims(t *testing.T) {
	f := setup(t)
	ev := f.mint(t, 1)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/claims/stream?id="+ev.CustodialAccount, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}
	assert.Equal(t, "event: connected", next())
	next()
	next()

	wallet := stub.RandomAddress()
	rec := f.get(t, "/api/claim", url.Values{"walletAddress": {wallet}, "id": {ev.CustodialAccount}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "event: claim", next())
	data, ok := strings.CutPrefix(next(), "data: ")
	require.True(t, ok)
	var msg models.ClaimTransferredMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, wallet, msg.Wallet)
	assert.Equal(t, ev.Owner, msg.Owner)
}

func TestStreamClaims_OutlivesServerWriteTimeout(t *testing.T) {
	f := setup(t)
	ev := f.mint(t, 1)
	srv := httptest.NewUnstartedServer(f.router)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/claims/stream?id="+ev.CustodialAccount, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan(), "stream closed")
		return lines.Text()
	}
	assert.Equal(t, "event: connected", next())
	next()
	next()

	time.Sleep(3 * srv.Config.WriteTimeout)
	wallet := stub.RandomAddress()
	rec := f.get(t, "/api/claim", url.Values{"walletAddress": {wallet}, "id": {ev.CustodialAccount}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "event: claim", next())
	data, ok := strings.CutPrefix(next(), "data: ")
	require.True(t, ok)
	assert.Contains(t, data, wallet)
}

func TestStreamClaims_UnknownEvent(t *testing.T) {
	f := setup(t)

	rec := f.get(t, "/api/claims/stream", url.Values{"id": {"rUnknown"}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
