package attendify_api

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attendify/internal/apperr"
	"attendify/internal/content"
	"attendify/internal/ledger"
	"attendify/internal/ledger/address"
	"attendify/internal/logger"
	"attendify/internal/mint"
	"attendify/internal/models"
	"attendify/internal/qr"
	"attendify/internal/sse"
)

type Minter interface {
	Mint(ctx context.Context, req mint.Request) (models.Event, error)
}

type Claimer interface {
	AttemptClaim(ctx context.Context, wallet, account string) (*models.ClaimResult, error)
	CheckClaim(ctx context.Context, wallet, account string) (*models.ClaimResult, error)
}

type OwnershipVerifier interface {
	VerifyOwnership(ctx context.Context, wallet, tokenID, signature string) (bool, error)
}

// AccountGateway is the slice of the ledger the handler reaches directly.
type AccountGateway interface {
	FundAccount(ctx context.Context) (*models.Account, error)
	AccountNFTs(ctx context.Context, account string) iter.Seq2[[]models.NFToken, error]
}

// EventCatalog is a read-only view of the registry.
type EventCatalog interface {
	Events() []models.Event
	FindEventByCustodialAccount(account string) (models.Event, error)
	Participants(account string) ([]string, error)
}

type Handler struct {
	Minter    Minter
	Claims    Claimer
	Ownership OwnershipVerifier
	Ledger    AccountGateway
	Events    EventCatalog
	Content   content.Store // nil when metadata upload is disabled
	QR        *qr.Generator
	Stream    *sse.ClaimEmitter // nil disables /api/claims/stream
	Logger    *logger.Logger

	// MintWriteTimeout replaces the server write timeout on /api/mint.
	MintWriteTimeout time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/mint", h.Mint)
		r.Get("/claim", h.Claim)
		r.Get("/checkClaims", h.CheckClaims)
		r.Get("/getNewAccount", h.GetNewAccount)
		r.Get("/attendees", h.Attendees)
		r.Get("/verifyOwnership", h.VerifyOwnership)
		r.Get("/getMyNfts", h.GetMyNfts)
		r.Get("/events", h.ListEvents)
		r.Get("/claimQR", h.ClaimQR)
		if h.Stream != nil {
			r.Get("/claims/stream", h.StreamClaims)
		}
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Mint handles GET /api/mint?walletAddress=&tokenCount=&url=&title=&desc=&loc=
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	const op = "mint"
	q := r.URL.Query()
	owner := q.Get("walletAddress")
	imageURL := q.Get("url")
	title := q.Get("title")
	h.Logger.Info("API", fmt.Sprintf("Mint: owner=%s title=%q count=%s", owner, title, q.Get("tokenCount")))

	// Step 1: Check parameters before anything is uploaded or submitted
	count, err := strconv.Atoi(q.Get("tokenCount"))
	switch {
	case owner == "":
		err = apperr.Parameter(op, "walletAddress", nil)
	case !address.IsValid(owner):
		err = apperr.Parameter(op, "walletAddress", fmt.Errorf("%q is not a classic address", owner))
	case err != nil:
		err = apperr.Parameter(op, "tokenCount", err)
	case imageURL == "":
		err = apperr.Parameter(op, "url", nil)
	case title == "":
		err = apperr.Parameter(op, "title", nil)
	}
	if err != nil {
		h.fail(w, "Mint", err)
		return
	}

	req := mint.Request{
		Owner:       owner,
		Count:       count,
		MetadataRef: imageURL,
		Title:       title,
		Description: q.Get("desc"),
		Location:    q.Get("loc"),
	}

	// Step 2: Publish the metadata document when a content store is configured
	if h.Content != nil && count > 0 {
		ref, err := content.UploadMetadata(r.Context(), h.Content, content.Metadata{
			Title:          title,
			Description:    req.Description,
			Location:       req.Location,
			Image:          imageURL,
			CollectionSize: count,
			Date:           time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			h.fail(w, "Mint", err)
			return
		}
		req.MetadataRef = ref
	}

	// Step 3: Mint and register. Submissions run to completion even when the
	// client goes away.
	if h.MintWriteTimeout > 0 {
		h.setWriteDeadline(w, time.Now().Add(h.MintWriteTimeout))
	}
	ev, err := h.Minter.Mint(context.WithoutCancel(r.Context()), req)
	if err != nil {
		h.fail(w, "Mint", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Mint: event %d minted into %s", ev.ID, ev.CustodialAccount))
	writeResult(w, ev)
}

// Claim handles GET /api/claim?walletAddress=&id=
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	wallet, account := r.URL.Query().Get("walletAddress"), r.URL.Query().Get("id")
	h.Logger.Info("API", fmt.Sprintf("Claim: wallet=%s account=%s", wallet, account))

	res, err := h.Claims.AttemptClaim(context.WithoutCancel(r.Context()), wallet, account)
	if err != nil {
		h.fail(w, "Claim", err)
		return
	}
	h.writeClaim(w, res)
}

// CheckClaims handles GET /api/checkClaims?walletAddress=&id=
func (h *Handler) CheckClaims(w http.ResponseWriter, r *http.Request) {
	wallet, account := r.URL.Query().Get("walletAddress"), r.URL.Query().Get("id")
	h.Logger.Debug("API", fmt.Sprintf("CheckClaims: wallet=%s account=%s", wallet, account))

	res, err := h.Claims.CheckClaim(r.Context(), wallet, account)
	if err != nil {
		h.fail(w, "CheckClaims", err)
		return
	}
	h.writeClaim(w, res)
}

// setWriteDeadline overrides the server-wide write timeout for one response.
func (h *Handler) setWriteDeadline(w http.ResponseWriter, deadline time.Time) {
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil {
		h.Logger.Debug("API", fmt.Sprintf("write deadline not adjustable: %v", err))
	}
}

func (h *Handler) writeClaim(w http.ResponseWriter, res *models.ClaimResult) {
	status := http.StatusOK
	if res.Status == models.ClaimNotFound {
		status = http.StatusNotFound
	}
	if err := writeJSON(w, status, res); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode claim response: %v", err))
	}
}

// GetNewAccount handles GET /api/getNewAccount
func (h *Handler) GetNewAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Ledger.FundAccount(r.Context())
	if err != nil {
		h.fail(w, "GetNewAccount", apperr.Ledger("getNewAccount", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("GetNewAccount: funded %s", acct.Address))
	writeResult(w, acct)
}

// Attendees handles GET /api/attendees?id=
func (h *Handler) Attendees(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("id")
	if account == "" {
		h.fail(w, "Attendees", apperr.Parameter("attendees", "id", nil))
		return
	}

	wallets, err := h.Events.Participants(account)
	if err != nil {
		h.fail(w, "Attendees", err)
		return
	}
	writeResult(w, wallets)
}

// VerifyOwnership handles GET /api/verifyOwnership?walletAddress=&id=&signature=
func (h *Handler) VerifyOwnership(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet, tokenID, sig := q.Get("walletAddress"), q.Get("id"), q.Get("signature")

	switch {
	case wallet == "":
		h.fail(w, "VerifyOwnership", apperr.Parameter("verifyOwnership", "walletAddress", nil))
		return
	case tokenID == "":
		h.fail(w, "VerifyOwnership", apperr.Parameter("verifyOwnership", "id", nil))
		return
	case sig == "":
		h.fail(w, "VerifyOwnership", apperr.Parameter("verifyOwnership", "signature", nil))
		return
	}

	owns, err := h.Ownership.VerifyOwnership(r.Context(), wallet, tokenID, sig)
	if err != nil {
		h.fail(w, "VerifyOwnership", err)
		return
	}
	writeResult(w, owns)
}

// GetMyNfts handles GET /api/getMyNfts?walletAddress=
func (h *Handler) GetMyNfts(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("walletAddress")
	if !address.IsValid(wallet) {
		h.fail(w, "GetMyNfts", apperr.Parameter("getMyNfts", "walletAddress", nil))
		return
	}

	nfts, err := ledger.Collect(h.Ledger.AccountNFTs(r.Context(), wallet))
	if err != nil {
		h.fail(w, "GetMyNfts", apperr.Ledger("getMyNfts", err))
		return
	}
	if nfts == nil {
		nfts = []models.NFToken{}
	}
	writeResult(w, nfts)
}

// ListEvents handles GET /api/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.Events.Events())
}

// ClaimQR handles GET /api/claimQR?id= and answers with a PNG.
func (h *Handler) ClaimQR(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("id")
	if _, err := h.Events.FindEventByCustodialAccount(account); err != nil {
		h.fail(w, "ClaimQR", err)
		return
	}

	png, err := h.QR.ClaimQR(account)
	if err != nil {
		h.fail(w, "ClaimQR", apperr.Application("claimQR", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindParameter) {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", action, err))
	} else {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", action, err))
	}
	if werr := writeError(w, err); werr != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to encode error response: %v", action, werr))
	}
}
