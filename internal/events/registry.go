// Package events keeps the in-memory Event Registry: the public record of
// every minted event and its per-wallet claim ledger.
package events

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"attendify/internal/apperr"
	"attendify/internal/ledger"
	"attendify/internal/models"
)

type ClaimOutcome int

const (
	ClaimRecorded ClaimOutcome = iota
	AlreadyClaimed
	Exhausted
	// Available is returned by ClaimStatus when RecordClaim would succeed.
	Available
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimRecorded:
		return "recorded"
	case AlreadyClaimed:
		return "already-claimed"
	case Exhausted:
		return "exhausted"
	case Available:
		return "available"
	}
	return fmt.Sprintf("ClaimOutcome(%d)", int(o))
}

type NewEvent struct {
	ID               int
	Owner            string
	MetadataRef      string
	Title            string
	Description      string
	Location         string
	TotalSupply      int
	CustodialAccount string
	Credential       ledger.Credential
}

type entry struct {
	mu    sync.Mutex
	event models.Event
}

func (e *entry) snapshot() models.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyEvent(e.event)
}

// Registry is safe for concurrent use. Index maps sit behind an RWMutex;
// claim mutation of an event is serialized by that event's own mutex.
type Registry struct {
	mu        sync.RWMutex
	lastID    int
	reserved  map[int]struct{}
	events    map[int]*entry
	byAccount map[string]int
	order     []int

	vault *Vault
	now   func() time.Time
}

func NewRegistry(vault *Vault) *Registry {
	return &Registry{
		reserved:  make(map[int]struct{}),
		events:    make(map[int]*entry),
		byAccount: make(map[string]int),
		vault:     vault,
		now:       time.Now,
	}
}

// ReserveEventID hands out the next event id. Ids of mints that fail after
// reservation are never reused.
func (r *Registry) ReserveEventID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	r.reserved[r.lastID] = struct{}{}
	return r.lastID
}

func (r *Registry) CreateEvent(ne NewEvent) (models.Event, error) {
	const op = "create event"

	switch {
	case ne.Owner == "":
		return models.Event{}, apperr.Parameter(op, "owner", nil)
	case ne.MetadataRef == "":
		return models.Event{}, apperr.Parameter(op, "metadataRef", nil)
	case ne.Title == "":
		return models.Event{}, apperr.Parameter(op, "title", nil)
	case ne.TotalSupply <= 0:
		return models.Event{}, apperr.Parameter(op, "totalSupply", fmt.Errorf("must be positive, got %d", ne.TotalSupply))
	case ne.CustodialAccount == "":
		return models.Event{}, apperr.Parameter(op, "custodialAccount", nil)
	case ne.Credential.IsZero():
		return models.Event{}, apperr.Parameter(op, "credential", nil)
	case ne.Credential.Address() != ne.CustodialAccount:
		return models.Event{}, apperr.Parameter(op, "credential", fmt.Errorf("credential does not belong to %s", ne.CustodialAccount))
	}
	if r.vault == nil {
		return models.Event{}, apperr.Application(op, errNoVault)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reserved[ne.ID]; !ok {
		return models.Event{}, apperr.Application(op, fmt.Errorf("event id %d was not reserved", ne.ID))
	}
	if _, ok := r.events[ne.ID]; ok {
		return models.Event{}, apperr.Application(op, fmt.Errorf("event id %d already registered", ne.ID))
	}
	if other, ok := r.byAccount[ne.CustodialAccount]; ok {
		return models.Event{}, apperr.Application(op, fmt.Errorf("account %s already holds event %d", ne.CustodialAccount, other))
	}

	if err := r.vault.Seal(ne.ID, ne.Credential); err != nil {
		return models.Event{}, err
	}

	ev := models.Event{
		ID:               ne.ID,
		CustodialAccount: ne.CustodialAccount,
		Owner:            ne.Owner,
		MetadataRef:      ne.MetadataRef,
		Title:            ne.Title,
		Description:      ne.Description,
		Location:         ne.Location,
		TotalSupply:      ne.TotalSupply,
		Remaining:        ne.TotalSupply,
		Participants:     []string{},
		CreatedAt:        r.now().UTC(),
	}
	delete(r.reserved, ne.ID)
	r.events[ne.ID] = &entry{event: ev}
	r.byAccount[ne.CustodialAccount] = ne.ID
	r.order = append(r.order, ne.ID)

	return copyEvent(ev), nil
}

func (r *Registry) lookup(id int) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	return e, ok
}

func (r *Registry) Event(id int) (models.Event, error) {
	e, ok := r.lookup(id)
	if !ok {
		return models.Event{}, apperr.NotFound("event", fmt.Errorf("event %d does not exist", id))
	}
	return e.snapshot(), nil
}

func (r *Registry) FindEventByCustodialAccount(account string) (models.Event, error) {
	r.mu.RLock()
	id, ok := r.byAccount[account]
	e := r.events[id]
	r.mu.RUnlock()
	if !ok {
		return models.Event{}, apperr.NotFound("find event", fmt.Errorf("no event for account %s", account))
	}
	return e.snapshot(), nil
}

// Events returns snapshots of every event in creation order.
func (r *Registry) Events() []models.Event {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.events[id])
	}
	r.mu.RUnlock()

	out := make([]models.Event, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

// RecordClaim reserves one token of the event for wallet. The membership
// check, the supply check and the mutation happen under the event's lock.
func (r *Registry) RecordClaim(eventID int, wallet string) (ClaimOutcome, models.Event, error) {
	const op = "record claim"
	if wallet == "" {
		return 0, models.Event{}, apperr.Parameter(op, "wallet", nil)
	}
	e, ok := r.lookup(eventID)
	if !ok {
		return 0, models.Event{}, apperr.NotFound(op, fmt.Errorf("event %d does not exist", eventID))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case slices.Contains(e.event.Participants, wallet):
		return AlreadyClaimed, copyEvent(e.event), nil
	case e.event.Remaining <= 0:
		return Exhausted, copyEvent(e.event), nil
	}
	e.event.Remaining--
	e.event.Participants = append(e.event.Participants, wallet)
	return ClaimRecorded, copyEvent(e.event), nil
}

// ReleaseClaim undoes a RecordClaim whose transfer could not be completed.
// Releasing a wallet that holds no claim is a no-op.
func (r *Registry) ReleaseClaim(eventID int, wallet string) (models.Event, error) {
	e, ok := r.lookup(eventID)
	if !ok {
		return models.Event{}, apperr.NotFound("release claim", fmt.Errorf("event %d does not exist", eventID))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := slices.Index(e.event.Participants, wallet)
	if idx < 0 {
		return copyEvent(e.event), nil
	}
	e.event.Participants = slices.Delete(e.event.Participants, idx, idx+1)
	e.event.Remaining++
	return copyEvent(e.event), nil
}

// ClaimStatus reports what RecordClaim would do, without mutating.
func (r *Registry) ClaimStatus(eventID int, wallet string) (ClaimOutcome, models.Event, error) {
	e, ok := r.lookup(eventID)
	if !ok {
		return 0, models.Event{}, apperr.NotFound("claim status", fmt.Errorf("event %d does not exist", eventID))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case slices.Contains(e.event.Participants, wallet):
		return AlreadyClaimed, copyEvent(e.event), nil
	case e.event.Remaining <= 0:
		return Exhausted, copyEvent(e.event), nil
	}
	return Available, copyEvent(e.event), nil
}

// Participants lists, in claim order, the wallets that claimed from the
// event held by account.
func (r *Registry) Participants(account string) ([]string, error) {
	ev, err := r.FindEventByCustodialAccount(account)
	if err != nil {
		return nil, err
	}
	return ev.Participants, nil
}

func copyEvent(ev models.Event) models.Event {
	ev.Participants = slices.Clone(ev.Participants)
	if ev.Participants == nil {
		ev.Participants = []string{}
	}
	return ev
}
