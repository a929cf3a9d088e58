package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify/internal/apperr"
	"attendify/internal/ledger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	vault, err := NewVault()
	require.NoError(t, err)
	return NewRegistry(vault)
}

func createEvent(t *testing.T, r *Registry, account string, supply int) int {
	t.Helper()
	id := r.ReserveEventID()
	_, err := r.CreateEvent(NewEvent{
		ID:               id,
		Owner:            "rOwner",
		MetadataRef:      "https://ipfs.io/ipfs/meta",
		Title:            "Gophercon",
		TotalSupply:      supply,
		CustodialAccount: account,
		Credential:       ledger.NewCredential(account, "s"+account),
	})
	require.NoError(t, err)
	return id
}

func assertSupplyConsistent(t *testing.T, r *Registry, id int) {
	t.Helper()
	ev, err := r.Event(id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Remaining, 0)
	assert.LessOrEqual(t, ev.Remaining, ev.TotalSupply)
	assert.Len(t, ev.Participants, ev.TotalSupply-ev.Remaining)
}

func TestCreateEvent(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 5)

	ev, err := r.FindEventByCustodialAccount("rCustody")
	require.NoError(t, err)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, 5, ev.Remaining)
	assert.Equal(t, 5, ev.TotalSupply)
	assert.Empty(t, ev.Participants)
	assert.NotNil(t, ev.Participants)

	cred, err := r.vault.CredentialFor(id)
	require.NoError(t, err)
	assert.Equal(t, "rCustody", cred.Address())
}

func TestCreateEvent_Validation(t *testing.T) {
	r := newTestRegistry(t)
	valid := func() NewEvent {
		return NewEvent{
			ID: r.ReserveEventID(), Owner: "rO", MetadataRef: "u", Title: "t", TotalSupply: 1,
			CustodialAccount: "rC", Credential: ledger.NewCredential("rC", "sC"),
		}
	}

	tests := []struct {
		name   string
		mutate func(*NewEvent)
		kind   apperr.Kind
	}{
		{"missing owner", func(n *NewEvent) { n.Owner = "" }, apperr.KindParameter},
		{"missing title", func(n *NewEvent) { n.Title = "" }, apperr.KindParameter},
		{"zero supply", func(n *NewEvent) { n.TotalSupply = 0 }, apperr.KindParameter},
		{"foreign credential", func(n *NewEvent) { n.Credential = ledger.NewCredential("rOther", "s") }, apperr.KindParameter},
		{"unreserved id", func(n *NewEvent) { n.ID = 999 }, apperr.KindApplication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ne := valid()
			tt.mutate(&ne)
			_, err := r.CreateEvent(ne)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}
	assert.Empty(t, r.Events())
}

func TestCreateEvent_DuplicateIDAndAccount(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 1)

	_, err := r.CreateEvent(NewEvent{
		ID: id, Owner: "rO", MetadataRef: "u", Title: "t", TotalSupply: 1,
		CustodialAccount: "rOther", Credential: ledger.NewCredential("rOther", "s"),
	})
	assert.True(t, apperr.Is(err, apperr.KindApplication))

	_, err = r.CreateEvent(NewEvent{
		ID: r.ReserveEventID(), Owner: "rO", MetadataRef: "u", Title: "t", TotalSupply: 1,
		CustodialAccount: "rCustody", Credential: ledger.NewCredential("rCustody", "s"),
	})
	assert.True(t, apperr.Is(err, apperr.KindApplication))
}

func TestReserveEventID_Sequential(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, 1, r.ReserveEventID())
	assert.Equal(t, 2, r.ReserveEventID())
	assert.Equal(t, 3, r.ReserveEventID())
}

func TestRecordClaim_IdempotentPerWallet(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 3)

	outcome, ev, err := r.RecordClaim(id, "rW")
	require.NoError(t, err)
	assert.Equal(t, ClaimRecorded, outcome)
	assert.Equal(t, 2, ev.Remaining)

	outcome, ev, err = r.RecordClaim(id, "rW")
	require.NoError(t, err)
	assert.Equal(t, AlreadyClaimed, outcome)
	assert.Equal(t, 2, ev.Remaining)
	assert.Equal(t, []string{"rW"}, ev.Participants)
	assertSupplyConsistent(t, r, id)
}

func TestRecordClaim_Exhausted(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 1)

	_, _, err := r.RecordClaim(id, "rA")
	require.NoError(t, err)

	outcome, ev, err := r.RecordClaim(id, "rB")
	require.NoError(t, err)
	assert.Equal(t, Exhausted, outcome)
	assert.Equal(t, 0, ev.Remaining)
	assert.Equal(t, []string{"rA"}, ev.Participants)
}

func TestRecordClaim_UnknownEvent(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 1)

	_, _, err := r.RecordClaim(id+10, "rA")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	ev, _ := r.Event(id)
	assert.Equal(t, 1, ev.Remaining)
}

func TestRecordClaim_ConcurrentClaimsNeverOversell(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet := fmt.Sprintf("rWallet%d", i%25)
			outcome, _, err := r.RecordClaim(id, wallet)
			assert.NoError(t, err)
			if outcome == ClaimRecorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	ev, _ := r.Event(id)
	assert.Equal(t, 10, recorded)
	assert.Equal(t, 0, ev.Remaining)
	seen := map[string]bool{}
	for _, p := range ev.Participants {
		assert.False(t, seen[p], "duplicate participant %s", p)
		seen[p] = true
	}
	assertSupplyConsistent(t, r, id)
}

func TestReleaseClaim(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 2)
	_, _, _ = r.RecordClaim(id, "rA")
	_, _, _ = r.RecordClaim(id, "rB")

	ev, err := r.ReleaseClaim(id, "rA")
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Remaining)
	assert.Equal(t, []string{"rB"}, ev.Participants)

	ev, err = r.ReleaseClaim(id, "rA")
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Remaining)
	assertSupplyConsistent(t, r, id)
}

func TestClaimStatus_DoesNotMutate(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 1)

	outcome, _, err := r.ClaimStatus(id, "rA")
	require.NoError(t, err)
	assert.Equal(t, Available, outcome)

	_, _, _ = r.RecordClaim(id, "rA")
	outcome, _, _ = r.ClaimStatus(id, "rA")
	assert.Equal(t, AlreadyClaimed, outcome)
	outcome, _, _ = r.ClaimStatus(id, "rB")
	assert.Equal(t, Exhausted, outcome)

	ev, _ := r.Event(id)
	assert.Equal(t, []string{"rA"}, ev.Participants)
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := newTestRegistry(t)
	id := createEvent(t, r, "rCustody", 2)
	_, ev, _ := r.RecordClaim(id, "rA")

	ev.Participants[0] = "rMallory"

	participants, err := r.Participants("rCustody")
	require.NoError(t, err)
	assert.Equal(t, []string{"rA"}, participants)
}

func TestEvents_CreationOrder(t *testing.T) {
	r := newTestRegistry(t)
	first := createEvent(t, r, "rOne", 1)
	second := createEvent(t, r, "rTwo", 1)

	all := r.Events()
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, second, all[1].ID)
}
