// Package sse fans claim events out to organizers following an event live.
package sse

import (
	"context"
	"slices"
	"sync"

	"attendify/internal/models"
)

const clientBuffer = 10

// ClaimEmitter keeps subscriber channels per custodial account and per
// organizer wallet.
type ClaimEmitter struct {
	mu           sync.RWMutex
	eventClients map[string][]chan models.ClaimTransferredMessage
	ownerClients map[string][]chan models.ClaimTransferredMessage
}

func NewClaimEmitter() *ClaimEmitter {
	return &ClaimEmitter{
		eventClients: make(map[string][]chan models.ClaimTransferredMessage),
		ownerClients: make(map[string][]chan models.ClaimTransferredMessage),
	}
}

// SubscribeToEvent streams claims on the event held by account until ctx is
// done, then closes the channel.
func (e *ClaimEmitter) SubscribeToEvent(ctx context.Context, account string) <-chan models.ClaimTransferredMessage {
	return e.subscribe(ctx, e.eventClients, account)
}

// SubscribeToOwner streams claims on every event organized by owner.
func (e *ClaimEmitter) SubscribeToOwner(ctx context.Context, owner string) <-chan models.ClaimTransferredMessage {
	return e.subscribe(ctx, e.ownerClients, owner)
}

func (e *ClaimEmitter) subscribe(ctx context.Context, clients map[string][]chan models.ClaimTransferredMessage, key string) <-chan models.ClaimTransferredMessage {
	ch := make(chan models.ClaimTransferredMessage, clientBuffer)

	e.mu.Lock()
	clients[key] = append(clients[key], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(clients, key, ch)
	}()
	return ch
}

func (e *ClaimEmitter) remove(clients map[string][]chan models.ClaimTransferredMessage, key string, ch chan models.ClaimTransferredMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i := slices.Index(clients[key], ch); i >= 0 {
		clients[key] = slices.Delete(clients[key], i, i+1)
		close(ch)
	}
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}

// PublishClaimTransferred broadcasts msg. Slow clients whose buffer is full
// miss the message rather than block the claim path.
func (e *ClaimEmitter) PublishClaimTransferred(_ context.Context, msg models.ClaimTransferredMessage) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.eventClients[msg.CustodialAccount] {
		select {
		case ch <- msg:
		default:
		}
	}
	for _, ch := range e.ownerClients[msg.Owner] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (e *ClaimEmitter) ClientCount(account string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.eventClients[account])
}
