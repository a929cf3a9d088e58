package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeNode answers rippled JSON-RPC requests from per-method handlers.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]any) map[string]any
	calls    map[string]int
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{
		handlers: map[string]func(map[string]any) map[string]any{},
		calls:    map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) handle(method string, fn func(params map[string]any) map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string           `json:"method"`
		Params []map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := map[string]any{}
	if len(req.Params) > 0 {
		params = req.Params[0]
	}

	// Handlers run under the lock so tests can read captured state after
	// calling count.
	n.mu.Lock()
	n.calls[req.Method]++
	var result map[string]any
	if fn := n.handlers[req.Method]; fn != nil {
		result = fn(params)
	} else {
		result = map[string]any{"status": "error", "error": "unknownCmd"}
	}
	n.mu.Unlock()
	if _, ok := result["status"]; !ok {
		result["status"] = "success"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result})
}
