package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"splithaus/internal/splitwise"
)

func newTestClient(baseURL string) *splitwise.Client {
	return splitwise.NewClient(baseURL, baseURL, "client-id", "client-secret")
}

// stubLedger is a minimal in-process Splitwise double. Tests configure the
// expense list and per-endpoint hooks, then assert on the recorded requests.
type stubLedger struct {
	t *testing.T

	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string][]string

	// expenses served by get_expenses, paged by limit/offset.
	expenses []map[string]any
	// handle, when set, overrides the default behavior for a path prefix.
	handle func(w http.ResponseWriter, r *http.Request) bool

	srv *httptest.Server
}

func newStubLedger(t *testing.T) *stubLedger {
	s := &stubLedger{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubLedger) URL() string { return s.srv.URL }

func (s *stubLedger) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.t.Errorf("stub ledger failed to parse form: %v", err)
	}

	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.forms = append(s.forms, r.PostForm)
	handle := s.handle
	s.mu.Unlock()

	if handle != nil && handle(w, r) {
		return
	}

	switch {
	case r.URL.Path == "/get_expenses":
		s.serveExpenses(w, r)
	case r.URL.Path == "/create_expense":
		writeJSON(w, map[string]any{"expenses": []any{expenseJSON(9001, "created", "0.00", time.Now(), nil)}})
	case len(r.URL.Path) > len("/update_expense/") && r.URL.Path[:len("/update_expense/")] == "/update_expense/":
		writeJSON(w, map[string]any{"expenses": []any{expenseJSON(9001, "updated", "0.00", time.Now(), nil)}})
	case len(r.URL.Path) > len("/delete_expense/") && r.URL.Path[:len("/delete_expense/")] == "/delete_expense/":
		writeJSON(w, map[string]any{"success": true})
	case r.URL.Path == "/oauth/token":
		writeJSON(w, map[string]any{"access_token": "fresh-access", "token_type": "bearer"})
	default:
		s.t.Errorf("stub ledger got unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *stubLedger) serveExpenses(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 20)
	offset := intQuery(r, "offset", 0)

	s.mu.Lock()
	all := s.expenses
	s.mu.Unlock()

	var page []map[string]any
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}
	items := make([]any, 0, len(page))
	for _, e := range page {
		items = append(items, e)
	}
	writeJSON(w, map[string]any{"expenses": items})
}

func (s *stubLedger) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLedger) requestPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		paths = append(paths, r.URL.Path)
	}
	return paths
}

func (s *stubLedger) queryValues(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var values []string
	for _, r := range s.requests {
		if v := r.URL.Query().Get(key); v != "" || r.URL.Query().Has(key) {
			values = append(values, v)
		}
	}
	return values
}

func (s *stubLedger) lastForm() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// expenseJSON builds a get_expenses-shaped expense object.
func expenseJSON(id int64, description, cost string, updatedAt time.Time, users []map[string]any) map[string]any {
	userRows := make([]any, 0, len(users))
	for _, u := range users {
		userRows = append(userRows, u)
	}
	return map[string]any{
		"id":            id,
		"description":   description,
		"cost":          cost,
		"currency_code": "USD",
		"payment":       false,
		"created_at":    updatedAt.UTC().Format(time.RFC3339),
		"updated_at":    updatedAt.UTC().Format(time.RFC3339),
		"users":         userRows,
	}
}

func expenseUserJSON(remoteID int64, paid, owed string) map[string]any {
	return map[string]any{
		"user_id":    remoteID,
		"paid_share": paid,
		"owed_share": owed,
	}
}
