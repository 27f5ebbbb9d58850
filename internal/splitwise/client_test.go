package splitwise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "splithaus/internal/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(srv.URL, srv.URL+"/api/v3.0", "client-id", "client-secret")
	return client, srv
}

func TestGetExpenses(t *testing.T) {
	t.Run("sends_filters_and_decodes", func(t *testing.T) {
		var gotQuery map[string]string
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v3.0/get_expenses" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q", got)
			}
			q := r.URL.Query()
			gotQuery = map[string]string{
				"group_id":      q.Get("group_id"),
				"limit":         q.Get("limit"),
				"offset":        q.Get("offset"),
				"updated_after": q.Get("updated_after"),
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"expenses": [{"id": 9001, "description": "Rent", "cost": "1200.00", "updated_at": "2024-03-01T12:00:00Z", "users": []}]}`))
		}))
		defer srv.Close()

		after := time.Unix(1709000000, 0)
		expenses, err := client.GetExpenses(context.Background(), "tok", ListExpensesOptions{
			GroupID:      "55",
			Limit:        100,
			Offset:       100,
			UpdatedAfter: &after,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gotQuery["group_id"] != "55" || gotQuery["limit"] != "100" || gotQuery["offset"] != "100" {
			t.Errorf("unexpected query: %v", gotQuery)
		}
		if gotQuery["updated_after"] != "1709000000" {
			t.Errorf("updated_after = %q, want unix seconds", gotQuery["updated_after"])
		}
		if len(expenses) != 1 || expenses[0].RemoteID() != "9001" {
			t.Fatalf("unexpected expenses: %+v", expenses)
		}
		if expenses[0].UpdatedAt.IsZero() {
			t.Error("updated_at should decode")
		}
	})

	t.Run("error_envelope_in_200", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"errors": ["Invalid token"]}`))
		}))
		defer srv.Close()

		_, err := client.GetExpenses(context.Background(), "tok", ListExpensesOptions{GroupID: "55"})
		if !IsUnauthenticated(err) {
			t.Fatalf("expected unauthenticated classification, got %v", err)
		}
	})
}

func TestCreateExpense(t *testing.T) {
	t.Run("form_encodes_nested_users", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("Content-Type = %q", ct)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.PostForm.Get("users[0][owed_share]"); got != "3.34" {
				t.Errorf("users[0][owed_share] = %q, want 3.34", got)
			}
			if got := r.PostForm.Get("cost"); got != "10.00" {
				t.Errorf("cost = %q, want 10.00", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"expenses": [{"id": 777, "cost": "10.00", "updated_at": "2024-03-01T12:00:00Z"}], "errors": {}}`))
		}))
		defer srv.Close()

		created, err := client.CreateExpense(context.Background(), "tok", &ExpensePayload{
			Cost:         "10.00",
			Description:  "Dinner",
			CurrencyCode: "USD",
			GroupID:      "55",
			Users: []ExpenseShare{
				{UserID: "1", PaidShare: "10.00", OwedShare: "3.34"},
				{UserID: "2", PaidShare: "0.00", OwedShare: "3.33"},
				{UserID: "3", PaidShare: "0.00", OwedShare: "3.33"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created.RemoteID() != "777" {
			t.Errorf("created id = %s, want 777", created.RemoteID())
		}
	})

	t.Run("provider_validation_failure", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"expenses": [], "errors": {"base": ["The total of everyone's owed shares must equal the total cost"]}}`))
		}))
		defer srv.Close()

		_, err := client.CreateExpense(context.Background(), "tok", &ExpensePayload{Cost: "10.00"})
		if err == nil {
			t.Fatal("expected error")
		}
		if !apperrors.HasCode(err, apperrors.ErrLedgerFailed.Code) {
			t.Errorf("unexpected classification: %v", err)
		}
	})
}

func TestDeleteExpense(t *testing.T) {
	t.Run("success_flag_false_is_failure", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success": false, "errors": []}`))
		}))
		defer srv.Close()

		err := client.DeleteExpense(context.Background(), "tok", "777")
		if err == nil {
			t.Fatal("a success:false body must be treated as a failure even on HTTP 200")
		}
	})

	t.Run("success", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v3.0/delete_expense/777" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success": true}`))
		}))
		defer srv.Close()

		if err := client.DeleteExpense(context.Background(), "tok", "777"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRefreshToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth/token" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
				t.Errorf("grant_type = %q", got)
			}
			if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
				t.Errorf("refresh_token = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh", "token_type": "bearer", "expires_in": 3600}`))
		}))
		defer srv.Close()

		tokens, err := client.RefreshToken(context.Background(), "old-refresh")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tokens.AccessToken != "new-access" || tokens.RefreshToken != "new-refresh" {
			t.Errorf("unexpected tokens: %+v", tokens)
		}
		if at := tokens.ExpiresAt(time.Unix(0, 0)); at == nil || at.Unix() != 3600 {
			t.Errorf("ExpiresAt = %v, want 3600s after now", at)
		}
	})

	t.Run("missing_refresh_token", func(t *testing.T) {
		client := NewClient("http://localhost", "http://localhost/api/v3.0", "id", "secret")
		_, err := client.RefreshToken(context.Background(), "")
		if !apperrors.HasCode(err, apperrors.ErrLedgerRefreshFailed.Code) {
			t.Fatalf("expected refresh failure, got %v", err)
		}
	})

	t.Run("provider_rejects_grant", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "refresh token revoked"}`))
		}))
		defer srv.Close()

		_, err := client.RefreshToken(context.Background(), "revoked")
		if !apperrors.HasCode(err, apperrors.ErrLedgerRefreshFailed.Code) {
			t.Fatalf("expected refresh failure, got %v", err)
		}
	})
}
