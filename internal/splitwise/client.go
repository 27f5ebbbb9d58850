// Package splitwise is the HTTP client for the remote expense ledger.
// It owns query/body encoding, response decoding, and the uniform
// classification of provider failures; everything above it works with
// typed values and application errors only.
package splitwise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "splithaus/internal/errors"
)

const requestTimeout = 30 * time.Second

// Client talks to the Splitwise REST API and OAuth endpoints.
type Client struct {
	baseURL      string
	apiBase      string
	clientID     string
	clientSecret string
	httpc        *http.Client
}

// NewClient creates a Client. baseURL hosts the OAuth endpoints, apiBase is
// the versioned REST root (".../api/v3.0").
func NewClient(baseURL, apiBase, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiBase:      strings.TrimRight(apiBase, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc:        &http.Client{Timeout: requestTimeout},
	}
}

// do performs one authenticated API call. Non-2xx statuses and error
// envelopes inside 2xx bodies are both classified as failures. When out is
// non-nil the response body is decoded into it on success.
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body map[string]any, out any) error {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	contentType := ""
	if body != nil && method != http.MethodGet {
		form := url.Values{}
		encodeForm(form, "", body)
		reqBody = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}

	// Decode generically first to sniff the error envelope; a failed decode
	// leaves data nil, which is fine for the checks below.
	var data map[string]any
	_ = json.Unmarshal(raw, &data)

	statusOK := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !statusOK || hasErrorEnvelope(data) {
		message := firstErrorMessage(data)
		if message == "" {
			message = fmt.Sprintf("Splitwise request failed (%d)", resp.StatusCode)
		}
		return classify(resp.StatusCode, message)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.Wrap(apperrors.ErrLedgerFailed, err)
		}
	}
	return nil
}

// GetCurrentUser fetches the profile behind the access token.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*RemoteUser, error) {
	var resp struct {
		User *RemoteUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_current_user", token, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.User.ID == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerFailed, "Splitwise returned no user profile")
	}
	return resp.User, nil
}

// GetGroups lists the groups the token's user belongs to.
func (c *Client) GetGroups(ctx context.Context, token string) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_groups", token, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// ListExpensesOptions are the server-side filters for GetExpenses.
// UpdatedAfter is sent as unix seconds when set.
type ListExpensesOptions struct {
	GroupID      string
	Limit        int
	Offset       int
	UpdatedAfter *time.Time
}

// GetExpenses fetches one page of a group's expenses.
func (c *Client) GetExpenses(ctx context.Context, token string, opts ListExpensesOptions) ([]Expense, error) {
	query := url.Values{}
	if opts.GroupID != "" {
		query.Set("group_id", opts.GroupID)
	}
	if opts.Limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}
	if opts.UpdatedAfter != nil {
		query.Set("updated_after", fmt.Sprintf("%d", opts.UpdatedAfter.Unix()))
	}

	var resp struct {
		Expenses []Expense `json:"expenses"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_expenses", token, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Expenses, nil
}

// CreateExpense creates a remote expense and returns the created record.
func (c *Client) CreateExpense(ctx context.Context, token string, payload *ExpensePayload) (*Expense, error) {
	var resp struct {
		Expenses []Expense `json:"expenses"`
	}
	if err := c.do(ctx, http.MethodPost, "/create_expense", token, nil, payload.form(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Expenses) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerFailed, "Splitwise returned no created expense")
	}
	return &resp.Expenses[0], nil
}

// UpdateExpense updates an existing remote expense.
func (c *Client) UpdateExpense(ctx context.Context, token, expenseID string, payload *ExpensePayload) (*Expense, error) {
	var resp struct {
		Expenses []Expense `json:"expenses"`
	}
	if err := c.do(ctx, http.MethodPost, "/update_expense/"+url.PathEscape(expenseID), token, nil, payload.form(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Expenses) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerFailed, "Splitwise returned no updated expense")
	}
	return &resp.Expenses[0], nil
}

// DeleteExpense deletes a remote expense.
func (c *Client) DeleteExpense(ctx context.Context, token, expenseID string) error {
	return c.do(ctx, http.MethodPost, "/delete_expense/"+url.PathEscape(expenseID), token, nil, map[string]any{}, nil)
}

// ExchangeCode exchanges an OAuth authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {redirectURI},
	})
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if c.clientID == "" || c.clientSecret == "" || refreshToken == "" {
		return nil, apperrors.ErrLedgerRefreshFailed
	}
	resp, err := c.tokenGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLedgerRefreshFailed, err)
	}
	return resp, nil
}

// AuthorizeURL builds the OAuth authorization redirect for the connect flow.
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	params := url.Values{
		"client_id":     {c.clientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"state":         {state},
	}
	return c.baseURL + "/oauth/authorize?" + params.Encode()
}

func (c *Client) tokenGrant(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLedgerFailed, err)
	}

	var data map[string]any
	_ = json.Unmarshal(raw, &data)

	var tokens TokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil || resp.StatusCode >= 300 || tokens.AccessToken == "" {
		message := firstErrorMessage(data)
		if message == "" {
			message = fmt.Sprintf("OAuth token request failed (%d)", resp.StatusCode)
		}
		return nil, classify(resp.StatusCode, message)
	}
	return &tokens, nil
}
