package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"splithaus/internal/config"
	apperrors "splithaus/internal/errors"
	"splithaus/internal/middleware"
	"splithaus/internal/services"
	"splithaus/internal/splitwise"
)

// SplitwiseHandler handles the OAuth connect flow and read-only passthrough
// endpoints against the remote ledger.
type SplitwiseHandler struct {
	userService  services.UserServicer
	tokenService services.TokenServicer
	client       *splitwise.Client
}

// NewSplitwiseHandler creates a new SplitwiseHandler
func NewSplitwiseHandler(userService services.UserServicer, tokenService services.TokenServicer, client *splitwise.Client) *SplitwiseHandler {
	return &SplitwiseHandler{
		userService:  userService,
		tokenService: tokenService,
		client:       client,
	}
}

// Connect starts the OAuth flow: it returns the provider authorization URL
// with the caller's identity folded into the signed state.
func (h *SplitwiseHandler) Connect(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	cfg := config.Get()
	if !cfg.SplitwiseConfigured() {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrLedgerNotConnected, "Splitwise OAuth is not configured on this server"))
		return
	}

	state, err := middleware.GenerateStateToken(userID)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorize_url": h.client.AuthorizeURL(cfg.SplitwiseRedirectURI, state),
	})
}

// Callback completes the OAuth flow. The provider redirects the browser
// here, so failures redirect back to the frontend instead of returning JSON.
func (h *SplitwiseHandler) Callback(c *gin.Context) {
	cfg := config.Get()

	if errParam := c.Query("error"); errParam != "" {
		h.redirectWithError(c, errParam)
		return
	}

	userID := ""
	if state := c.Query("state"); state != "" {
		id, err := middleware.ValidateStateToken(state)
		if err != nil {
			h.redirectWithError(c, "invalid_state")
			return
		}
		userID = id
	}

	user, err := h.userService.ConnectWithCode(c.Request.Context(), userID, c.Query("code"), cfg.SplitwiseRedirectURI)
	if err != nil {
		h.redirectWithError(c, "connect_failed")
		return
	}

	token, err := middleware.GenerateAccessToken(user)
	if err != nil {
		h.redirectWithError(c, "connect_failed")
		return
	}

	c.Redirect(http.StatusFound, cfg.FrontendURL+"/auth/callback?token="+url.QueryEscape(token))
}

func (h *SplitwiseHandler) redirectWithError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, config.Get().FrontendURL+"/auth/callback?error="+url.QueryEscape(code))
}

// Status reports whether the caller has a Splitwise credential
func (h *SplitwiseHandler) Status(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	connected, remoteID, err := h.userService.ConnectionStatus(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp := gin.H{"connected": connected}
	if remoteID != "" {
		resp["splitwise_id"] = remoteID
	}
	c.JSON(http.StatusOK, resp)
}

// CurrentUser proxies the provider's profile for the caller's credential
func (h *SplitwiseHandler) CurrentUser(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var profile *splitwise.RemoteUser
	err = h.tokenService.WithAccessToken(c.Request.Context(), userID, func(token string) error {
		var callErr error
		profile, callErr = h.client.GetCurrentUser(c.Request.Context(), token)
		return callErr
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// Groups proxies the caller's Splitwise groups
func (h *SplitwiseHandler) Groups(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var groups []splitwise.Group
	err = h.tokenService.WithAccessToken(c.Request.Context(), userID, func(token string) error {
		var callErr error
		groups, callErr = h.client.GetGroups(c.Request.Context(), token)
		return callErr
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Expenses proxies one page of a group's raw expenses
func (h *SplitwiseHandler) Expenses(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	opts := splitwise.ListExpensesOptions{GroupID: c.Query("group_id")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid limit"))
			return
		}
		opts.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid offset"))
			return
		}
		opts.Offset = offset
	}

	var expenses []splitwise.Expense
	err = h.tokenService.WithAccessToken(c.Request.Context(), userID, func(token string) error {
		var callErr error
		expenses, callErr = h.client.GetExpenses(c.Request.Context(), token, opts)
		return callErr
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}
