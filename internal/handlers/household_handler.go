package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/services"
)

// HouseholdHandler handles household and sync requests
type HouseholdHandler struct {
	householdService services.HouseholdServicer
	syncService      services.SyncServicer
	auditService     services.AuditServicer
}

// NewHouseholdHandler creates a new HouseholdHandler
func NewHouseholdHandler(householdService services.HouseholdServicer, syncService services.SyncServicer, auditService services.AuditServicer) *HouseholdHandler {
	return &HouseholdHandler{
		householdService: householdService,
		syncService:      syncService,
		auditService:     auditService,
	}
}

// CreateHouseholdRequest represents the household creation payload
type CreateHouseholdRequest struct {
	Name               string `json:"name" binding:"required,min=1,max=100"`
	SplitwiseGroupID   string `json:"splitwise_group_id" binding:"omitempty,max=32"`
	SplitwiseGroupName string `json:"splitwise_group_name" binding:"omitempty,max=100"`
}

// UpdateHouseholdRequest represents the household update payload. Pointer
// fields distinguish "leave unchanged" from "set empty".
type UpdateHouseholdRequest struct {
	Name               *string `json:"name" binding:"omitempty,min=1,max=100"`
	SplitwiseGroupID   *string `json:"splitwise_group_id" binding:"omitempty,max=32"`
	SplitwiseGroupName *string `json:"splitwise_group_name" binding:"omitempty,max=100"`
}

// AddMemberRequest represents the member addition payload
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Create handles household creation
func (h *HouseholdHandler) Create(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	household, err := h.householdService.CreateHousehold(userID, req.Name, req.SplitwiseGroupID, req.SplitwiseGroupName)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"household": household})
}

// List returns all households the user belongs to
func (h *HouseholdHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	households, err := h.householdService.GetUserHouseholds(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"households": households})
}

// Get returns a single household with its members
func (h *HouseholdHandler) Get(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	household, err := h.householdService.GetHouseholdForMember(c.Param("id"), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"household": household})
}

// Update applies owner-only household mutations
func (h *HouseholdHandler) Update(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	household, err := h.householdService.UpdateHousehold(c.Param("id"), userID, services.HouseholdUpdate{
		Name:               req.Name,
		SplitwiseGroupID:   req.SplitwiseGroupID,
		SplitwiseGroupName: req.SplitwiseGroupName,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"household": household})
}

// AddMember adds a member by email
func (h *HouseholdHandler) AddMember(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	household, err := h.householdService.AddMember(c.Param("id"), userID, req.Email)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"household": household})
}

// RemoveMember removes a member (owner) or leaves the household (self)
func (h *HouseholdHandler) RemoveMember(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	household, err := h.householdService.RemoveMember(c.Param("id"), userID, c.Param("userID"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"household": household})
}

// Sync runs a pull reconciliation pass against the linked Splitwise group
func (h *HouseholdHandler) Sync(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	household, err := h.householdService.GetHouseholdForMember(c.Param("id"), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.syncService.PullReconcile(c.Request.Context(), household, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "sync.pull", "household", household.ID, c.ClientIP(), map[string]interface{}{
		"fetched":   summary.Fetched,
		"created":   summary.Created,
		"updated":   summary.Updated,
		"deleted":   summary.Deleted,
		"conflicts": summary.Conflicts,
		"skipped":   summary.Skipped,
	})

	c.JSON(http.StatusOK, gin.H{
		"summary":        summary,
		"sync_cursor":    household.SyncCursor,
		"last_pulled_at": household.LastPulledAt,
	})
}

// ImportSplitwise mirrors the user's Splitwise groups into households
func (h *HouseholdHandler) ImportSplitwise(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	households, err := h.householdService.ImportGroups(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "household.import", "household", "", c.ClientIP(), map[string]interface{}{
		"imported": len(households),
	})

	c.JSON(http.StatusOK, gin.H{"households": households})
}
