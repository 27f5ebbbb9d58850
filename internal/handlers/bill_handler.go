package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/pagination"
	"splithaus/internal/services"
)

// BillHandler handles bill requests
type BillHandler struct {
	billService  services.BillServicer
	auditService services.AuditServicer
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(billService services.BillServicer, auditService services.AuditServicer) *BillHandler {
	return &BillHandler{billService: billService, auditService: auditService}
}

// BillRequest represents the bill create/update payload
type BillRequest struct {
	BillName string                   `json:"bill_name" binding:"required,min=1,max=200"`
	Items    []services.BillItemInput `json:"items" binding:"required,min=1,max=100,dive"`
}

// Create handles bill creation. The bill is pushed to the linked Splitwise
// group synchronously; the response carries the resulting sync state.
func (h *BillHandler) Create(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bill, err := h.billService.CreateBill(c.Request.Context(), c.Param("id"), userID, req.BillName, req.Items)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "bill.create", "bill", bill.ID, c.ClientIP(), map[string]interface{}{
		"total_amount": bill.TotalAmount,
		"sync_status":  bill.Sync.Status,
	})

	c.JSON(http.StatusCreated, gin.H{"bill": bill})
}

// List returns a household's bills, newest first
func (h *BillHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bills, err := h.billService.GetHouseholdBills(c.Param("id"), userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bills)
}

// Get returns a single bill
func (h *BillHandler) Get(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	bill, err := h.billService.GetBillByID(c.Param("id"), c.Param("billID"), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bill": bill})
}

// Update replaces a bill's content and re-pushes it
func (h *BillHandler) Update(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bill, err := h.billService.UpdateBill(c.Request.Context(), c.Param("id"), c.Param("billID"), userID, req.BillName, req.Items)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "bill.update", "bill", bill.ID, c.ClientIP(), map[string]interface{}{
		"total_amount": bill.TotalAmount,
		"sync_status":  bill.Sync.Status,
	})

	c.JSON(http.StatusOK, gin.H{"bill": bill})
}

// Delete removes a bill, deleting its remote counterpart first
func (h *BillHandler) Delete(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	billID := c.Param("billID")
	if err := h.billService.DeleteBill(c.Request.Context(), c.Param("id"), billID, userID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "bill.delete", "bill", billID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
