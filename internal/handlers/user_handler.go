package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/services"
)

// UserHandler handles user lookup requests
type UserHandler struct {
	userService services.UserServicer
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService services.UserServicer) *UserHandler {
	return &UserHandler{userService: userService}
}

// Search finds users by email fragment, used when adding household members.
func (h *UserHandler) Search(c *gin.Context) {
	if _, err := getUserID(c); err != nil {
		respondWithError(c, err)
		return
	}

	query := c.Query("q")
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid limit"))
			return
		}
		limit = parsed
	}

	users, err := h.userService.SearchByEmail(query, limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	results := make([]gin.H, 0, len(users))
	for i := range users {
		results = append(results, userJSON(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}
