package services

import (
	"encoding/json"

	"splithaus/internal/logger"
	"splithaus/internal/models"

	"gorm.io/gorm"
)

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log writes an audit entry asynchronously. Audit failures are logged and
// never surface to the request path.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{}) {
	entry := models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
	}
	if len(changes) > 0 {
		if data, err := json.Marshal(changes); err == nil {
			entry.Changes = string(data)
		}
	}

	go func() {
		if err := s.db.Create(&entry).Error; err != nil {
			logger.Get().Errorw("failed to write audit log",
				"action", action,
				"resource_type", resourceType,
				"error", err)
		}
	}()
}
