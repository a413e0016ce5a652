package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionCreateRequisition = "CREATE_REQUISITION"
	ActionUpdateRequisition = "UPDATE_REQUISITION"
	ActionDeleteRequisition = "DELETE_REQUISITION"
	ActionStageTransition   = "STAGE_TRANSITION"

	ActionCreateTender = "CREATE_TENDER"
	ActionCloseTender  = "CLOSE_TENDER"

	ActionCreateOrder        = "CREATE_ORDER"
	ActionUpdateOrderStatus  = "UPDATE_ORDER_STATUS"
	ActionUpdateOrderPayment = "UPDATE_ORDER_PAYMENT"
	ActionDeliveryCascade    = "DELIVERY_CASCADE"

	ActionCreateUser       = "CREATE_USER"
	ActionUpdateUser       = "UPDATE_USER"
	ActionSetUserActive    = "SET_USER_ACTIVE"
	ActionRegisterSupplier = "REGISTER_SUPPLIER"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for system actions
	User       *User          `gorm:"foreignKey:UserID" json:"user"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// NewAuditLog builds an entry with details serialized to JSON. A zero actor is recorded as the system.
func NewAuditLog(actor uuid.UUID, action, entityID, entityName string, details interface{}) *AuditLog {
	entry := &AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if actor != uuid.Nil {
		entry.UserID = &actor
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}
	return entry
}
