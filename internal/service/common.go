package service

import (
	"fmt"

	"procurement/internal/domain"
	"procurement/internal/workflow"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Actor is the authenticated caller, taken from the verified access token.
type Actor struct {
	ID   uuid.UUID
	Role workflow.Role
}

// SystemActor performs cascades that no user triggers directly.
var SystemActor = Actor{ID: uuid.Nil, Role: workflow.RoleSystem}

// EventPublisher pushes workflow events to live dashboards.
type EventPublisher interface {
	Publish(event string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// Event names sent over the websocket feed
const (
	EventRequisitionCreated = "requisition.created"
	EventStageChanged       = "requisition.stage_changed"
	EventTenderCreated      = "tender.created"
	EventTenderClosed       = "tender.closed"
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// The same tag gin binds with, so DTOs validated outside a request behave identically.
var validate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{domain.ErrForbidden}, args...)...)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{domain.ErrValidation}, args...)...)
}
