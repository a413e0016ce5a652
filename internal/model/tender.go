package model

import (
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenderStatus string

const (
	TenderActive TenderStatus = "active"
	TenderClosed TenderStatus = "closed"
)

// Tender is a call for supplier bids on an approved requisition. Exactly one of RequestID and
// DemandFormID is set; at most one active tender may exist per source document.
type Tender struct {
	ID           uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReferenceNo  string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"reference_no"`
	Title        string       `gorm:"type:varchar(255);not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description"`
	RequestID    *uuid.UUID   `gorm:"type:uuid;uniqueIndex:idx_tenders_active_request,where:status = 'active'" json:"request_id"`
	DemandFormID *uuid.UUID   `gorm:"type:uuid;uniqueIndex:idx_tenders_active_demand_form,where:status = 'active'" json:"demand_form_id"`
	Status       TenderStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	StartingDate time.Time    `gorm:"not null" json:"starting_date"`
	ClosingDate  time.Time    `gorm:"not null;index" json:"closing_date"`
	CreatedBy    uuid.UUID    `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (t *Tender) BeforeSave(tx *gorm.DB) error {
	return t.Validate()
}

// Validate checks the source and date invariants.
func (t *Tender) Validate() error {
	if (t.RequestID == nil) == (t.DemandFormID == nil) {
		return fmt.Errorf("%w: exactly one of request_id and demand_form_id is required", domain.ErrValidation)
	}
	if !t.ClosingDate.After(t.StartingDate) {
		return fmt.Errorf("%w: closing date must be after starting date", domain.ErrValidation)
	}
	return nil
}

// Source returns the kind and id of the tendered document.
func (t *Tender) Source() (workflow.Kind, uuid.UUID) {
	if t.DemandFormID != nil {
		return workflow.KindDemandForm, *t.DemandFormID
	}
	if t.RequestID != nil {
		return workflow.KindRequest, *t.RequestID
	}
	return "", uuid.Nil
}

// SourceColumn is the tenders column referencing a document of kind.
func SourceColumn(kind workflow.Kind) string {
	if kind == workflow.KindDemandForm {
		return "demand_form_id"
	}
	return "request_id"
}

// TenderNumberPrefix is the prefix of generated tender reference numbers.
func TenderNumberPrefix(day time.Time) string {
	return fmt.Sprintf("TN-%s-", day.Format("20060102"))
}
