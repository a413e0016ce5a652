package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderApproved  OrderStatus = "approved"
	OrderRejected  OrderStatus = "rejected"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// IsFinal reports whether the status admits no further moves.
func (s OrderStatus) IsFinal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderRejected
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// ParsePaymentStatus reports whether s is a known payment status.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch p := PaymentStatus(s); p {
	case PaymentUnpaid, PaymentPartial, PaymentPaid:
		return p, true
	}
	return "", false
}

// Order actions accepted by the status endpoint
const (
	OrderActionApprove   = "approve"
	OrderActionReject    = "reject"
	OrderActionCancel    = "cancel"
	OrderActionComplete  = "complete"
	OrderActionDelivered = "delivered"
)

var orderActionStatus = map[string]OrderStatus{
	OrderActionApprove:   OrderApproved,
	OrderActionReject:    OrderRejected,
	OrderActionCancel:    OrderCancelled,
	OrderActionComplete:  OrderShipped,
	OrderActionDelivered: OrderDelivered,
}

// StatusForAction maps an order action to the status it sets.
func StatusForAction(action string) (OrderStatus, bool) {
	s, ok := orderActionStatus[action]
	return s, ok
}

// Order is a supplier's bid on a tender. A supplier holds at most one order per tender.
type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenderID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_orders_user_tender" json:"tender_id"`
	Tender        *Tender         `gorm:"foreignKey:TenderID" json:"tender,omitempty"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_orders_user_tender;index" json:"user_id"`
	User          *User           `gorm:"foreignKey:UserID" json:"supplier,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
