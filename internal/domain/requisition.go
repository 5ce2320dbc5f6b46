package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequisitionStatus represents the lifecycle state of a requisition
type RequisitionStatus string

const (
	RequisitionStatusCompleted RequisitionStatus = "completed"
	RequisitionStatusCancelled RequisitionStatus = "cancelled"
)

// CancelWindow is how long after completion a requisition may be
// cancelled when the explicit deadline is set at creation.
const CancelWindow = 5 * time.Minute

// LegacyCancelWindow applies to records persisted before canCancelBefore
// existed. Kept as a live compatibility branch for historical data.
const LegacyCancelWindow = 24 * time.Hour

// Requisition is a completed multi-line material checkout. It is created
// atomically with its stock effects and mutated at most once, by cancel.
type Requisition struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequisitionNo string             `bson:"requisitionNo" json:"requisitionNo"`

	ApplicantID   string `bson:"applicantId" json:"applicantId"`
	ApplicantName string `bson:"applicantName" json:"applicantName"`
	Department    string `bson:"department,omitempty" json:"department,omitempty"`

	// TicketRef is an opaque external reference; stored, never dereferenced
	TicketRef string `bson:"ticketRef,omitempty" json:"ticketRef,omitempty"`
	Note      string `bson:"note,omitempty" json:"note,omitempty"`

	Items         []RequisitionItem `bson:"items" json:"items"`
	TotalQuantity int64             `bson:"totalQuantity" json:"totalQuantity"`
	TotalAmount   int64             `bson:"totalAmount" json:"totalAmount"`

	Status        RequisitionStatus `bson:"status" json:"status"`
	CompletedTime time.Time         `bson:"completedTime" json:"completedTime"`

	// CanCancelBefore is the explicit cancel deadline set at creation.
	// Zero on records that predate the field; those fall back to a
	// 24-hour window from completedTime.
	CanCancelBefore time.Time `bson:"canCancelBefore,omitempty" json:"canCancelBefore,omitempty"`

	CancelledTime *time.Time `bson:"cancelledTime,omitempty" json:"cancelledTime,omitempty"`
	CancelledBy   string     `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CancelReason  string     `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// RequisitionItem is an immutable snapshot of one checkout line. Prices
// are captured at transaction time and never track later price changes.
type RequisitionItem struct {
	MaterialID   primitive.ObjectID `bson:"materialId" json:"materialId"`
	MaterialNo   string             `bson:"materialNo" json:"materialNo"`
	Name         string             `bson:"name" json:"name"`
	VariantID    string             `bson:"variantId" json:"variantId"`
	VariantLabel string             `bson:"variantLabel" json:"variantLabel"`
	Quantity     int64              `bson:"quantity" json:"quantity"`
	CostPrice    int64              `bson:"costPrice" json:"costPrice"`
	SalePrice    int64              `bson:"salePrice" json:"salePrice"`
	Subtotal     int64              `bson:"subtotal" json:"subtotal"`
}

// NewRequisitionItem snapshots a checkout line against the material and
// variant state read at submit time.
func NewRequisitionItem(material *Material, variant *Variant, quantity int64) RequisitionItem {
	return RequisitionItem{
		MaterialID:   material.ID,
		MaterialNo:   material.MaterialNo,
		Name:         material.Name,
		VariantID:    variant.VariantID,
		VariantLabel: variant.Label,
		Quantity:     quantity,
		CostPrice:    variant.CostPrice,
		SalePrice:    variant.SalePrice,
		Subtotal:     variant.SalePrice * quantity,
	}
}

// NewRequisitionNo generates a human-readable requisition number:
// RQ + yyyyMMddHHmmss + 6 hex chars of randomness.
func NewRequisitionNo(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("RQ%s%s", now.Format("20060102150405"), suffix)
}

// NewRequisition assembles a completed requisition from its item
// snapshots. Totals are derived from the items.
func NewRequisition(applicantID, applicantName, department, ticketRef, note string, items []RequisitionItem, now time.Time) *Requisition {
	var totalQuantity, totalAmount int64
	for _, item := range items {
		totalQuantity += item.Quantity
		totalAmount += item.Subtotal
	}

	return &Requisition{
		RequisitionNo:   NewRequisitionNo(now),
		ApplicantID:     applicantID,
		ApplicantName:   applicantName,
		Department:      department,
		TicketRef:       ticketRef,
		Note:            note,
		Items:           items,
		TotalQuantity:   totalQuantity,
		TotalAmount:     totalAmount,
		Status:          RequisitionStatusCompleted,
		CompletedTime:   now,
		CanCancelBefore: now.Add(CancelWindow),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsCompleted reports whether the requisition is in the completed state
func (r *Requisition) IsCompleted() bool {
	return r.Status == RequisitionStatusCompleted
}

// IsCancelled reports whether the requisition has been cancelled
func (r *Requisition) IsCancelled() bool {
	return r.Status == RequisitionStatusCancelled
}

// CancelDeadline resolves the effective cancel deadline. Records that
// predate canCancelBefore fall back to 24 hours from completion.
func (r *Requisition) CancelDeadline() time.Time {
	if !r.CanCancelBefore.IsZero() {
		return r.CanCancelBefore
	}
	return r.CompletedTime.Add(LegacyCancelWindow)
}

// MarkCancelled applies the cancellation fields. The persistence layer
// flips the status conditionally; this only mutates the in-memory copy.
func (r *Requisition) MarkCancelled(actorID, reason string, now time.Time) {
	if reason == "" {
		reason = "cancelled by " + actorID
	}
	r.Status = RequisitionStatusCancelled
	r.CancelledTime = &now
	r.CancelledBy = actorID
	r.CancelReason = reason
	r.UpdatedAt = now
}
