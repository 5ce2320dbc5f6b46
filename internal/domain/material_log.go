package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LogType classifies a ledger entry: stock entering or leaving
type LogType string

const (
	LogTypeIn  LogType = "in"
	LogTypeOut LogType = "out"
)

// MaterialLog is one append-only ledger row. Exactly one exists per
// committed stock delta; afterStock - beforeStock always equals the
// applied delta, and afterStock equals the variant's stock immediately
// after the operation in commit order. Rows are never updated or deleted.
type MaterialLog struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MaterialID primitive.ObjectID `bson:"materialId" json:"materialId"`
	MaterialNo string             `bson:"materialNo" json:"materialNo"`
	VariantID  string             `bson:"variantId" json:"variantId"`

	Type LogType `bson:"type" json:"type"`

	// Quantity is signed: negative for out, positive for in
	Quantity    int64 `bson:"quantity" json:"quantity"`
	BeforeStock int64 `bson:"beforeStock" json:"beforeStock"`
	AfterStock  int64 `bson:"afterStock" json:"afterStock"`

	// RequisitionID correlates the entry to its requisition, when one exists
	RequisitionID string `bson:"requisitionId,omitempty" json:"requisitionId,omitempty"`
	TicketRef     string `bson:"ticketRef,omitempty" json:"ticketRef,omitempty"`

	OperatorID   string `bson:"operatorId" json:"operatorId"`
	OperatorName string `bson:"operatorName,omitempty" json:"operatorName,omitempty"`
	Reason       string `bson:"reason,omitempty" json:"reason,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// NewOutLog records a checkout delta. Quantity is stored negative.
func NewOutLog(material *Material, variantID string, quantity, beforeStock int64, requisitionNo, ticketRef, operatorID, operatorName, reason string, now time.Time) *MaterialLog {
	return &MaterialLog{
		MaterialID:    material.ID,
		MaterialNo:    material.MaterialNo,
		VariantID:     variantID,
		Type:          LogTypeOut,
		Quantity:      -quantity,
		BeforeStock:   beforeStock,
		AfterStock:    beforeStock - quantity,
		RequisitionID: requisitionNo,
		TicketRef:     ticketRef,
		OperatorID:    operatorID,
		OperatorName:  operatorName,
		Reason:        reason,
		CreatedAt:     now,
	}
}

// NewInLog records a restore or inbound delta. Quantity is stored positive.
func NewInLog(material *Material, variantID string, quantity, beforeStock int64, requisitionNo, operatorID, operatorName, reason string, now time.Time) *MaterialLog {
	return &MaterialLog{
		MaterialID:    material.ID,
		MaterialNo:    material.MaterialNo,
		VariantID:     variantID,
		Type:          LogTypeIn,
		Quantity:      quantity,
		BeforeStock:   beforeStock,
		AfterStock:    beforeStock + quantity,
		RequisitionID: requisitionNo,
		OperatorID:    operatorID,
		OperatorName:  operatorName,
		Reason:        reason,
		CreatedAt:     now,
	}
}

// Delta returns the applied stock change (afterStock - beforeStock)
func (l *MaterialLog) Delta() int64 {
	return l.AfterStock - l.BeforeStock
}
