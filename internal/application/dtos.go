package application

import "time"

// MaterialDTO is the outward projection of a material. Price fields are
// pointers so non-elevated projections can omit them entirely.
type MaterialDTO struct {
	ID          string       `json:"id"`
	MaterialNo  string       `json:"materialNo"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Status      string       `json:"status"`
	Version     int64        `json:"version"`
	TotalStock  int64        `json:"totalStock"`
	Variants    []VariantDTO `json:"variants"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// VariantDTO is the outward projection of one material variant
type VariantDTO struct {
	VariantID   string `json:"variantId"`
	Label       string `json:"label"`
	CostPrice   *int64 `json:"costPrice,omitempty"`
	SalePrice   *int64 `json:"salePrice,omitempty"`
	Stock       int64  `json:"stock"`
	SafetyStock int64  `json:"safetyStock"`
	ImageURL    string `json:"imageUrl,omitempty"`
	LowStock    bool   `json:"lowStock"`
}

// RequisitionDTO is the outward projection of a requisition
type RequisitionDTO struct {
	ID              string               `json:"id"`
	RequisitionNo   string               `json:"requisitionNo"`
	ApplicantID     string               `json:"applicantId"`
	ApplicantName   string               `json:"applicantName"`
	Department      string               `json:"department,omitempty"`
	TicketRef       string               `json:"ticketRef,omitempty"`
	Note            string               `json:"note,omitempty"`
	Items           []RequisitionItemDTO `json:"items"`
	TotalQuantity   int64                `json:"totalQuantity"`
	TotalAmount     *int64               `json:"totalAmount,omitempty"`
	Status          string               `json:"status"`
	CompletedTime   time.Time            `json:"completedTime"`
	CanCancelBefore *time.Time           `json:"canCancelBefore,omitempty"`
	CancelledTime   *time.Time           `json:"cancelledTime,omitempty"`
	CancelledBy     string               `json:"cancelledBy,omitempty"`
	CancelReason    string               `json:"cancelReason,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// RequisitionItemDTO is the outward projection of one checkout line
type RequisitionItemDTO struct {
	MaterialID   string `json:"materialId"`
	MaterialNo   string `json:"materialNo"`
	Name         string `json:"name"`
	VariantID    string `json:"variantId"`
	VariantLabel string `json:"variantLabel"`
	Quantity     int64  `json:"quantity"`
	CostPrice    *int64 `json:"costPrice,omitempty"`
	SalePrice    *int64 `json:"salePrice,omitempty"`
	Subtotal     *int64 `json:"subtotal,omitempty"`
}

// MaterialLogDTO is the outward projection of one ledger entry
type MaterialLogDTO struct {
	ID            string    `json:"id"`
	MaterialID    string    `json:"materialId"`
	MaterialNo    string    `json:"materialNo"`
	VariantID     string    `json:"variantId"`
	Type          string    `json:"type"`
	Quantity      int64     `json:"quantity"`
	BeforeStock   int64     `json:"beforeStock"`
	AfterStock    int64     `json:"afterStock"`
	RequisitionID string    `json:"requisitionId,omitempty"`
	TicketRef     string    `json:"ticketRef,omitempty"`
	OperatorID    string    `json:"operatorId"`
	OperatorName  string    `json:"operatorName,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
