package application

import "github.com/matdesk/requisition-service/pkg/identity"

// RequisitionLine is one requested (material, variant, quantity) line
type RequisitionLine struct {
	MaterialID string
	VariantID  string
	Quantity   int64
}

// SubmitRequisitionCommand represents the command to submit a requisition
type SubmitRequisitionCommand struct {
	Items     []RequisitionLine
	Applicant *identity.Actor
	TicketRef string
	Note      string
}

// CancelRequisitionCommand represents the command to cancel a requisition
type CancelRequisitionCommand struct {
	RequisitionID string
	Actor         *identity.Actor
	Reason        string
}

// CreateMaterialCommand represents the command to create a material
type CreateMaterialCommand struct {
	MaterialNo  string
	Name        string
	Description string
	Category    string
	Unit        string
	Variants    []CreateVariantCommand
	CreatedBy   *identity.Actor
}

// CreateVariantCommand represents one variant on a new material
type CreateVariantCommand struct {
	VariantID   string
	Label       string
	CostPrice   int64
	SalePrice   int64
	Stock       int64
	SafetyStock int64
	ImageURL    string
}

// AdjustStockCommand represents an administrative stock adjustment.
// Direction is "in" or "out"; the adjustment flows through the same
// conditional-update and ledger path as requisitions.
type AdjustStockCommand struct {
	MaterialID string
	VariantID  string
	Direction  string
	Quantity   int64
	Reason     string
	Actor      *identity.Actor
}

// GetMaterialQuery represents the query to get a material by ID
type GetMaterialQuery struct {
	MaterialID string
}

// ListMaterialsQuery represents the query to list materials
type ListMaterialsQuery struct {
	Status   string
	Category string
	Search   string
	Limit    int64
	Offset   int64
}

// GetRequisitionQuery represents the query to get a requisition by ID
type GetRequisitionQuery struct {
	RequisitionID string
	Actor         *identity.Actor
}

// ListRequisitionsQuery represents the query to list requisitions
type ListRequisitionsQuery struct {
	ApplicantID string
	Status      string
	Department  string
	Actor       *identity.Actor
	Limit       int64
	Offset      int64
}

// ListMaterialLogsQuery represents the query to list ledger entries
type ListMaterialLogsQuery struct {
	MaterialID    string
	RequisitionNo string
	Limit         int64
	Offset        int64
}
