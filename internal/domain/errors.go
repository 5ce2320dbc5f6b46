package domain

import "errors"

// Errors
var (
	ErrEmptyItems          = errors.New("requisition items are required")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrMaterialNotFound    = errors.New("material not found")
	ErrVariantNotFound     = errors.New("variant not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrVersionConflict     = errors.New("version conflict")
	ErrRequisitionNotFound = errors.New("requisition not found")
	ErrForbidden           = errors.New("forbidden: actor may not act on this requisition")
	ErrInvalidState        = errors.New("invalid state: requisition is not cancellable")
	ErrWindowExpired       = errors.New("cancel window expired")
	ErrMaterialExists      = errors.New("material already exists")
	ErrMaterialInactive    = errors.New("material is inactive")
)
