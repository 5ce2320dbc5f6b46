package domain

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VariantMutation is one per-variant stock delta inside a conditional
// update batch. Delta is signed: negative for checkout, positive for
// restore or inbound adjustment.
type VariantMutation struct {
	VariantID string
	Delta     int64
}

// MaterialRepository is the stock store. ConditionalUpdateStock is the
// only write path for stock: it applies the batch of variant deltas plus
// the derived totalStock change iff the material's current version equals
// expectedVersion, incrementing version by exactly 1. A stale version
// returns ErrVersionConflict with no partial write.
type MaterialRepository interface {
	Save(ctx context.Context, material *Material) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Material, error)
	FindByMaterialNo(ctx context.Context, materialNo string) (*Material, error)
	FindAll(ctx context.Context, filter MaterialFilter, limit, offset int64) ([]*Material, int64, error)
	FindLowStock(ctx context.Context) ([]*Material, error)
	ConditionalUpdateStock(ctx context.Context, id primitive.ObjectID, expectedVersion int64, mutations []VariantMutation) (int64, error)
}

// MaterialFilter narrows material listing
type MaterialFilter struct {
	Status   MaterialStatus
	Category string
	Search   string
}

// MaterialLogRepository is the ledger writer: pure append plus reads for
// audit projections. Entries are never updated or deleted.
type MaterialLogRepository interface {
	Append(ctx context.Context, log *MaterialLog) error
	FindByMaterial(ctx context.Context, materialID primitive.ObjectID, limit, offset int64) ([]*MaterialLog, int64, error)
	FindByRequisition(ctx context.Context, requisitionNo string) ([]*MaterialLog, error)
}

// RequisitionRepository persists requisitions. MarkCancelled flips the
// status conditionally on the document still being completed, so a lost
// cancel race is observable; it returns ErrInvalidState when the flip
// matched nothing.
type RequisitionRepository interface {
	Insert(ctx context.Context, requisition *Requisition) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Requisition, error)
	FindByRequisitionNo(ctx context.Context, requisitionNo string) (*Requisition, error)
	FindAll(ctx context.Context, filter RequisitionFilter, limit, offset int64) ([]*Requisition, int64, error)
	MarkCancelled(ctx context.Context, requisition *Requisition) error
}

// RequisitionFilter narrows requisition listing
type RequisitionFilter struct {
	ApplicantID string
	Status      RequisitionStatus
	Department  string
}

// EventPublisher publishes domain events after a commit, best-effort
type EventPublisher interface {
	PublishRequisitionSubmitted(ctx context.Context, requisition *Requisition)
	PublishRequisitionCancelled(ctx context.Context, requisition *Requisition)
	PublishLowStock(ctx context.Context, material *Material, variant *Variant)
}
