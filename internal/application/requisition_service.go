package application

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/matdesk/requisition-service/internal/domain"
	"github.com/matdesk/requisition-service/pkg/identity"
	"github.com/matdesk/requisition-service/pkg/logging"
	"github.com/matdesk/requisition-service/pkg/metrics"
	"github.com/matdesk/requisition-service/pkg/resilience"
)

// RequisitionService implements the checkout and cancellation sagas.
// Stock, ledger and requisition live in separate collections with no
// cross-document transaction, so multi-line operations are ordered as
// conditional stock updates first, ledger appends second, requisition
// write last, with inverse conditional updates as compensation.
type RequisitionService struct {
	materials    domain.MaterialRepository
	logs         domain.MaterialLogRepository
	requisitions domain.RequisitionRepository
	publisher    domain.EventPublisher
	policy       *domain.CancelPolicy
	clock        domain.Clock
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewRequisitionService creates a new requisition application service
func NewRequisitionService(
	materials domain.MaterialRepository,
	logs domain.MaterialLogRepository,
	requisitions domain.RequisitionRepository,
	publisher domain.EventPublisher,
	clock domain.Clock,
	logger *logging.Logger,
	m *metrics.Metrics,
) *RequisitionService {
	return &RequisitionService{
		materials:    materials,
		logs:         logs,
		requisitions: requisitions,
		publisher:    publisher,
		policy:       domain.NewCancelPolicy(clock),
		clock:        clock,
		logger:       logger,
		metrics:      m,
	}
}

// appliedLine tracks one committed stock delta so a later failure can
// reverse it. logged flips once the matching ledger entry is appended;
// reversals of logged lines get a pairing ledger entry of their own.
type appliedLine struct {
	materialID primitive.ObjectID
	materialNo string
	variantID  string
	delta      int64
	logged     bool
}

// lowStockAlert carries a post-checkout threshold crossing out of the
// submit loop so notification happens only after the saga commits.
type lowStockAlert struct {
	material *domain.Material
	variant  domain.Variant
}

// Submit atomically checks out all requested lines, appends one ledger
// entry per line and persists the requisition. Any failure reverses
// every stock delta already applied and leaves no requisition behind.
func (s *RequisitionService) Submit(ctx context.Context, cmd SubmitRequisitionCommand) (*RequisitionDTO, error) {
	if cmd.Applicant == nil || cmd.Applicant.ID == "" {
		return nil, identity.ErrMissingActorContext
	}
	if len(cmd.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	for _, line := range cmd.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidQuantity, line.Quantity)
		}
	}

	now := s.clock.Now()
	requisitionNo := domain.NewRequisitionNo(now)
	log := s.logger.WithContext(ctx).WithOperation("submit_requisition").WithFields(map[string]any{
		"requisitionNo": requisitionNo,
		"applicantId":   cmd.Applicant.ID,
		"lineCount":     len(cmd.Items),
	})

	applied := make([]*appliedLine, 0, len(cmd.Items))
	items := make([]domain.RequisitionItem, 0, len(cmd.Items))
	pendingLogs := make([]*domain.MaterialLog, 0, len(cmd.Items))
	alerts := make([]lowStockAlert, 0)

	// Phase 1: conditional stock decrements, line by line in request order
	for _, line := range cmd.Items {
		materialID, err := primitive.ObjectIDFromHex(line.MaterialID)
		if err != nil {
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, line.MaterialID)
		}

		material, err := s.materials.FindByID(ctx, materialID)
		if err != nil {
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, err
		}
		if material == nil {
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, line.MaterialID)
		}
		if !material.IsActive() {
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, fmt.Errorf("%w: %s", domain.ErrMaterialInactive, material.MaterialNo)
		}

		variant, err := material.CheckAvailability(line.VariantID, line.Quantity)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) && s.metrics != nil {
				s.metrics.RecordInsufficientStock()
			}
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, err
		}

		mutations := []domain.VariantMutation{{VariantID: line.VariantID, Delta: -line.Quantity}}
		if _, err := s.materials.ConditionalUpdateStock(ctx, material.ID, material.Version, mutations); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) && s.metrics != nil {
				s.metrics.RecordStockConflict("submit")
			}
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, err
		}

		applied = append(applied, &appliedLine{
			materialID: material.ID,
			materialNo: material.MaterialNo,
			variantID:  line.VariantID,
			delta:      -line.Quantity,
		})
		items = append(items, domain.NewRequisitionItem(material, variant, line.Quantity))
		pendingLogs = append(pendingLogs, domain.NewOutLog(
			material, line.VariantID, line.Quantity, variant.Stock,
			requisitionNo, cmd.TicketRef, cmd.Applicant.ID, cmd.Applicant.Name,
			"requisition checkout", now,
		))

		if variant.Stock-line.Quantity <= variant.SafetyStock {
			after := *variant
			after.Stock -= line.Quantity
			alerts = append(alerts, lowStockAlert{material: material, variant: after})
		}
	}

	// Phase 2: ledger appends, one entry per committed delta
	for i, entry := range pendingLogs {
		if err := s.logs.Append(ctx, entry); err != nil {
			log.WithError(err).Error("Ledger append failed, reversing checkout")
			s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
			return nil, err
		}
		applied[i].logged = true
		if s.metrics != nil {
			s.metrics.RecordLedgerEntry(string(domain.LogTypeOut))
		}
	}

	// Phase 3: persist the requisition itself
	requisition := domain.NewRequisition(
		cmd.Applicant.ID, cmd.Applicant.Name, cmd.Applicant.Department,
		cmd.TicketRef, cmd.Note, items, now,
	)
	requisition.RequisitionNo = requisitionNo

	if err := s.requisitions.Insert(ctx, requisition); err != nil {
		log.WithError(err).Error("Requisition insert failed, reversing checkout")
		s.compensate(ctx, "submit", requisitionNo, cmd.Applicant, applied)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRequisitionSubmitted(string(requisition.Status))
	}
	s.logger.Audit(ctx, "requisition.submit", "requisition", requisition.RequisitionNo, cmd.Applicant.ID, map[string]any{
		"totalQuantity": requisition.TotalQuantity,
		"lineCount":     len(requisition.Items),
		"ticketRef":     requisition.TicketRef,
	})
	log.Info("Requisition submitted", "totalQuantity", requisition.TotalQuantity)

	if s.publisher != nil {
		s.publisher.PublishRequisitionSubmitted(ctx, requisition)
		for _, alert := range alerts {
			s.publisher.PublishLowStock(ctx, alert.material, &alert.variant)
		}
	}

	return ToRequisitionDTO(requisition, cmd.Applicant.IsElevated()), nil
}

// Cancel reverses a completed requisition: policy guard, conditional
// stock restores, in ledger entries, then a conditional status flip.
// Losing the status race reverses the restores and reports the state
// error so the caller sees exactly one winner.
func (s *RequisitionService) Cancel(ctx context.Context, cmd CancelRequisitionCommand) (*RequisitionDTO, error) {
	if cmd.Actor == nil || cmd.Actor.ID == "" {
		return nil, identity.ErrMissingActorContext
	}

	requisitionID, err := primitive.ObjectIDFromHex(cmd.RequisitionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequisitionNotFound, cmd.RequisitionID)
	}

	requisition, err := s.requisitions.FindByID(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if requisition == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequisitionNotFound, cmd.RequisitionID)
	}

	if err := s.policy.Authorize(requisition, cmd.Actor); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	log := s.logger.WithContext(ctx).WithOperation("cancel_requisition").WithFields(map[string]any{
		"requisitionNo": requisition.RequisitionNo,
		"actorId":       cmd.Actor.ID,
	})

	applied := make([]*appliedLine, 0, len(requisition.Items))
	pendingLogs := make([]*domain.MaterialLog, 0, len(requisition.Items))

	// Phase 1: conditional stock restores. A line whose material or
	// variant no longer exists is skipped, not failed: the cancellation
	// must still run for the lines that remain restorable.
	for _, item := range requisition.Items {
		material, err := s.materials.FindByID(ctx, item.MaterialID)
		if err != nil {
			s.compensate(ctx, "cancel", requisition.RequisitionNo, cmd.Actor, applied)
			return nil, err
		}
		if material == nil {
			log.Warn("Material missing during cancel, line skipped",
				"materialNo", item.MaterialNo, "variantId", item.VariantID)
			continue
		}
		variant := material.FindVariant(item.VariantID)
		if variant == nil {
			log.Warn("Variant missing during cancel, line skipped",
				"materialNo", item.MaterialNo, "variantId", item.VariantID)
			continue
		}

		mutations := []domain.VariantMutation{{VariantID: item.VariantID, Delta: item.Quantity}}
		if _, err := s.materials.ConditionalUpdateStock(ctx, material.ID, material.Version, mutations); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) && s.metrics != nil {
				s.metrics.RecordStockConflict("cancel")
			}
			s.compensate(ctx, "cancel", requisition.RequisitionNo, cmd.Actor, applied)
			return nil, err
		}

		applied = append(applied, &appliedLine{
			materialID: material.ID,
			materialNo: material.MaterialNo,
			variantID:  item.VariantID,
			delta:      item.Quantity,
		})
		pendingLogs = append(pendingLogs, domain.NewInLog(
			material, item.VariantID, item.Quantity, variant.Stock,
			requisition.RequisitionNo, cmd.Actor.ID, cmd.Actor.Name,
			"requisition cancelled", now,
		))
	}

	// Phase 2: ledger appends for the restored lines
	for i, entry := range pendingLogs {
		if err := s.logs.Append(ctx, entry); err != nil {
			log.WithError(err).Error("Ledger append failed, reversing restores")
			s.compensate(ctx, "cancel", requisition.RequisitionNo, cmd.Actor, applied)
			return nil, err
		}
		applied[i].logged = true
		if s.metrics != nil {
			s.metrics.RecordLedgerEntry(string(domain.LogTypeIn))
		}
	}

	// Phase 3: conditional status flip. Matching nothing means another
	// cancel won the race after our initial read.
	requisition.MarkCancelled(cmd.Actor.ID, cmd.Reason, now)
	if err := s.requisitions.MarkCancelled(ctx, requisition); err != nil {
		log.WithError(err).Warn("Status flip failed, reversing restores")
		s.compensate(ctx, "cancel", requisition.RequisitionNo, cmd.Actor, applied)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRequisitionCancelled(string(requisition.Status))
	}
	s.logger.Audit(ctx, "requisition.cancel", "requisition", requisition.RequisitionNo, cmd.Actor.ID, map[string]any{
		"reason":        requisition.CancelReason,
		"restoredLines": len(applied),
		"skippedLines":  len(requisition.Items) - len(applied),
	})
	log.Info("Requisition cancelled", "restoredLines", len(applied))

	if s.publisher != nil {
		s.publisher.PublishRequisitionCancelled(ctx, requisition)
	}

	return ToRequisitionDTO(requisition, cmd.Actor.IsElevated()), nil
}

// compensate reverses applied stock deltas in reverse order. Each inverse
// update retries from a fresh read on version conflict; lines whose
// forward ledger entry was already appended get a pairing reversal entry
// so every committed delta stays visible on the ledger. A negative
// inverse the freshly read variant cannot cover is never committed:
// another checkout may have consumed the restored units in the meantime,
// and stock must not go below zero. A line that cannot be reversed is
// logged for manual reconciliation, never retried forever.
func (s *RequisitionService) compensate(ctx context.Context, operation, requisitionNo string, actor *identity.Actor, applied []*appliedLine) {
	if len(applied) == 0 {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordCompensationRun(operation)
	}

	log := s.logger.WithContext(ctx).WithOperation("compensate_" + operation).WithFields(map[string]any{
		"requisitionNo": requisitionNo,
		"lineCount":     len(applied),
	})
	log.Warn("Reversing applied stock deltas")

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.RetryableErrors = func(err error) bool {
		return errors.Is(err, domain.ErrVersionConflict)
	}

	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		inverse := -line.delta

		var material *domain.Material
		var beforeStock int64

		err := resilience.Retry(ctx, retryConfig, func() error {
			fresh, err := s.materials.FindByID(ctx, line.materialID)
			if err != nil {
				return err
			}
			if fresh == nil {
				return fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, line.materialID.Hex())
			}
			variant := fresh.FindVariant(line.variantID)
			if variant == nil {
				return fmt.Errorf("%w: variant %s of material %s", domain.ErrVariantNotFound, line.variantID, fresh.MaterialNo)
			}
			if inverse < 0 && variant.Stock+inverse < 0 {
				return fmt.Errorf("%w: %s variant %s has %d in stock, cannot take back %d",
					domain.ErrInsufficientStock, fresh.MaterialNo, line.variantID, variant.Stock, -inverse)
			}

			mutations := []domain.VariantMutation{{VariantID: line.variantID, Delta: inverse}}
			if _, err := s.materials.ConditionalUpdateStock(ctx, fresh.ID, fresh.Version, mutations); err != nil {
				return err
			}

			material = fresh
			beforeStock = variant.Stock
			return nil
		})
		if err != nil {
			log.WithError(err).Error("Compensation failed, manual reconciliation required",
				"materialNo", line.materialNo, "variantId", line.variantID, "delta", inverse)
			continue
		}

		if !line.logged {
			continue
		}

		// The forward entry is already on the ledger; pair it with the
		// reversing entry so deltas stay one entry per committed change.
		now := s.clock.Now()
		reason := fmt.Sprintf("compensation: %s aborted", operation)
		var entry *domain.MaterialLog
		if inverse > 0 {
			entry = domain.NewInLog(material, line.variantID, inverse, beforeStock,
				requisitionNo, actor.ID, actor.Name, reason, now)
		} else {
			entry = domain.NewOutLog(material, line.variantID, -inverse, beforeStock,
				requisitionNo, "", actor.ID, actor.Name, reason, now)
		}
		if err := s.logs.Append(ctx, entry); err != nil {
			log.WithError(err).Error("Compensation ledger append failed",
				"materialNo", line.materialNo, "variantId", line.variantID)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordLedgerEntry(string(entry.Type))
		}
	}
}

// GetRequisition fetches one requisition. Applicants can only see their
// own records; elevated actors see everything.
func (s *RequisitionService) GetRequisition(ctx context.Context, query GetRequisitionQuery) (*RequisitionDTO, error) {
	if query.Actor == nil || query.Actor.ID == "" {
		return nil, identity.ErrMissingActorContext
	}

	requisition, err := s.findRequisition(ctx, query.RequisitionID)
	if err != nil {
		return nil, err
	}

	if !query.Actor.CanActOn(requisition.ApplicantID) {
		return nil, fmt.Errorf("%w: actor %s may not view this requisition", domain.ErrForbidden, query.Actor.ID)
	}

	return ToRequisitionDTO(requisition, query.Actor.IsElevated()), nil
}

// ListRequisitions lists requisitions with filters and pagination.
// Non-elevated actors are pinned to their own applicant ID.
func (s *RequisitionService) ListRequisitions(ctx context.Context, query ListRequisitionsQuery) ([]*RequisitionDTO, int64, error) {
	if query.Actor == nil || query.Actor.ID == "" {
		return nil, 0, identity.ErrMissingActorContext
	}

	filter := domain.RequisitionFilter{
		ApplicantID: query.ApplicantID,
		Status:      domain.RequisitionStatus(query.Status),
		Department:  query.Department,
	}
	if !query.Actor.IsElevated() {
		filter.ApplicantID = query.Actor.ID
	}

	requisitions, total, err := s.requisitions.FindAll(ctx, filter, query.Limit, query.Offset)
	if err != nil {
		return nil, 0, err
	}

	return ToRequisitionDTOs(requisitions, query.Actor.IsElevated()), total, nil
}

// GetRequisitionLedger returns the ledger entries correlated to a
// requisition, in append order.
func (s *RequisitionService) GetRequisitionLedger(ctx context.Context, requisitionID string, actor *identity.Actor) ([]*MaterialLogDTO, error) {
	if actor == nil || actor.ID == "" {
		return nil, identity.ErrMissingActorContext
	}

	requisition, err := s.findRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(requisition.ApplicantID) {
		return nil, fmt.Errorf("%w: actor %s may not view this requisition", domain.ErrForbidden, actor.ID)
	}

	entries, err := s.logs.FindByRequisition(ctx, requisition.RequisitionNo)
	if err != nil {
		return nil, err
	}
	return ToMaterialLogDTOs(entries), nil
}

// findRequisition resolves an identifier that may be either a document
// ID or a human-readable requisition number.
func (s *RequisitionService) findRequisition(ctx context.Context, id string) (*domain.Requisition, error) {
	var requisition *domain.Requisition
	var err error

	if objectID, parseErr := primitive.ObjectIDFromHex(id); parseErr == nil {
		requisition, err = s.requisitions.FindByID(ctx, objectID)
	} else {
		requisition, err = s.requisitions.FindByRequisitionNo(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if requisition == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequisitionNotFound, id)
	}
	return requisition, nil
}
