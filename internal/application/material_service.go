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
)

// Stock adjustment directions
const (
	AdjustDirectionIn  = "in"
	AdjustDirectionOut = "out"
)

// MaterialService implements material administration and read
// projections. Administrative stock adjustments run through the same
// conditional-update and ledger path as requisition checkouts.
type MaterialService struct {
	materials domain.MaterialRepository
	logs      domain.MaterialLogRepository
	publisher domain.EventPublisher
	clock     domain.Clock
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewMaterialService creates a new material application service
func NewMaterialService(
	materials domain.MaterialRepository,
	logs domain.MaterialLogRepository,
	publisher domain.EventPublisher,
	clock domain.Clock,
	logger *logging.Logger,
	m *metrics.Metrics,
) *MaterialService {
	return &MaterialService{
		materials: materials,
		logs:      logs,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   m,
	}
}

// CreateMaterial registers a new material with its variants. Opening
// stock is recorded on the ledger so every unit ever held traces back
// to an entry.
func (s *MaterialService) CreateMaterial(ctx context.Context, cmd CreateMaterialCommand) (*MaterialDTO, error) {
	if cmd.CreatedBy == nil || cmd.CreatedBy.ID == "" {
		return nil, identity.ErrMissingActorContext
	}
	if !cmd.CreatedBy.IsElevated() {
		return nil, fmt.Errorf("%w: actor %s may not manage materials", domain.ErrForbidden, cmd.CreatedBy.ID)
	}

	existing, err := s.materials.FindByMaterialNo(ctx, cmd.MaterialNo)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMaterialExists, cmd.MaterialNo)
	}

	variants := make([]domain.Variant, 0, len(cmd.Variants))
	for _, v := range cmd.Variants {
		if v.Stock < 0 || v.SafetyStock < 0 {
			return nil, fmt.Errorf("%w: stock levels must be non-negative", domain.ErrInvalidQuantity)
		}
		variants = append(variants, domain.Variant{
			VariantID:   v.VariantID,
			Label:       v.Label,
			CostPrice:   v.CostPrice,
			SalePrice:   v.SalePrice,
			Stock:       v.Stock,
			SafetyStock: v.SafetyStock,
			ImageURL:    v.ImageURL,
		})
	}

	material := domain.NewMaterial(cmd.MaterialNo, cmd.Name, cmd.Unit, variants)
	material.Description = cmd.Description
	material.Category = cmd.Category

	if err := s.materials.Save(ctx, material); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range material.Variants {
		v := &material.Variants[i]
		if v.Stock == 0 {
			continue
		}
		entry := domain.NewInLog(material, v.VariantID, v.Stock, 0, "",
			cmd.CreatedBy.ID, cmd.CreatedBy.Name, "initial stock", now)
		if err := s.logs.Append(ctx, entry); err != nil {
			s.logger.WithContext(ctx).WithError(err).Error("Opening stock ledger append failed",
				"materialNo", material.MaterialNo, "variantId", v.VariantID)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordLedgerEntry(string(domain.LogTypeIn))
		}
	}

	s.logger.Audit(ctx, "material.create", "material", material.MaterialNo, cmd.CreatedBy.ID, map[string]any{
		"variantCount": len(material.Variants),
		"totalStock":   material.TotalStock,
	})

	return ToMaterialDTO(material, true), nil
}

// AdjustStock applies an administrative inbound or outbound stock
// movement through the conditional-update path and records it on the
// ledger. A version conflict aborts and is safe to retry.
func (s *MaterialService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (*MaterialDTO, error) {
	if cmd.Actor == nil || cmd.Actor.ID == "" {
		return nil, identity.ErrMissingActorContext
	}
	if !cmd.Actor.IsElevated() {
		return nil, fmt.Errorf("%w: actor %s may not adjust stock", domain.ErrForbidden, cmd.Actor.ID)
	}
	if cmd.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidQuantity, cmd.Quantity)
	}
	if cmd.Direction != AdjustDirectionIn && cmd.Direction != AdjustDirectionOut {
		return nil, fmt.Errorf("%w: direction must be %q or %q", domain.ErrInvalidQuantity, AdjustDirectionIn, AdjustDirectionOut)
	}

	materialID, err := primitive.ObjectIDFromHex(cmd.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, cmd.MaterialID)
	}
	material, err := s.materials.FindByID(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if material == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, cmd.MaterialID)
	}

	var variant *domain.Variant
	delta := cmd.Quantity
	if cmd.Direction == AdjustDirectionOut {
		delta = -cmd.Quantity
		variant, err = material.CheckAvailability(cmd.VariantID, cmd.Quantity)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) && s.metrics != nil {
				s.metrics.RecordInsufficientStock()
			}
			return nil, err
		}
	} else {
		variant = material.FindVariant(cmd.VariantID)
		if variant == nil {
			return nil, fmt.Errorf("%w: variant %s of material %s", domain.ErrVariantNotFound, cmd.VariantID, material.MaterialNo)
		}
	}

	mutations := []domain.VariantMutation{{VariantID: cmd.VariantID, Delta: delta}}
	if _, err := s.materials.ConditionalUpdateStock(ctx, material.ID, material.Version, mutations); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) && s.metrics != nil {
			s.metrics.RecordStockConflict("adjust")
		}
		return nil, err
	}

	now := s.clock.Now()
	var entry *domain.MaterialLog
	if delta > 0 {
		entry = domain.NewInLog(material, cmd.VariantID, cmd.Quantity, variant.Stock, "",
			cmd.Actor.ID, cmd.Actor.Name, cmd.Reason, now)
	} else {
		entry = domain.NewOutLog(material, cmd.VariantID, cmd.Quantity, variant.Stock, "", "",
			cmd.Actor.ID, cmd.Actor.Name, cmd.Reason, now)
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Adjustment ledger append failed",
			"materialNo", material.MaterialNo, "variantId", cmd.VariantID)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLedgerEntry(string(entry.Type))
	}

	s.logger.Audit(ctx, "material.adjust", "material", material.MaterialNo, cmd.Actor.ID, map[string]any{
		"variantId": cmd.VariantID,
		"direction": cmd.Direction,
		"quantity":  cmd.Quantity,
		"reason":    cmd.Reason,
	})

	if delta < 0 && variant.Stock+delta <= variant.SafetyStock && s.publisher != nil {
		after := *variant
		after.Stock += delta
		s.publisher.PublishLowStock(ctx, material, &after)
	}

	fresh, err := s.materials.FindByID(ctx, materialID)
	if err != nil || fresh == nil {
		// Adjustment committed; fall back to the stale read for the response
		material.Version++
		variant.Stock += delta
		material.RecomputeTotalStock()
		return ToMaterialDTO(material, true), nil
	}
	return ToMaterialDTO(fresh, true), nil
}

// GetMaterial fetches one material by ID or material number
func (s *MaterialService) GetMaterial(ctx context.Context, query GetMaterialQuery, actor *identity.Actor) (*MaterialDTO, error) {
	material, err := s.findMaterial(ctx, query.MaterialID)
	if err != nil {
		return nil, err
	}
	includePrices := actor != nil && actor.IsElevated()
	return ToMaterialDTO(material, includePrices), nil
}

// ListMaterials lists materials with filters and pagination
func (s *MaterialService) ListMaterials(ctx context.Context, query ListMaterialsQuery, actor *identity.Actor) ([]*MaterialDTO, int64, error) {
	filter := domain.MaterialFilter{
		Status:   domain.MaterialStatus(query.Status),
		Category: query.Category,
		Search:   query.Search,
	}

	materials, total, err := s.materials.FindAll(ctx, filter, query.Limit, query.Offset)
	if err != nil {
		return nil, 0, err
	}

	includePrices := actor != nil && actor.IsElevated()
	return ToMaterialDTOs(materials, includePrices), total, nil
}

// ListLowStock returns materials that have at least one variant at or
// below its safety stock.
func (s *MaterialService) ListLowStock(ctx context.Context, actor *identity.Actor) ([]*MaterialDTO, error) {
	materials, err := s.materials.FindLowStock(ctx)
	if err != nil {
		return nil, err
	}
	includePrices := actor != nil && actor.IsElevated()
	return ToMaterialDTOs(materials, includePrices), nil
}

// GetMaterialLedger returns a page of ledger entries for one material,
// newest first.
func (s *MaterialService) GetMaterialLedger(ctx context.Context, query ListMaterialLogsQuery) ([]*MaterialLogDTO, int64, error) {
	material, err := s.findMaterial(ctx, query.MaterialID)
	if err != nil {
		return nil, 0, err
	}

	entries, total, err := s.logs.FindByMaterial(ctx, material.ID, query.Limit, query.Offset)
	if err != nil {
		return nil, 0, err
	}
	return ToMaterialLogDTOs(entries), total, nil
}

// findMaterial resolves an identifier that may be either a document ID
// or a material number.
func (s *MaterialService) findMaterial(ctx context.Context, id string) (*domain.Material, error) {
	var material *domain.Material
	var err error

	if objectID, parseErr := primitive.ObjectIDFromHex(id); parseErr == nil {
		material, err = s.materials.FindByID(ctx, objectID)
	} else {
		material, err = s.materials.FindByMaterialNo(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if material == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMaterialNotFound, id)
	}
	return material, nil
}
