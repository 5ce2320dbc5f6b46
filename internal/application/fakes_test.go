package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/matdesk/requisition-service/internal/domain"
)

// stepClock is a mutable test clock
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeMaterialRepo is an in-memory MaterialRepository with real
// optimistic-concurrency semantics on ConditionalUpdateStock.
type fakeMaterialRepo struct {
	mu        sync.Mutex
	materials map[primitive.ObjectID]*domain.Material

	findErr error
	// forceConflicts[id] makes that many conditional updates on the
	// material fail with a version conflict
	forceConflicts map[primitive.ObjectID]int
}

func newFakeMaterialRepo() *fakeMaterialRepo {
	return &fakeMaterialRepo{
		materials:      make(map[primitive.ObjectID]*domain.Material),
		forceConflicts: make(map[primitive.ObjectID]int),
	}
}

func (r *fakeMaterialRepo) Save(ctx context.Context, material *domain.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if material.ID.IsZero() {
		material.ID = primitive.NewObjectID()
	}
	r.materials[material.ID] = cloneMaterial(material)
	return nil
}

func (r *fakeMaterialRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	m, ok := r.materials[id]
	if !ok {
		return nil, nil
	}
	return cloneMaterial(m), nil
}

func (r *fakeMaterialRepo) FindByMaterialNo(ctx context.Context, materialNo string) (*domain.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.materials {
		if m.MaterialNo == materialNo {
			return cloneMaterial(m), nil
		}
	}
	return nil, nil
}

func (r *fakeMaterialRepo) FindAll(ctx context.Context, filter domain.MaterialFilter, limit, offset int64) ([]*domain.Material, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Material, 0)
	for _, m := range r.materials {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Category != "" && m.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(m.Name, filter.Search) && !strings.Contains(m.MaterialNo, filter.Search) {
			continue
		}
		out = append(out, cloneMaterial(m))
	}
	return out, int64(len(out)), nil
}

func (r *fakeMaterialRepo) FindLowStock(ctx context.Context) ([]*domain.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Material, 0)
	for _, m := range r.materials {
		if len(m.LowStockVariants()) > 0 {
			out = append(out, cloneMaterial(m))
		}
	}
	return out, nil
}

func (r *fakeMaterialRepo) ConditionalUpdateStock(ctx context.Context, id primitive.ObjectID, expectedVersion int64, mutations []domain.VariantMutation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remaining, ok := r.forceConflicts[id]; ok && remaining > 0 {
		r.forceConflicts[id] = remaining - 1
		return 0, domain.ErrVersionConflict
	}

	m, ok := r.materials[id]
	if !ok {
		return 0, domain.ErrMaterialNotFound
	}
	if m.Version != expectedVersion {
		return 0, domain.ErrVersionConflict
	}

	for _, mut := range mutations {
		variant := m.FindVariant(mut.VariantID)
		if variant == nil {
			return 0, domain.ErrVariantNotFound
		}
		variant.Stock += mut.Delta
	}
	m.RecomputeTotalStock()
	m.Version++
	return m.Version, nil
}

func (r *fakeMaterialRepo) stock(id primitive.ObjectID, variantID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materials[id].FindVariant(variantID).Stock
}

func (r *fakeMaterialRepo) version(id primitive.ObjectID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materials[id].Version
}

func (r *fakeMaterialRepo) delete(id primitive.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.materials, id)
}

func cloneMaterial(m *domain.Material) *domain.Material {
	clone := *m
	clone.Variants = make([]domain.Variant, len(m.Variants))
	copy(clone.Variants, m.Variants)
	return &clone
}

// fakeLogRepo is an in-memory append-only MaterialLogRepository
type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*domain.MaterialLog

	// failAfter makes Append fail once that many entries exist; -1 disables
	failAfter int
	failErr   error
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{failAfter: -1}
}

func (r *fakeLogRepo) Append(ctx context.Context, entry *domain.MaterialLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter >= 0 && len(r.entries) >= r.failAfter {
		r.failAfter = -1
		return r.failErr
	}
	clone := *entry
	clone.ID = primitive.NewObjectID()
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeLogRepo) FindByMaterial(ctx context.Context, materialID primitive.ObjectID, limit, offset int64) ([]*domain.MaterialLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.MaterialLog, 0)
	for _, e := range r.entries {
		if e.MaterialID == materialID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeLogRepo) FindByRequisition(ctx context.Context, requisitionNo string) ([]*domain.MaterialLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.MaterialLog, 0)
	for _, e := range r.entries {
		if e.RequisitionID == requisitionNo {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) all() []*domain.MaterialLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.MaterialLog, len(r.entries))
	copy(out, r.entries)
	return out
}

// netDelta sums the signed quantities of all entries for one variant
func (r *fakeLogRepo) netDelta(materialID primitive.ObjectID, variantID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var net int64
	for _, e := range r.entries {
		if e.MaterialID == materialID && e.VariantID == variantID {
			net += e.Quantity
		}
	}
	return net
}

// fakeRequisitionRepo is an in-memory RequisitionRepository with a
// conditional status flip.
type fakeRequisitionRepo struct {
	mu           sync.Mutex
	requisitions map[primitive.ObjectID]*domain.Requisition

	insertErr error
	// forceFlipLost makes the next MarkCancelled behave as a lost race
	forceFlipLost bool
	// flipHook runs once before the next MarkCancelled evaluates the
	// status, simulating a writer that slips in between the restores
	// and the flip
	flipHook func()
}

func newFakeRequisitionRepo() *fakeRequisitionRepo {
	return &fakeRequisitionRepo{requisitions: make(map[primitive.ObjectID]*domain.Requisition)}
}

func (r *fakeRequisitionRepo) Insert(ctx context.Context, requisition *domain.Requisition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if requisition.ID.IsZero() {
		requisition.ID = primitive.NewObjectID()
	}
	clone := *requisition
	r.requisitions[requisition.ID] = &clone
	return nil
}

func (r *fakeRequisitionRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requisitions[id]
	if !ok {
		return nil, nil
	}
	clone := *req
	return &clone, nil
}

func (r *fakeRequisitionRepo) FindByRequisitionNo(ctx context.Context, requisitionNo string) (*domain.Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requisitions {
		if req.RequisitionNo == requisitionNo {
			clone := *req
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeRequisitionRepo) FindAll(ctx context.Context, filter domain.RequisitionFilter, limit, offset int64) ([]*domain.Requisition, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Requisition, 0)
	for _, req := range r.requisitions {
		if filter.ApplicantID != "" && req.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Department != "" && req.Department != filter.Department {
			continue
		}
		clone := *req
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (r *fakeRequisitionRepo) MarkCancelled(ctx context.Context, requisition *domain.Requisition) error {
	r.mu.Lock()
	hook := r.flipHook
	r.flipHook = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requisitions[requisition.ID]
	if !ok {
		return domain.ErrRequisitionNotFound
	}
	if r.forceFlipLost || stored.Status != domain.RequisitionStatusCompleted {
		r.forceFlipLost = false
		return domain.ErrInvalidState
	}
	clone := *requisition
	r.requisitions[requisition.ID] = &clone
	return nil
}

func (r *fakeRequisitionRepo) stored(id primitive.ObjectID) *domain.Requisition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requisitions[id]
}

// fakePublisher records published events
type fakePublisher struct {
	mu        sync.Mutex
	submitted []*domain.Requisition
	cancelled []*domain.Requisition
	lowStock  []string
}

func (p *fakePublisher) PublishRequisitionSubmitted(ctx context.Context, requisition *domain.Requisition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, requisition)
}

func (p *fakePublisher) PublishRequisitionCancelled(ctx context.Context, requisition *domain.Requisition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, requisition)
}

func (p *fakePublisher) PublishLowStock(ctx context.Context, material *domain.Material, variant *domain.Variant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lowStock = append(p.lowStock, material.MaterialNo+"/"+variant.VariantID)
}
