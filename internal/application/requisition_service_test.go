package application

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/matdesk/requisition-service/internal/domain"
	"github.com/matdesk/requisition-service/pkg/identity"
	"github.com/matdesk/requisition-service/pkg/logging"
)

type requisitionFixture struct {
	materials    *fakeMaterialRepo
	logs         *fakeLogRepo
	requisitions *fakeRequisitionRepo
	publisher    *fakePublisher
	clock        *stepClock
	service      *RequisitionService
}

func newRequisitionFixture(t *testing.T) *requisitionFixture {
	t.Helper()

	f := &requisitionFixture{
		materials:    newFakeMaterialRepo(),
		logs:         newFakeLogRepo(),
		requisitions: newFakeRequisitionRepo(),
		publisher:    &fakePublisher{},
		clock:        newStepClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
	}

	config := logging.DefaultConfig("requisition-service-test")
	config.Output = io.Discard
	f.service = NewRequisitionService(
		f.materials, f.logs, f.requisitions, f.publisher,
		f.clock, logging.New(config), nil,
	)
	return f
}

func (f *requisitionFixture) seedMaterial(t *testing.T, materialNo string, stock, safetyStock int64) *domain.Material {
	t.Helper()
	material := domain.NewMaterial(materialNo, "Material "+materialNo, "pcs", []domain.Variant{
		{VariantID: "default", Label: "Default", CostPrice: 250, SalePrice: 400, Stock: stock, SafetyStock: safetyStock},
	})
	require.NoError(t, f.materials.Save(context.Background(), material))
	return material
}

func applicant() *identity.Actor {
	return &identity.Actor{ID: "u-100", Name: "Dana", Role: identity.RoleApplicant, Department: "facilities"}
}

func manager() *identity.Actor {
	return &identity.Actor{ID: "u-900", Name: "Morgan", Role: identity.RoleManager}
}

func TestSubmitDecrementsStockAndWritesLedger(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	m2 := f.seedMaterial(t, "MAT-002", 20, 2)

	dto, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 3},
			{MaterialID: m2.ID.Hex(), VariantID: "default", Quantity: 5},
		},
		Applicant: applicant(),
		TicketRef: "TICKET-77",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), f.materials.stock(m1.ID, "default"))
	assert.Equal(t, int64(15), f.materials.stock(m2.ID, "default"))
	assert.Equal(t, int64(2), f.materials.version(m1.ID))
	assert.Equal(t, int64(2), f.materials.version(m2.ID))

	assert.Equal(t, "completed", dto.Status)
	assert.Equal(t, int64(8), dto.TotalQuantity)
	assert.Regexp(t, `^RQ\d{14}[0-9a-f]{6}$`, dto.RequisitionNo)
	require.NotNil(t, dto.CanCancelBefore)
	assert.Equal(t, f.clock.Now().Add(domain.CancelWindow), *dto.CanCancelBefore)

	entries := f.logs.all()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, domain.LogTypeOut, entry.Type)
		assert.Equal(t, dto.RequisitionNo, entry.RequisitionID)
		assert.Equal(t, "TICKET-77", entry.TicketRef)
		assert.Equal(t, entry.BeforeStock+entry.Quantity, entry.AfterStock)
	}
	assert.Equal(t, int64(-3), entries[0].Quantity)
	assert.Equal(t, int64(10), entries[0].BeforeStock)
	assert.Equal(t, int64(7), entries[0].AfterStock)

	require.Len(t, f.publisher.submitted, 1)
}

func TestSubmitHidesPricesFromApplicants(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)

	dto, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 2}},
		Applicant: applicant(),
	})
	require.NoError(t, err)

	assert.Nil(t, dto.TotalAmount)
	require.Len(t, dto.Items, 1)
	assert.Nil(t, dto.Items[0].CostPrice)
	assert.Nil(t, dto.Items[0].SalePrice)
	assert.Nil(t, dto.Items[0].Subtotal)

	// Persisted snapshot still carries the prices
	stored, err := f.requisitions.FindByRequisitionNo(context.Background(), dto.RequisitionNo)
	require.NoError(t, err)
	assert.Equal(t, int64(400*2), stored.TotalAmount)
	assert.Equal(t, int64(250), stored.Items[0].CostPrice)
}

func TestSubmitRejectsEmptyAndNonPositiveLines(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{Applicant: applicant()})
	assert.ErrorIs(t, err, domain.ErrEmptyItems)

	_, err = f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 0}},
		Applicant: applicant(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: -4}},
		Applicant: applicant(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	assert.Equal(t, int64(10), f.materials.stock(m.ID, "default"))
	assert.Empty(t, f.logs.all())
}

func TestSubmitInsufficientStockReversesEarlierLines(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	m2 := f.seedMaterial(t, "MAT-002", 1, 0)

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 4},
			{MaterialID: m2.ID.Hex(), VariantID: "default", Quantity: 5},
		},
		Applicant: applicant(),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	// First line was applied and must be reversed in full
	assert.Equal(t, int64(10), f.materials.stock(m1.ID, "default"))
	assert.Equal(t, int64(1), f.materials.stock(m2.ID, "default"))

	// Nothing reached the ledger and no requisition exists
	assert.Empty(t, f.logs.all())
	reqs, _, err := f.requisitions.FindAll(context.Background(), domain.RequisitionFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Empty(t, f.publisher.submitted)
}

func TestSubmitUnknownMaterialReversesEarlierLines(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 4},
			{MaterialID: primitive.NewObjectID().Hex(), VariantID: "default", Quantity: 1},
		},
		Applicant: applicant(),
	})
	require.ErrorIs(t, err, domain.ErrMaterialNotFound)

	assert.Equal(t, int64(10), f.materials.stock(m1.ID, "default"))
	assert.Empty(t, f.logs.all())
}

func TestSubmitVersionConflictAborts(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	m2 := f.seedMaterial(t, "MAT-002", 10, 2)
	f.materials.mu.Lock()
	f.materials.forceConflicts[m2.ID] = 1
	f.materials.mu.Unlock()

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 4},
			{MaterialID: m2.ID.Hex(), VariantID: "default", Quantity: 4},
		},
		Applicant: applicant(),
	})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	assert.Equal(t, int64(10), f.materials.stock(m1.ID, "default"))
	assert.Equal(t, int64(10), f.materials.stock(m2.ID, "default"))
	assert.Empty(t, f.logs.all())
}

func TestSubmitLedgerFailureReversesAndPairsEntries(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	m2 := f.seedMaterial(t, "MAT-002", 20, 2)
	f.logs.failAfter = 1
	f.logs.failErr = context.DeadlineExceeded

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 3},
			{MaterialID: m2.ID.Hex(), VariantID: "default", Quantity: 5},
		},
		Applicant: applicant(),
	})
	require.Error(t, err)

	assert.Equal(t, int64(10), f.materials.stock(m1.ID, "default"))
	assert.Equal(t, int64(20), f.materials.stock(m2.ID, "default"))

	// The out entry that made it onto the ledger is paired with a
	// reversing in entry, netting to zero
	assert.Equal(t, int64(0), f.logs.netDelta(m1.ID, "default"))
	assert.Equal(t, int64(0), f.logs.netDelta(m2.ID, "default"))

	reqs, _, _ := f.requisitions.FindAll(context.Background(), domain.RequisitionFilter{}, 0, 0)
	assert.Empty(t, reqs)
}

func TestSubmitInsertFailureReversesEverything(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	f.requisitions.insertErr = context.DeadlineExceeded

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 3}},
		Applicant: applicant(),
	})
	require.Error(t, err)

	assert.Equal(t, int64(10), f.materials.stock(m1.ID, "default"))
	assert.Equal(t, int64(0), f.logs.netDelta(m1.ID, "default"))
	assert.Empty(t, f.publisher.submitted)
}

func TestSubmitInactiveMaterialRejected(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	f.materials.mu.Lock()
	f.materials.materials[m.ID].Status = domain.MaterialStatusInactive
	f.materials.mu.Unlock()

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 1}},
		Applicant: applicant(),
	})
	assert.ErrorIs(t, err, domain.ErrMaterialInactive)
}

func TestSubmitPublishesLowStockAlert(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 6)

	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 5}},
		Applicant: applicant(),
	})
	require.NoError(t, err)
	require.Len(t, f.publisher.lowStock, 1)
	assert.Equal(t, "MAT-001/default", f.publisher.lowStock[0])
}

func TestConcurrentSubmitsNeverOversell(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = f.service.Submit(context.Background(), SubmitRequisitionCommand{
				Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 6}},
				Applicant: applicant(),
			})
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		}
	}

	final := f.materials.stock(m.ID, "default")
	assert.GreaterOrEqual(t, final, int64(0))
	assert.Equal(t, int64(10)-int64(successes)*6, final)
	assert.LessOrEqual(t, successes, 1)
}

func submitOne(t *testing.T, f *requisitionFixture, m *domain.Material, quantity int64) *RequisitionDTO {
	t.Helper()
	dto, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: quantity}},
		Applicant: applicant(),
	})
	require.NoError(t, err)
	return dto
}

func TestCancelRestoresStockAndFlipsStatus(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)
	f.clock.Advance(2 * time.Minute)

	cancelled, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{
		RequisitionID: dto.ID,
		Actor:         applicant(),
		Reason:        "wrong variant",
	})
	require.NoError(t, err)

	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "wrong variant", cancelled.CancelReason)
	assert.Equal(t, "u-100", cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancelledTime)

	assert.Equal(t, int64(10), f.materials.stock(m.ID, "default"))
	assert.Equal(t, int64(0), f.logs.netDelta(m.ID, "default"))

	entries, err := f.logs.FindByRequisition(context.Background(), dto.RequisitionNo)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LogTypeOut, entries[0].Type)
	assert.Equal(t, domain.LogTypeIn, entries[1].Type)
	assert.Equal(t, int64(6), entries[1].BeforeStock)
	assert.Equal(t, int64(10), entries[1].AfterStock)

	require.Len(t, f.publisher.cancelled, 1)
}

func TestCancelDefaultsReason(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 1)

	cancelled, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{
		RequisitionID: dto.ID,
		Actor:         applicant(),
	})
	require.NoError(t, err)
	assert.Equal(t, "cancelled by u-100", cancelled.CancelReason)
}

func TestCancelSecondAttemptIsInvalidState(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Stock restored exactly once
	assert.Equal(t, int64(10), f.materials.stock(m.ID, "default"))
}

func TestCancelAfterWindowExpires(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	f.clock.Advance(domain.CancelWindow + time.Second)

	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	assert.ErrorIs(t, err, domain.ErrWindowExpired)
	assert.Equal(t, int64(6), f.materials.stock(m.ID, "default"))
}

func TestCancelLegacyRecordsUseDayWindow(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	// Strip the explicit deadline to simulate a record that predates it
	id, err := primitive.ObjectIDFromHex(dto.ID)
	require.NoError(t, err)
	f.requisitions.mu.Lock()
	f.requisitions.requisitions[id].CanCancelBefore = time.Time{}
	f.requisitions.mu.Unlock()

	f.clock.Advance(20 * time.Hour)
	_, err = f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.materials.stock(m.ID, "default"))
}

func TestCancelLegacyRecordsExpireAfterDay(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	id, err := primitive.ObjectIDFromHex(dto.ID)
	require.NoError(t, err)
	f.requisitions.mu.Lock()
	f.requisitions.requisitions[id].CanCancelBefore = time.Time{}
	f.requisitions.mu.Unlock()

	f.clock.Advance(25 * time.Hour)
	_, err = f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	assert.ErrorIs(t, err, domain.ErrWindowExpired)
}

func TestCancelForbiddenForOtherApplicant(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	other := &identity.Actor{ID: "u-200", Role: identity.RoleApplicant}
	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: other})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, int64(6), f.materials.stock(m.ID, "default"))
}

func TestCancelAllowedForManager(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)

	cancelled, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: manager()})
	require.NoError(t, err)
	assert.Equal(t, "u-900", cancelled.CancelledBy)
	// Managers see the money fields
	assert.NotNil(t, cancelled.TotalAmount)
}

func TestCancelSkipsMissingMaterialLines(t *testing.T) {
	f := newRequisitionFixture(t)
	m1 := f.seedMaterial(t, "MAT-001", 10, 2)
	m2 := f.seedMaterial(t, "MAT-002", 20, 2)

	dto, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items: []RequisitionLine{
			{MaterialID: m1.ID.Hex(), VariantID: "default", Quantity: 3},
			{MaterialID: m2.ID.Hex(), VariantID: "default", Quantity: 5},
		},
		Applicant: applicant(),
	})
	require.NoError(t, err)

	f.materials.delete(m1.ID)

	cancelled, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, int64(20), f.materials.stock(m2.ID, "default"))

	entries, err := f.logs.FindByRequisition(context.Background(), dto.RequisitionNo)
	require.NoError(t, err)
	// Two out entries from submit, one in entry for the surviving line
	require.Len(t, entries, 3)
}

func TestCancelLostStatusRaceReversesRestores(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)
	f.requisitions.forceFlipLost = true

	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// The restore was reversed: checkout state stands
	assert.Equal(t, int64(6), f.materials.stock(m.ID, "default"))
	assert.Equal(t, int64(-4), f.logs.netDelta(m.ID, "default"))

	id, parseErr := primitive.ObjectIDFromHex(dto.ID)
	require.NoError(t, parseErr)
	assert.Equal(t, domain.RequisitionStatusCompleted, f.requisitions.stored(id).Status)
	assert.Empty(t, f.publisher.cancelled)
}

func TestCancelLostRaceWithConsumedRestoreNeverGoesNegative(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 6)

	// Between the restores and the status flip, another checkout
	// consumes most of the restored units, then the flip loses its race
	f.requisitions.forceFlipLost = true
	f.requisitions.flipHook = func() {
		version := f.materials.version(m.ID)
		_, err := f.materials.ConditionalUpdateStock(context.Background(), m.ID, version,
			[]domain.VariantMutation{{VariantID: "default", Delta: -9}})
		require.NoError(t, err)
	}

	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// The -6 reversal is no longer covered; it stays uncommitted instead
	// of driving the variant below zero
	stock := f.materials.stock(m.ID, "default")
	assert.Equal(t, int64(1), stock)
	assert.GreaterOrEqual(t, stock, int64(0))

	// Checkout and restore stay paired on the ledger; the uncommitted
	// inverse appended nothing
	assert.Equal(t, int64(0), f.logs.netDelta(m.ID, "default"))
	assert.Len(t, f.logs.all(), 2)

	id, parseErr := primitive.ObjectIDFromHex(dto.ID)
	require.NoError(t, parseErr)
	assert.Equal(t, domain.RequisitionStatusCompleted, f.requisitions.stored(id).Status)
}

func TestGetRequisitionVisibility(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 2)

	got, err := f.service.GetRequisition(context.Background(), GetRequisitionQuery{RequisitionID: dto.ID, Actor: applicant()})
	require.NoError(t, err)
	assert.Equal(t, dto.RequisitionNo, got.RequisitionNo)
	assert.Nil(t, got.TotalAmount)

	got, err = f.service.GetRequisition(context.Background(), GetRequisitionQuery{RequisitionID: dto.RequisitionNo, Actor: manager()})
	require.NoError(t, err)
	assert.NotNil(t, got.TotalAmount)

	other := &identity.Actor{ID: "u-200", Role: identity.RoleApplicant}
	_, err = f.service.GetRequisition(context.Background(), GetRequisitionQuery{RequisitionID: dto.ID, Actor: other})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListRequisitionsPinsApplicants(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 100, 2)
	submitOne(t, f, m, 2)

	otherActor := &identity.Actor{ID: "u-300", Name: "Riley", Role: identity.RoleApplicant}
	_, err := f.service.Submit(context.Background(), SubmitRequisitionCommand{
		Items:     []RequisitionLine{{MaterialID: m.ID.Hex(), VariantID: "default", Quantity: 1}},
		Applicant: otherActor,
	})
	require.NoError(t, err)

	// An applicant only sees their own records even when filtering wider
	list, total, err := f.service.ListRequisitions(context.Background(), ListRequisitionsQuery{Actor: applicant()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "u-100", list[0].ApplicantID)

	// Managers see everything
	_, total, err = f.service.ListRequisitions(context.Background(), ListRequisitionsQuery{Actor: manager()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestGetRequisitionLedger(t *testing.T) {
	f := newRequisitionFixture(t)
	m := f.seedMaterial(t, "MAT-001", 10, 2)
	dto := submitOne(t, f, m, 4)
	_, err := f.service.Cancel(context.Background(), CancelRequisitionCommand{RequisitionID: dto.ID, Actor: applicant()})
	require.NoError(t, err)

	entries, err := f.service.GetRequisitionLedger(context.Background(), dto.RequisitionNo, applicant())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "out", entries[0].Type)
	assert.Equal(t, "in", entries[1].Type)
}
