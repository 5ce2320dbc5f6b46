package application

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matdesk/requisition-service/internal/domain"
	"github.com/matdesk/requisition-service/pkg/identity"
	"github.com/matdesk/requisition-service/pkg/logging"
)

type materialFixture struct {
	materials *fakeMaterialRepo
	logs      *fakeLogRepo
	publisher *fakePublisher
	clock     *stepClock
	service   *MaterialService
}

func newMaterialFixture(t *testing.T) *materialFixture {
	t.Helper()

	f := &materialFixture{
		materials: newFakeMaterialRepo(),
		logs:      newFakeLogRepo(),
		publisher: &fakePublisher{},
		clock:     newStepClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
	}

	config := logging.DefaultConfig("requisition-service-test")
	config.Output = io.Discard
	f.service = NewMaterialService(
		f.materials, f.logs, f.publisher,
		f.clock, logging.New(config), nil,
	)
	return f
}

func createCmd(materialNo string, stock int64) CreateMaterialCommand {
	return CreateMaterialCommand{
		MaterialNo: materialNo,
		Name:       "Material " + materialNo,
		Category:   "consumables",
		Unit:       "pcs",
		Variants: []CreateVariantCommand{
			{VariantID: "default", Label: "Default", CostPrice: 250, SalePrice: 400, Stock: stock, SafetyStock: 3},
		},
		CreatedBy: manager(),
	}
}

func TestCreateMaterialRecordsOpeningStock(t *testing.T) {
	f := newMaterialFixture(t)

	dto, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 12))
	require.NoError(t, err)

	assert.Equal(t, "MAT-100", dto.MaterialNo)
	assert.Equal(t, "active", dto.Status)
	assert.Equal(t, int64(1), dto.Version)
	assert.Equal(t, int64(12), dto.TotalStock)
	require.Len(t, dto.Variants, 1)
	require.NotNil(t, dto.Variants[0].CostPrice)
	assert.Equal(t, int64(250), *dto.Variants[0].CostPrice)

	entries := f.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LogTypeIn, entries[0].Type)
	assert.Equal(t, int64(12), entries[0].Quantity)
	assert.Equal(t, int64(0), entries[0].BeforeStock)
	assert.Equal(t, int64(12), entries[0].AfterStock)
	assert.Equal(t, "initial stock", entries[0].Reason)
}

func TestCreateMaterialRejectsDuplicates(t *testing.T) {
	f := newMaterialFixture(t)

	_, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 5))
	require.NoError(t, err)

	_, err = f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 5))
	assert.ErrorIs(t, err, domain.ErrMaterialExists)
}

func TestCreateMaterialRequiresElevatedActor(t *testing.T) {
	f := newMaterialFixture(t)

	cmd := createCmd("MAT-100", 5)
	cmd.CreatedBy = applicant()
	_, err := f.service.CreateMaterial(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAdjustStockInbound(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	dto, err := f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID,
		VariantID:  "default",
		Direction:  AdjustDirectionIn,
		Quantity:   5,
		Reason:     "restock delivery",
		Actor:      manager(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), dto.TotalStock)
	assert.Equal(t, int64(2), dto.Version)

	entries := f.logs.all()
	require.Len(t, entries, 2)
	last := entries[1]
	assert.Equal(t, domain.LogTypeIn, last.Type)
	assert.Equal(t, int64(5), last.Quantity)
	assert.Equal(t, int64(10), last.BeforeStock)
	assert.Equal(t, int64(15), last.AfterStock)
	assert.Equal(t, "restock delivery", last.Reason)
	assert.Empty(t, last.RequisitionID)
}

func TestAdjustStockOutboundChecksAvailability(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	dto, err := f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID,
		VariantID:  "default",
		Direction:  AdjustDirectionOut,
		Quantity:   4,
		Reason:     "damaged in storage",
		Actor:      manager(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), dto.TotalStock)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID,
		VariantID:  "default",
		Direction:  AdjustDirectionOut,
		Quantity:   100,
		Actor:      manager(),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestAdjustStockPublishesLowStockAlert(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	// Safety stock is 3; dropping to 2 crosses the threshold
	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID,
		VariantID:  "default",
		Direction:  AdjustDirectionOut,
		Quantity:   8,
		Reason:     "bulk writeoff",
		Actor:      manager(),
	})
	require.NoError(t, err)
	require.Len(t, f.publisher.lowStock, 1)
	assert.Equal(t, "MAT-100/default", f.publisher.lowStock[0])
}

func TestAdjustStockValidation(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "default", Direction: "sideways", Quantity: 1, Actor: manager(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "default", Direction: AdjustDirectionIn, Quantity: 0, Actor: manager(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "missing", Direction: AdjustDirectionIn, Quantity: 1, Actor: manager(),
	})
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "default", Direction: AdjustDirectionIn, Quantity: 1, Actor: applicant(),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetMaterialStripsPricesForApplicants(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	dto, err := f.service.GetMaterial(context.Background(), GetMaterialQuery{MaterialID: created.ID}, applicant())
	require.NoError(t, err)
	require.Len(t, dto.Variants, 1)
	assert.Nil(t, dto.Variants[0].CostPrice)
	assert.Nil(t, dto.Variants[0].SalePrice)
	assert.Equal(t, int64(10), dto.Variants[0].Stock)

	// Lookup by material number works too
	dto, err = f.service.GetMaterial(context.Background(), GetMaterialQuery{MaterialID: "MAT-100"}, manager())
	require.NoError(t, err)
	assert.NotNil(t, dto.Variants[0].CostPrice)
}

func TestListMaterialsFilters(t *testing.T) {
	f := newMaterialFixture(t)
	_, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)
	_, err = f.service.CreateMaterial(context.Background(), createCmd("MAT-200", 10))
	require.NoError(t, err)

	list, total, err := f.service.ListMaterials(context.Background(), ListMaterialsQuery{Search: "MAT-200"}, manager())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "MAT-200", list[0].MaterialNo)
}

func TestListLowStock(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)
	_, err = f.service.CreateMaterial(context.Background(), createCmd("MAT-200", 10))
	require.NoError(t, err)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "default", Direction: AdjustDirectionOut,
		Quantity: 9, Reason: "writeoff", Actor: manager(),
	})
	require.NoError(t, err)

	low, err := f.service.ListLowStock(context.Background(), manager())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "MAT-100", low[0].MaterialNo)
	assert.True(t, low[0].Variants[0].LowStock)
}

func TestGetMaterialLedgerPages(t *testing.T) {
	f := newMaterialFixture(t)
	created, err := f.service.CreateMaterial(context.Background(), createCmd("MAT-100", 10))
	require.NoError(t, err)

	_, err = f.service.AdjustStock(context.Background(), AdjustStockCommand{
		MaterialID: created.ID, VariantID: "default", Direction: AdjustDirectionIn,
		Quantity: 2, Reason: "restock", Actor: manager(),
	})
	require.NoError(t, err)

	entries, total, err := f.service.GetMaterialLedger(context.Background(), ListMaterialLogsQuery{MaterialID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	var net int64
	for _, e := range entries {
		net += e.Quantity
	}
	assert.Equal(t, int64(12), net)
}

func TestGetMaterialNotFound(t *testing.T) {
	f := newMaterialFixture(t)
	_, err := f.service.GetMaterial(context.Background(), GetMaterialQuery{MaterialID: "MAT-404"}, &identity.Actor{ID: "u-1", Role: identity.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound)
}
