package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaterialStatus represents the lifecycle state of a material
type MaterialStatus string

const (
	MaterialStatusActive   MaterialStatus = "active"
	MaterialStatusInactive MaterialStatus = "inactive"
)

// Material is the aggregate root for a consumable material and its
// variants. Stock is mutated only through the conditional-update path
// keyed on the version counter; every committed mutation is paired with
// a MaterialLog entry.
type Material struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MaterialNo  string             `bson:"materialNo" json:"materialNo"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	Unit        string             `bson:"unit" json:"unit"`
	Status      MaterialStatus     `bson:"status" json:"status"`

	// version is the optimistic-concurrency token: compared on every
	// conditional write, incremented by exactly 1 per committed write.
	Version int64 `bson:"version" json:"version"`

	// totalStock is derived: always Σ variant.stock after a commit
	TotalStock int64 `bson:"totalStock" json:"totalStock"`

	Variants []Variant `bson:"variants" json:"variants"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Variant is a sellable/consumable variation of a material, embedded in
// the Material document. Prices are integer cents.
type Variant struct {
	VariantID   string `bson:"variantId" json:"variantId"`
	Label       string `bson:"label" json:"label"`
	CostPrice   int64  `bson:"costPrice" json:"costPrice"`
	SalePrice   int64  `bson:"salePrice" json:"salePrice"`
	Stock       int64  `bson:"stock" json:"stock"`
	SafetyStock int64  `bson:"safetyStock" json:"safetyStock"`
	ImageURL    string `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

// IsLowStock reports whether the variant is at or below its reorder threshold
func (v *Variant) IsLowStock() bool {
	return v.Stock <= v.SafetyStock
}

// NewMaterial creates a new Material with its variants
func NewMaterial(materialNo, name, unit string, variants []Variant) *Material {
	now := time.Now().UTC()
	m := &Material{
		MaterialNo: materialNo,
		Name:       name,
		Unit:       unit,
		Status:     MaterialStatusActive,
		Version:    1,
		Variants:   variants,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.RecomputeTotalStock()
	return m
}

// FindVariant returns the variant with the given ID, or nil if absent
func (m *Material) FindVariant(variantID string) *Variant {
	for idx := range m.Variants {
		if m.Variants[idx].VariantID == variantID {
			return &m.Variants[idx]
		}
	}
	return nil
}

// RecomputeTotalStock rebuilds the cached totalStock from the variants
func (m *Material) RecomputeTotalStock() {
	var total int64
	for _, v := range m.Variants {
		total += v.Stock
	}
	m.TotalStock = total
}

// IsActive reports whether the material accepts new requisitions
func (m *Material) IsActive() bool {
	return m.Status == MaterialStatusActive
}

// CheckAvailability verifies that the named variant can supply the
// requested quantity. The returned error carries the current stock and
// the requested quantity so callers can re-prompt.
func (m *Material) CheckAvailability(variantID string, quantity int64) (*Variant, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidQuantity, quantity)
	}

	variant := m.FindVariant(variantID)
	if variant == nil {
		return nil, fmt.Errorf("%w: variant %s of material %s", ErrVariantNotFound, variantID, m.MaterialNo)
	}

	if variant.Stock < quantity {
		return nil, fmt.Errorf("%w: material %s variant %s has %d in stock, %d requested",
			ErrInsufficientStock, m.Name, variantID, variant.Stock, quantity)
	}

	return variant, nil
}

// LowStockVariants returns the variants at or below their safety stock
func (m *Material) LowStockVariants() []Variant {
	low := make([]Variant, 0)
	for _, v := range m.Variants {
		if v.IsLowStock() {
			low = append(low, v)
		}
	}
	return low
}
