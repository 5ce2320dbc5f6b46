package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matdesk/requisition-service/internal/domain"
	"github.com/matdesk/requisition-service/pkg/logging"
	"github.com/matdesk/requisition-service/pkg/metrics"
	"github.com/matdesk/requisition-service/pkg/mongodb"
)

const materialCollection = "materials"

// MaterialRepository is the MongoDB implementation of
// domain.MaterialRepository. Stock writes go through a single
// conditional UpdateOne filtered on {_id, version}, so a write either
// applies all its variant deltas plus the version bump or touches
// nothing.
type MaterialRepository struct {
	collection *mongo.Collection
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewMaterialRepository creates a material repository and ensures its indexes
func NewMaterialRepository(ctx context.Context, client *mongodb.Client, logger *logging.Logger, m *metrics.Metrics) (*MaterialRepository, error) {
	r := &MaterialRepository{
		collection: client.Collection(materialCollection),
		logger:     logger,
		metrics:    m,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create material indexes: %w", err)
	}
	return r, nil
}

func (r *MaterialRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "materialNo", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "variants.variantId", Value: 1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Save inserts or fully replaces a material document
func (r *MaterialRepository) Save(ctx context.Context, material *domain.Material) error {
	start := time.Now()
	material.UpdatedAt = mongodb.Now()

	var err error
	if material.ID.IsZero() {
		material.ID = mongodb.GenerateID()
		_, err = r.collection.InsertOne(ctx, material)
	} else {
		_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": material.ID}, material)
	}

	r.observe(ctx, "save", start, err)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", domain.ErrMaterialExists, material.MaterialNo)
	}
	if err != nil {
		return fmt.Errorf("failed to save material: %w", err)
	}
	return nil
}

// FindByID fetches a material by document ID. Returns nil when absent.
func (r *MaterialRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Material, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByMaterialNo fetches a material by its number. Returns nil when absent.
func (r *MaterialRepository) FindByMaterialNo(ctx context.Context, materialNo string) (*domain.Material, error) {
	return r.findOne(ctx, bson.M{"materialNo": materialNo})
}

func (r *MaterialRepository) findOne(ctx context.Context, filter bson.M) (*domain.Material, error) {
	start := time.Now()

	var material domain.Material
	err := r.collection.FindOne(ctx, filter).Decode(&material)
	if err == mongo.ErrNoDocuments {
		r.observe(ctx, "findOne", start, nil)
		return nil, nil
	}
	r.observe(ctx, "findOne", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	return &material, nil
}

// FindAll lists materials matching the filter with pagination
func (r *MaterialRepository) FindAll(ctx context.Context, filter domain.MaterialFilter, limit, offset int64) ([]*domain.Material, int64, error) {
	start := time.Now()

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Search != "" {
		query["$or"] = bson.A{
			bson.M{"materialNo": mongodb.CaseInsensitiveRegex(filter.Search)},
			bson.M{"name": mongodb.CaseInsensitiveRegex(filter.Search)},
		}
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.observe(ctx, "findAll", start, err)
		return nil, 0, fmt.Errorf("failed to count materials: %w", err)
	}

	opts := options.Find().SetSort(mongodb.SortAscending("materialNo"))
	if limit > 0 {
		opts.SetLimit(limit).SetSkip(offset)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.observe(ctx, "findAll", start, err)
		return nil, 0, fmt.Errorf("failed to find materials: %w", err)
	}
	defer cursor.Close(ctx)

	materials := make([]*domain.Material, 0)
	err = cursor.All(ctx, &materials)
	r.observe(ctx, "findAll", start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode materials: %w", err)
	}
	return materials, total, nil
}

// FindLowStock lists materials with at least one variant at or below its
// safety stock.
func (r *MaterialRepository) FindLowStock(ctx context.Context) ([]*domain.Material, error) {
	start := time.Now()

	query := bson.M{
		"status": domain.MaterialStatusActive,
		"$expr": bson.M{"$anyElementTrue": bson.M{"$map": bson.M{
			"input": "$variants",
			"as":    "v",
			"in":    bson.M{"$lte": bson.A{"$$v.stock", "$$v.safetyStock"}},
		}}},
	}
	cursor, err := r.collection.Find(ctx, query)
	if err != nil {
		r.observe(ctx, "findLowStock", start, err)
		return nil, fmt.Errorf("failed to find low stock materials: %w", err)
	}
	defer cursor.Close(ctx)

	materials := make([]*domain.Material, 0)
	err = cursor.All(ctx, &materials)
	r.observe(ctx, "findLowStock", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode materials: %w", err)
	}
	return materials, nil
}

// ConditionalUpdateStock applies the variant deltas and the derived
// totalStock change in one UpdateOne filtered on the expected version.
// Matching nothing means the version is stale (or the document is gone)
// and maps to ErrVersionConflict; the caller retries from a fresh read.
func (r *MaterialRepository) ConditionalUpdateStock(ctx context.Context, id primitive.ObjectID, expectedVersion int64, mutations []domain.VariantMutation) (int64, error) {
	if len(mutations) == 0 {
		return 0, fmt.Errorf("%w: no mutations", domain.ErrInvalidQuantity)
	}

	start := time.Now()

	inc := bson.M{"version": int64(1)}
	arrayFilters := make([]interface{}, 0, len(mutations))
	var totalDelta int64
	for i, mut := range mutations {
		key := fmt.Sprintf("v%d", i)
		inc[fmt.Sprintf("variants.$[%s].stock", key)] = mut.Delta
		arrayFilters = append(arrayFilters, bson.M{key + ".variantId": mut.VariantID})
		totalDelta += mut.Delta
	}
	inc["totalStock"] = totalDelta

	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"updatedAt": mongodb.Now()},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		update, opts,
	)
	r.observe(ctx, "conditionalUpdateStock", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to update stock: %w", err)
	}
	if result.MatchedCount == 0 {
		return 0, fmt.Errorf("%w: material %s expected version %d", domain.ErrVersionConflict, id.Hex(), expectedVersion)
	}

	return expectedVersion + 1, nil
}

func (r *MaterialRepository) observe(ctx context.Context, operation string, start time.Time, err error) {
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(materialCollection, operation, err == nil, duration)
	}
	if r.logger != nil {
		r.logger.DatabaseQuery(ctx, materialCollection, operation, duration, err == nil)
	}
}
