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

const materialLogCollection = "material_logs"

// MaterialLogRepository is the MongoDB implementation of
// domain.MaterialLogRepository. The collection is append-only: the only
// write is InsertOne, there is no update or delete path.
type MaterialLogRepository struct {
	collection *mongo.Collection
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewMaterialLogRepository creates a ledger repository and ensures its indexes
func NewMaterialLogRepository(ctx context.Context, client *mongodb.Client, logger *logging.Logger, m *metrics.Metrics) (*MaterialLogRepository, error) {
	r := &MaterialLogRepository{
		collection: client.Collection(materialLogCollection),
		logger:     logger,
		metrics:    m,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create material log indexes: %w", err)
	}
	return r, nil
}

func (r *MaterialLogRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "materialId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "requisitionId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Append inserts one ledger entry
func (r *MaterialLogRepository) Append(ctx context.Context, entry *domain.MaterialLog) error {
	start := time.Now()

	if entry.ID.IsZero() {
		entry.ID = mongodb.GenerateID()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	r.observe(ctx, "append", start, err)
	if err != nil {
		return fmt.Errorf("failed to append material log: %w", err)
	}
	return nil
}

// FindByMaterial lists ledger entries for a material, newest first
func (r *MaterialLogRepository) FindByMaterial(ctx context.Context, materialID primitive.ObjectID, limit, offset int64) ([]*domain.MaterialLog, int64, error) {
	start := time.Now()
	query := bson.M{"materialId": materialID}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.observe(ctx, "findByMaterial", start, err)
		return nil, 0, fmt.Errorf("failed to count material logs: %w", err)
	}

	opts := options.Find().SetSort(mongodb.SortDescending("createdAt"))
	if limit > 0 {
		opts.SetLimit(limit).SetSkip(offset)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.observe(ctx, "findByMaterial", start, err)
		return nil, 0, fmt.Errorf("failed to find material logs: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*domain.MaterialLog, 0)
	err = cursor.All(ctx, &entries)
	r.observe(ctx, "findByMaterial", start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode material logs: %w", err)
	}
	return entries, total, nil
}

// FindByRequisition lists the ledger entries correlated to one
// requisition in append order.
func (r *MaterialLogRepository) FindByRequisition(ctx context.Context, requisitionNo string) ([]*domain.MaterialLog, error) {
	start := time.Now()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"requisitionId": requisitionNo}, opts)
	if err != nil {
		r.observe(ctx, "findByRequisition", start, err)
		return nil, fmt.Errorf("failed to find material logs: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*domain.MaterialLog, 0)
	err = cursor.All(ctx, &entries)
	r.observe(ctx, "findByRequisition", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode material logs: %w", err)
	}
	return entries, nil
}

func (r *MaterialLogRepository) observe(ctx context.Context, operation string, start time.Time, err error) {
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(materialLogCollection, operation, err == nil, duration)
	}
	if r.logger != nil {
		r.logger.DatabaseQuery(ctx, materialLogCollection, operation, duration, err == nil)
	}
}
