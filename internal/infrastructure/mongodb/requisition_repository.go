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

const requisitionCollection = "requisitions"

// RequisitionRepository is the MongoDB implementation of
// domain.RequisitionRepository.
type RequisitionRepository struct {
	collection *mongo.Collection
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewRequisitionRepository creates a requisition repository and ensures its indexes
func NewRequisitionRepository(ctx context.Context, client *mongodb.Client, logger *logging.Logger, m *metrics.Metrics) (*RequisitionRepository, error) {
	r := &RequisitionRepository{
		collection: client.Collection(requisitionCollection),
		logger:     logger,
		metrics:    m,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create requisition indexes: %w", err)
	}
	return r, nil
}

func (r *RequisitionRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requisitionNo", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "applicantId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Insert stores a new requisition
func (r *RequisitionRepository) Insert(ctx context.Context, requisition *domain.Requisition) error {
	start := time.Now()

	if requisition.ID.IsZero() {
		requisition.ID = mongodb.GenerateID()
	}
	_, err := r.collection.InsertOne(ctx, requisition)
	r.observe(ctx, "insert", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert requisition: %w", err)
	}
	return nil
}

// FindByID fetches a requisition by document ID. Returns nil when absent.
func (r *RequisitionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Requisition, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByRequisitionNo fetches a requisition by its number. Returns nil when absent.
func (r *RequisitionRepository) FindByRequisitionNo(ctx context.Context, requisitionNo string) (*domain.Requisition, error) {
	return r.findOne(ctx, bson.M{"requisitionNo": requisitionNo})
}

func (r *RequisitionRepository) findOne(ctx context.Context, filter bson.M) (*domain.Requisition, error) {
	start := time.Now()

	var requisition domain.Requisition
	err := r.collection.FindOne(ctx, filter).Decode(&requisition)
	if err == mongo.ErrNoDocuments {
		r.observe(ctx, "findOne", start, nil)
		return nil, nil
	}
	r.observe(ctx, "findOne", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to find requisition: %w", err)
	}
	return &requisition, nil
}

// FindAll lists requisitions matching the filter, newest first
func (r *RequisitionRepository) FindAll(ctx context.Context, filter domain.RequisitionFilter, limit, offset int64) ([]*domain.Requisition, int64, error) {
	start := time.Now()

	query := bson.M{}
	if filter.ApplicantID != "" {
		query["applicantId"] = filter.ApplicantID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Department != "" {
		query["department"] = filter.Department
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.observe(ctx, "findAll", start, err)
		return nil, 0, fmt.Errorf("failed to count requisitions: %w", err)
	}

	opts := options.Find().SetSort(mongodb.SortDescending("createdAt"))
	if limit > 0 {
		opts.SetLimit(limit).SetSkip(offset)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.observe(ctx, "findAll", start, err)
		return nil, 0, fmt.Errorf("failed to find requisitions: %w", err)
	}
	defer cursor.Close(ctx)

	requisitions := make([]*domain.Requisition, 0)
	err = cursor.All(ctx, &requisitions)
	r.observe(ctx, "findAll", start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode requisitions: %w", err)
	}
	return requisitions, total, nil
}

// MarkCancelled flips the status to cancelled iff the stored document is
// still completed. Matching nothing means another cancel won the race;
// that surfaces as ErrInvalidState so the caller can reverse its
// restores.
func (r *RequisitionRepository) MarkCancelled(ctx context.Context, requisition *domain.Requisition) error {
	start := time.Now()

	update := bson.M{"$set": bson.M{
		"status":        domain.RequisitionStatusCancelled,
		"cancelledTime": requisition.CancelledTime,
		"cancelledBy":   requisition.CancelledBy,
		"cancelReason":  requisition.CancelReason,
		"updatedAt":     requisition.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": requisition.ID, "status": domain.RequisitionStatusCompleted},
		update,
	)
	r.observe(ctx, "markCancelled", start, err)
	if err != nil {
		return fmt.Errorf("failed to cancel requisition: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: requisition %s is no longer completed", domain.ErrInvalidState, requisition.RequisitionNo)
	}
	return nil
}

func (r *RequisitionRepository) observe(ctx context.Context, operation string, start time.Time, err error) {
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(requisitionCollection, operation, err == nil, duration)
	}
	if r.logger != nil {
		r.logger.DatabaseQuery(ctx, requisitionCollection, operation, duration, err == nil)
	}
}
