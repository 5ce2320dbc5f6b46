package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/matdesk/requisition-service/internal/domain"
	"github.com/matdesk/requisition-service/pkg/kafka"
	"github.com/matdesk/requisition-service/pkg/logging"
	"github.com/matdesk/requisition-service/pkg/metrics"
	"github.com/matdesk/requisition-service/pkg/resilience"
)

// Event types emitted by the service
const (
	EventTypeRequisitionSubmitted = "requisition.submitted"
	EventTypeRequisitionCancelled = "requisition.cancelled"
	EventTypeMaterialLowStock     = "material.low_stock"

	eventSource = "requisition-service"
)

// RequisitionEventData is the payload of requisition lifecycle events
type RequisitionEventData struct {
	RequisitionNo string    `json:"requisitionNo"`
	ApplicantID   string    `json:"applicantId"`
	Department    string    `json:"department,omitempty"`
	Status        string    `json:"status"`
	TotalQuantity int64     `json:"totalQuantity"`
	LineCount     int       `json:"lineCount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// LowStockEventData is the payload of low stock threshold events
type LowStockEventData struct {
	MaterialNo  string `json:"materialNo"`
	Name        string `json:"name"`
	VariantID   string `json:"variantId"`
	Stock       int64  `json:"stock"`
	SafetyStock int64  `json:"safetyStock"`
}

// KafkaEventPublisher publishes domain events to Kafka behind a circuit
// breaker. Publishing is strictly best-effort: the ledger is the source
// of truth and a broker outage must never fail a requisition.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	breaker  *resilience.CircuitBreaker
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewKafkaEventPublisher creates a publisher over the given producer
func NewKafkaEventPublisher(producer *kafka.Producer, logger *logging.Logger, m *metrics.Metrics) *KafkaEventPublisher {
	breaker := resilience.NewCircuitBreaker(
		resilience.DefaultCircuitBreakerConfig("kafka-publisher"),
		slog.Default(),
	)
	return &KafkaEventPublisher{
		producer: producer,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

// PublishRequisitionSubmitted emits a requisition.submitted event
func (p *KafkaEventPublisher) PublishRequisitionSubmitted(ctx context.Context, requisition *domain.Requisition) {
	p.publishRequisitionEvent(ctx, EventTypeRequisitionSubmitted, requisition)
}

// PublishRequisitionCancelled emits a requisition.cancelled event
func (p *KafkaEventPublisher) PublishRequisitionCancelled(ctx context.Context, requisition *domain.Requisition) {
	p.publishRequisitionEvent(ctx, EventTypeRequisitionCancelled, requisition)
}

// PublishLowStock emits a material.low_stock event
func (p *KafkaEventPublisher) PublishLowStock(ctx context.Context, material *domain.Material, variant *domain.Variant) {
	event := kafka.NewEvent(EventTypeMaterialLowStock, eventSource, material.MaterialNo, LowStockEventData{
		MaterialNo:  material.MaterialNo,
		Name:        material.Name,
		VariantID:   variant.VariantID,
		Stock:       variant.Stock,
		SafetyStock: variant.SafetyStock,
	})
	p.publish(ctx, kafka.Topics.MaterialEvents, event)
}

func (p *KafkaEventPublisher) publishRequisitionEvent(ctx context.Context, eventType string, requisition *domain.Requisition) {
	event := kafka.NewEvent(eventType, eventSource, requisition.RequisitionNo, RequisitionEventData{
		RequisitionNo: requisition.RequisitionNo,
		ApplicantID:   requisition.ApplicantID,
		Department:    requisition.Department,
		Status:        string(requisition.Status),
		TotalQuantity: requisition.TotalQuantity,
		LineCount:     len(requisition.Items),
		OccurredAt:    requisition.UpdatedAt,
	})
	p.publish(ctx, kafka.Topics.RequisitionEvents, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, topic string, event *kafka.Event) {
	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok && correlationID != "" {
		event.WithCorrelationID(correlationID)
	}

	start := time.Now()
	_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	}
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Event publish failed, continuing",
			"topic", topic, "eventType", event.Type, "subject", event.Subject)
	}
}

// NoopEventPublisher drops all events. Used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishRequisitionSubmitted(context.Context, *domain.Requisition) {}
func (NoopEventPublisher) PublishRequisitionCancelled(context.Context, *domain.Requisition) {}
func (NoopEventPublisher) PublishLowStock(context.Context, *domain.Material, *domain.Variant) {
}
