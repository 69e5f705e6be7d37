// Package kafka provides a Kafka-based implementation of the event bus for
// distributed deployments where discovery events fan out across worker nodes.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reconflow/reconflow/internal/domain/events"
	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/eventbus/serialization"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

// Config contains settings for connecting to and interacting with Kafka brokers.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// ControlTopic carries scan lifecycle events (requests, cancellations, status).
	ControlTopic string
	// DiscoveryTopic carries per-asset discovery events that drive reactive
	// scheduling of the next pipeline phase.
	DiscoveryTopic string

	// GroupID identifies the consumer group for this bus instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the type of service (e.g. "orchestrator", "worker").
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements events.EventBus using Kafka as the underlying message broker.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to their Kafka topics.
	topicMap map[events.EventType]string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewEventBusFromConfig creates a Kafka-based event bus from the provided
// configuration, wiring both producer and consumer components.
func NewEventBusFromConfig(cfg *Config, log *logger.Logger, tracer trace.Tracer) (*EventBus, error) {
	log = log.With(
		"component", "kafka_event_bus",
		"client_id", cfg.ClientID,
		"group_id", cfg.GroupID,
		"service_type", cfg.ServiceType,
	)

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	consumerConfig.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	// Key by scan id so every event of one scan lands on the same partition
	// and workers observe its discoveries in order.
	topicMap := map[events.EventType]string{
		scanning.EventTypeScanRequested:       cfg.ControlTopic,
		scanning.EventTypeScanCancelled:       cfg.ControlTopic,
		scanning.EventTypeScanStatusChanged:   cfg.ControlTopic,
		scanning.EventTypeSubdomainDiscovered: cfg.DiscoveryTopic,
		scanning.EventTypeHostAlive:           cfg.DiscoveryTopic,
		scanning.EventTypeURLDiscovered:       cfg.DiscoveryTopic,
		scanning.EventTypeVulnScanRequested:   cfg.DiscoveryTopic,
	}

	return &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicMap:      topicMap,
		logger:        log,
		tracer:        tracer,
	}, nil
}

// Publish sends a domain event to the Kafka topic mapped to its type.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	ctx, span := b.tracer.Start(ctx, "kafka_event_bus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
			attribute.String("event.type", string(event.Type)),
		))
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
		span.SetAttributes(attribute.String("event.key", event.Key))
	}

	msgBytes, err := serialization.SerializeEventEnvelope(event.Type, event.Payload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(msgBytes),
	}
	for k, v := range pParams.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	partition, offset, err := b.producer.SendMessage(kafkaMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", event.Key,
	)
	return nil
}

// Subscribe registers a handler for the given event types and starts consuming
// their topics in a background goroutine tied to ctx.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	topicSet := make(map[string]struct{})
	typeSet := make(map[events.EventType]struct{}, len(eventTypes))
	var topics []string
	for _, et := range eventTypes {
		topic, ok := b.topicMap[et]
		if !ok {
			return fmt.Errorf("subscribe: unknown event type %s", et)
		}
		typeSet[et] = struct{}{}
		if _, seen := topicSet[topic]; !seen {
			topicSet[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}

	go b.consumeLoop(ctx, topics, typeSet, handler)
	b.logger.Info(ctx, "Subscribed to events", "event_types", eventTypes)

	return nil
}

// consumeLoop maintains a continuous consumer group session for processing messages.
func (b *EventBus) consumeLoop(ctx context.Context, topics []string, types map[events.EventType]struct{}, handler events.HandlerFunc) {
	cgHandler := &domainEventHandler{
		types:       types,
		userHandler: handler,
		logger:      b.logger,
		tracer:      b.tracer,
	}

	for {
		if err := b.consumerGroup.Consume(ctx, topics, cgHandler); err != nil {
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// domainEventHandler implements sarama.ConsumerGroupHandler, converting Kafka
// messages back into domain event envelopes for the subscribed handler.
type domainEventHandler struct {
	types       map[events.EventType]struct{}
	userHandler events.HandlerFunc

	logger *logger.Logger
	tracer trace.Tracer
}

func (h *domainEventHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *domainEventHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition. Undecodable
// messages are marked and skipped so a poison message cannot stall the claim.
func (h *domainEventHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())

	for msg := range claim.Messages() {
		func() {
			msgCtx, span := h.tracer.Start(sess.Context(), "kafka_event_bus.consume",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.system", "kafka"),
					attribute.String("messaging.source", msg.Topic),
				))
			defer span.End()

			evtType, payloadBytes, err := serialization.UnmarshalUniversalEnvelope(msg.Value)
			if err != nil {
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			// Topics are shared between event types; skip types this
			// subscription did not ask for.
			if _, ok := h.types[evtType]; !ok {
				sess.MarkMessage(msg, "")
				return
			}

			payload, err := serialization.DeserializePayload(evtType, payloadBytes)
			if err != nil {
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			headers := make(map[string]string, len(msg.Headers))
			for _, hdr := range msg.Headers {
				headers[string(hdr.Key)] = string(hdr.Value)
			}

			envelope := events.EventEnvelope{
				Type:      evtType,
				Key:       string(msg.Key),
				Headers:   headers,
				Timestamp: msg.Timestamp,
				Payload:   payload,
			}

			if err := h.userHandler(msgCtx, envelope); err != nil {
				consumeLogger.Error(msgCtx, "Failed to handle message",
					"event_type", evtType,
					"error", err,
				)
				span.RecordError(err)
			}

			sess.MarkMessage(msg, "")
		}()
	}
	return nil
}

// Close gracefully shuts down the event bus by closing both producer and
// consumer connections.
func (b *EventBus) Close() error {
	ctx := context.Background()
	log := b.logger.With("operation", "close")

	if err := b.producer.Close(); err != nil {
		log.Error(ctx, "Failed to close producer", "error", err)
		return err
	}
	if err := b.consumerGroup.Close(); err != nil {
		log.Error(ctx, "Failed to close consumer group", "error", err)
		return err
	}

	log.Info(ctx, "Closed event bus")
	return nil
}
