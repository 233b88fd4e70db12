package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// KafkaAlertSink publishes send-alert actions onto a Kafka topic as the
// dispatcher's AlertSink. It is not an outputDestinations[] sink; the
// engine's Kafka output goes through KafkaOutputPublisher.
type KafkaAlertSink struct {
	producer *kafka.Producer
	topic    string
	log      logger.Logger
}

// NewKafkaAlertSink connects a producer to brokers and returns a sink
// publishing to topic. Delivery reports are drained on a background
// goroutine and only logged on failure.
func NewKafkaAlertSink(brokers, topic string, log logger.Logger) (*KafkaAlertSink, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: create kafka producer: %w", err)
	}

	s := &KafkaAlertSink{producer: producer, topic: topic, log: log}
	go s.drainDeliveryReports()
	return s, nil
}

func (s *KafkaAlertSink) drainDeliveryReports() {
	for e := range s.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			s.log.Warn("kafka alert delivery failed", "error", m.TopicPartition.Error)
		}
	}
}

// SendAlert implements AlertSink.
func (s *KafkaAlertSink) SendAlert(ctx context.Context, threat *domain.UnifiedThreat, parameters map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"threat":     threat,
		"parameters": parameters,
	})
	if err != nil {
		return err
	}

	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Value:          payload,
		Key:            []byte(threat.CorrelationID),
	}, nil)
}

// Close flushes pending deliveries and releases the producer.
func (s *KafkaAlertSink) Close() {
	s.producer.Flush(5000)
	s.producer.Close()
}

// KafkaOutputPublisher implements correlation.OutputPublisher for a
// CorrelationConfig.OutputDestinations entry of kind "kafka",
// publishing every synthesized threat regardless of which rule
// actions fired.
type KafkaOutputPublisher struct {
	producer *kafka.Producer
	topic    string
	log      logger.Logger
}

// NewKafkaOutputPublisher connects a producer publishing to topic.
func NewKafkaOutputPublisher(brokers, topic string, log logger.Logger) (*KafkaOutputPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: create kafka output producer: %w", err)
	}
	p := &KafkaOutputPublisher{producer: producer, topic: topic, log: log}
	go p.drainDeliveryReports()
	return p, nil
}

func (p *KafkaOutputPublisher) drainDeliveryReports() {
	for e := range p.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			p.log.Warn("kafka output delivery failed", "error", m.TopicPartition.Error)
		}
	}
}

// Publish implements correlation.OutputPublisher.
func (p *KafkaOutputPublisher) Publish(ctx context.Context, threat *domain.UnifiedThreat) error {
	payload, err := json.Marshal(threat)
	if err != nil {
		return err
	}
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Value:          payload,
		Key:            []byte(threat.CorrelationID),
	}, nil)
}

// Close flushes pending deliveries and releases the producer.
func (p *KafkaOutputPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
