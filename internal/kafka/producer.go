package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// Producer publishes camera status changes and escalation payloads to the
// outbound collaborators.
type Producer struct {
	producer        sarama.SyncProducer
	statusTopic     string
	escalationTopic string
}

func NewProducer(brokers []string, statusTopic, escalationTopic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{
		producer:        producer,
		statusTopic:     statusTopic,
		escalationTopic: escalationTopic,
	}, nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// PublishStatusChange sends one camera liveness transition, keyed by camera
// so per-camera ordering is preserved.
func (p *Producer) PublishStatusChange(change models.CameraStatusChange) error {
	return p.send(p.statusTopic, change.CameraID, change)
}

// PublishEscalation sends one escalation payload, keyed by worker so a
// worker's notices stay ordered.
func (p *Producer) PublishEscalation(event models.EscalationEvent) error {
	return p.send(p.escalationTopic, event.WorkerID, event)
}

func (p *Producer) send(topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(kafkaMsg)
	return err
}
