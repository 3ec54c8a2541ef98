package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Producer публикует события статуса детекции
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerFrom(producer, topic), nil
}

func NewProducerFrom(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// SendStatus publishes one event keyed by task id so a task's events stay in
// one partition.
func (p *Producer) SendStatus(ev models.StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.TaskID),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// Observe implements detection.Observer.
func (p *Producer) Observe(ev models.StatusEvent) {
	if err := p.SendStatus(ev); err != nil {
		log.Error().Err(err).Str("task_id", ev.TaskID).Str("status", string(ev.Status)).Msg("Producer: failed to send status")
	}
}
