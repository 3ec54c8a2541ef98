package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

const retryDelay = 5 * time.Second

// Command is a decoded detection command together with its acknowledgement.
type Command struct {
	models.DetectionCommand

	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage
}

// Ack marks the underlying message as processed.
func (c Command) Ack() {
	if c.session != nil && c.message != nil {
		c.session.MarkMessage(c.message, "")
	}
}

// Consumer читает команды детекции из топика
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	commands chan Command
	closed   chan struct{}
}

func NewConsumer(brokers []string, groupID, topic string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		group:    group,
		topic:    topic,
		commands: make(chan Command),
		closed:   make(chan struct{}),
	}, nil
}

// StartListening consumes in the background until ctx ends, re-joining the
// group after errors.
func (c *Consumer) StartListening(ctx context.Context) {
	handler := &commandHandler{
		commands: c.commands,
		closed:   c.closed,
	}

	go func() {
		defer close(c.commands)

		for {
			if ctx.Err() != nil {
				log.Info().Msg("Consumer: context cancelled, stopping")
				return
			}

			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				log.Error().Err(err).Dur("retry_in", retryDelay).Msg("Consumer: consume error")
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
			}
		}
	}()
}

func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

func (c *Consumer) Commands() <-chan Command {
	return c.commands
}

type commandHandler struct {
	commands chan<- Command
	closed   <-chan struct{}
}

func (h *commandHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *commandHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *commandHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			cmd, err := DecodeCommand(msg.Value)
			if err != nil {
				// битое сообщение не переотправляем
				log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Consumer: invalid command")
				sess.MarkMessage(msg, "")
				continue
			}

			select {
			case h.commands <- Command{DetectionCommand: cmd, session: sess, message: msg}:
			case <-sess.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}
		case <-sess.Context().Done():
			return nil
		case <-h.closed:
			return nil
		}
	}
}

func DecodeCommand(data []byte) (models.DetectionCommand, error) {
	var cmd models.DetectionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}
