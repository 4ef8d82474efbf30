package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Consumer wraps a Sarama consumer group and exposes its messages as a
// channel. Messages are acknowledged only after the caller marks them.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	messages chan Message
	closed   chan struct{}
	log      *zap.SugaredLogger
}

// Message carries the payload plus what is needed to acknowledge it after
// successful processing.
type Message struct {
	Value   []byte
	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage
}

// Mark acknowledges the message. Safe to call on messages fabricated in
// tests without a session.
func (m Message) Mark() {
	if m.session != nil {
		m.session.MarkMessage(m.message, "")
	}
}

func NewConsumer(brokers []string, groupID, topic string, log *zap.SugaredLogger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		group:    group,
		topic:    topic,
		messages: make(chan Message),
		closed:   make(chan struct{}),
		log:      log,
	}, nil
}

// StartListening consumes in the background until the context is cancelled,
// retrying failed consumption cycles.
func (c *Consumer) StartListening(ctx context.Context) {
	handler := &consumerGroupHandler{
		messages: c.messages,
		closed:   c.closed,
	}

	go func() {
		defer close(c.messages)

		retryDelay := time.Second * 5
		for {
			select {
			case <-ctx.Done():
				c.log.Infow("consumer stopped", "topic", c.topic)
				return
			default:
				err := c.group.Consume(ctx, []string{c.topic}, handler)
				if err != nil {
					c.log.Errorw("consume error, retrying", "topic", c.topic, "error", err, "delay", retryDelay)
					select {
					case <-ctx.Done():
						return
					case <-time.After(retryDelay):
					}
					continue
				}

				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
}

func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

// Messages returns the channel of inbound messages. It is closed when the
// consumer shuts down.
func (c *Consumer) Messages() <-chan Message {
	return c.messages
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	messages chan<- Message
	closed   <-chan struct{}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- Message{
				Value:   msg.Value,
				session: sess,
				message: msg,
			}:
				// Acknowledged by the caller after processing.
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
