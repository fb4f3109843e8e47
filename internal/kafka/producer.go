package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer buffers messages in an inbox and writes them from one goroutine.
// The topic is chosen per message. Publish never blocks: when the inbox is
// full or the producer is closed the message is dropped and logged.
type Producer struct {
	w         *kafka.Writer
	inbox     chan kafka.Message
	done      chan struct{}
	closeOnce sync.Once
	closeCh   chan struct{}
	log       *zap.Logger
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		inbox:   make(chan kafka.Message, buf),
		done:    make(chan struct{}),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() { _ = p.w.Close() }()
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case <-p.done:
				p.flush()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// flush writes whatever is still queued.
func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka publish failed", zap.String("topic", m.Topic), zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case <-p.done:
		p.log.Warn("kafka producer closed, message dropped", zap.String("topic", topic), zap.ByteString("key", key))
		return
	default:
	}
	select {
	case p.inbox <- m:
	default:
		p.log.Warn("kafka inbox full, message dropped", zap.String("topic", topic), zap.ByteString("key", key))
	}
}

// Close stops accepting messages; the writer goroutine flushes and exits.
func (p *Producer) Close() { p.closeOnce.Do(func() { close(p.done) }) }

func (p *Producer) WaitClosed() { <-p.closeCh }
