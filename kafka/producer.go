package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/infermesh/component"
	"github.com/kbukum/infermesh/logger"
)

// Producer wraps a kafka-go Writer bound to one topic.
type Producer struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	writer *kafkago.Writer
	closed bool
}

var _ component.Component = (*Producer)(nil)

// NewProducer validates cfg; the writer is created lazily.
func NewProducer(cfg Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{cfg: cfg, log: log.WithComponent("kafka")}, nil
}

// Topic returns the topic messages are written to.
func (p *Producer) Topic() string { return p.cfg.Topic }

func (p *Producer) getWriter() (*kafkago.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("kafka producer is closed")
	}
	if p.writer == nil {
		p.writer = &kafkago.Writer{
			Addr:         kafkago.TCP(p.cfg.Brokers...),
			Topic:        p.cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchTimeout: p.cfg.BatchTimeout,
			WriteTimeout: p.cfg.WriteTimeout,
			RequiredAcks: kafkago.RequiredAcks(p.cfg.RequiredAcks),
			Compression:  ResolveCompression(p.cfg.Compression),
			MaxAttempts:  p.cfg.MaxAttempts,
			ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
				p.log.Warn("writer: " + fmt.Sprintf(msg, args...))
			}),
		}
		p.log.Info("kafka producer initialized", map[string]interface{}{
			"brokers": p.cfg.Brokers,
			"topic":   p.cfg.Topic,
		})
	}
	return p.writer, nil
}

// WriteMessages sends messages to the producer's topic. kafka-go retries
// up to MaxAttempts internally.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w, err := p.getWriter()
	if err != nil {
		return err
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.cfg.Topic, err)
	}
	return nil
}

// JSONMessage builds a keyed JSON message.
func JSONMessage(key string, value interface{}) (kafkago.Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal JSON: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafkago.Header{{Key: "content-type", Value: []byte("application/json")}},
	}, nil
}

func (p *Producer) Name() string { return "kafka-producer" }

// Start is a no-op; the writer connects on first write.
func (p *Producer) Start(context.Context) error { return nil }

// Stop flushes pending batches and closes the writer.
func (p *Producer) Stop(context.Context) error { return p.Close() }

func (p *Producer) Health(context.Context) component.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return component.Health{Name: p.Name(), Status: component.StatusUnhealthy, Message: "closed"}
	}
	return component.Health{Name: p.Name(), Status: component.StatusHealthy}
}

// Close is safe to call multiple times.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
