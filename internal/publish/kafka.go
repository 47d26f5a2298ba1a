// Package publish forwards decoded events to Kafka.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
)

// Default topics.
const (
	DefaultMintTopic  = "pumpfun.mints"
	DefaultTradeTopic = "pumpfun.trades"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions configures a KafkaPublisher.
type KafkaOptions struct {
	Brokers      []string
	MintTopic    string
	TradeTopic   string
	WriteTimeout time.Duration
	// Writer replaces the broker connection, for tests.
	Writer MessageWriter
	Logger *logrus.Entry
}

// KafkaPublisher writes each event as JSON to its kind's topic, keyed by
// token address so one token's events stay in one partition.
type KafkaPublisher struct {
	writer       MessageWriter
	mintTopic    string
	tradeTopic   string
	writeTimeout time.Duration
	logger       *logrus.Entry
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(opts KafkaOptions) (*KafkaPublisher, error) {
	if opts.MintTopic == "" {
		opts.MintTopic = DefaultMintTopic
	}
	if opts.TradeTopic == "" {
		opts.TradeTopic = DefaultTradeTopic
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	w := opts.Writer
	if w == nil {
		if len(opts.Brokers) == 0 {
			return nil, fmt.Errorf("publish: no kafka brokers")
		}
		w = &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return &KafkaPublisher{
		writer:       w,
		mintTopic:    opts.MintTopic,
		tradeTopic:   opts.TradeTopic,
		writeTimeout: opts.WriteTimeout,
		logger:       logging.OrDefault(opts.Logger, "publish.kafka"),
	}, nil
}

// PublishMint writes a mint event.
func (p *KafkaPublisher) PublishMint(ctx context.Context, ev *domain.MintEvent) error {
	return p.write(ctx, p.mintTopic, ev.TokenAddress, ev)
}

// PublishTrade writes a trade event.
func (p *KafkaPublisher) PublishTrade(ctx context.Context, ev *domain.TradeEvent) error {
	return p.write(ctx, p.tradeTopic, ev.TokenAddress, ev)
}

func (p *KafkaPublisher) write(ctx context.Context, topic, key string, ev any) error {
	value, err := sonnet.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	p.logger.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("event written")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
