// Package queue moves transfers over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  time.Duration
}

// KafkaSink publishes transfers to a topic.
// Messages are keyed by address_from so one sender stays on one partition.
type KafkaSink struct {
	writer messageWriter
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time interface check
var _ storage.TransferSink = (*KafkaSink)(nil)

// NewKafkaSink creates a new Kafka producer.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaSink{writer: writer}
}

// InsertBulk publishes the batch. Invalid transfers reject the whole batch.
func (s *KafkaSink) InsertBulk(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(transfers))
	for i, t := range transfers {
		msg, err := encodeTransfer(t)
		if err != nil {
			return fmt.Errorf("transfer %d: %w", i, err)
		}
		msgs[i] = msg
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish transfers: %w", err)
	}
	return nil
}

// Close closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func encodeTransfer(t *domain.Transfer) (kafka.Message, error) {
	if err := storage.ValidateTransfer(t); err != nil {
		return kafka.Message{}, err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal transfer: %w", err)
	}
	return kafka.Message{
		Key:   []byte(t.AddressFrom),
		Value: data,
	}, nil
}

func decodeTransfer(msg kafka.Message) (*domain.Transfer, error) {
	var t domain.Transfer
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transfer: %w", err)
	}
	if err := storage.ValidateTransfer(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// BatchHandler receives decoded transfers. Returning an error stops consumption
// without committing the batch.
type BatchHandler func(ctx context.Context, transfers []*domain.Transfer) error

// messageReader is the subset of *kafka.Reader used by KafkaSource.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes transfers from a topic in batches with manual commits.
type KafkaSource struct {
	reader       messageReader
	batchSize    int
	batchTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaSource creates a consumer-group reader.
func NewKafkaSource(cfg KafkaConfig, logger *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaSource(reader, cfg, logger)
}

func newKafkaSource(reader messageReader, cfg KafkaConfig, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	return &KafkaSource{
		reader:       reader,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		logger:       logger.With(zap.String("component", "kafka_source")),
	}
}

// Consume fetches messages until ctx is cancelled, handing them to handle in
// batches of up to batchSize or whatever arrived within batchTimeout.
// Undecodable messages are logged and committed with the batch.
func (s *KafkaSource) Consume(ctx context.Context, handle BatchHandler) error {
	for {
		msgs, transfers, err := s.fetchBatch(ctx)
		if err != nil {
			// uncommitted messages are redelivered to the group
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(msgs) == 0 {
			continue
		}
		if len(transfers) > 0 {
			if err := handle(ctx, transfers); err != nil {
				return fmt.Errorf("handle batch: %w", err)
			}
		}
		if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit batch: %w", err)
		}
		s.logger.Debug("consumed batch",
			zap.Int("messages", len(msgs)),
			zap.Int("transfers", len(transfers)),
		)
	}
}

// fetchBatch collects one batch. A batch window that expires returns what
// was gathered with a nil error.
func (s *KafkaSource) fetchBatch(ctx context.Context) ([]kafka.Message, []*domain.Transfer, error) {
	batchCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	var (
		msgs      []kafka.Message
		transfers []*domain.Transfer
	)
	for len(msgs) < s.batchSize {
		msg, err := s.reader.FetchMessage(batchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return msgs, transfers, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return msgs, transfers, nil
			}
			return msgs, transfers, fmt.Errorf("fetch message: %w", err)
		}
		msgs = append(msgs, msg)

		t, err := decodeTransfer(msg)
		if err != nil {
			s.logger.Warn("skipping undecodable message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		transfers = append(transfers, t)
	}
	return msgs, transfers, nil
}

// Close closes the consumer.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
