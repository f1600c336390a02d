package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/classifier"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/common/redisutil"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RecordEnvelope 上游预处理服务发布的一批融合记录
//
// 每个重采样周期发布一次；user_feedback 只作用于批次中的最后一条记录。
type RecordEnvelope struct {
	RoomID       string               `json:"room_id"`
	Records      []models.FusedRecord `json:"records"`
	UserFeedback *int                 `json:"user_feedback,omitempty"`
}

// HistoryAppender persists a batch of fused records for a room.
type HistoryAppender interface {
	AppendRecords(ctx context.Context, roomID string, records []models.FusedRecord) error
}

// DecisionRunner triggers one decision cycle for a room.
type DecisionRunner interface {
	RunDecision(ctx context.Context, roomID string) (models.ActionIntent, error)
}

// Config 消费者配置
type Config struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int
}

// StreamConsumer 从 Redis Streams 消费融合记录并触发决策周期
//
// Records arrive from the upstream fusion pipeline with classifier
// predictions possibly unresolved; the consumer resolves them through the
// comfort classifier before appending, so every stored record satisfies
// the engine's low-level input contract.
type StreamConsumer struct {
	client     *redis.Client
	cfg        Config
	classifier classifier.Classifier
	store      HistoryAppender
	runner     DecisionRunner
	logger     *zap.Logger
}

func NewStreamConsumer(client *redis.Client, cfg Config, cls classifier.Classifier, store HistoryAppender, runner DecisionRunner, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		client:     client,
		cfg:        cfg,
		classifier: cls,
		store:      store,
		runner:     runner,
		logger:     logger,
	}
}

// Start blocks consuming the stream until ctx is cancelled. Read errors
// back off exponentially up to 30 seconds.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := redisutil.CreateConsumerGroup(ctx, c.client, c.cfg.Stream, c.cfg.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer", c.cfg.ConsumerName),
	)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return ctx.Err()
		default:
		}

		messages, err := redisutil.ReadFromStream(ctx, c.client, c.cfg.Stream, c.cfg.ConsumerGroup, c.cfg.ConsumerName, int64(c.cfg.BatchSize))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("Failed to process message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				// Not acked; the message stays pending for redelivery.
				continue
			}

			if err := redisutil.AckMessage(ctx, c.client, c.cfg.Stream, c.cfg.ConsumerGroup, msg.ID); err != nil {
				c.logger.Warn("Failed to ack message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg redisutil.StreamMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message %s has no data field", msg.ID)
	}

	var envelope RecordEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal record envelope: %w", err)
	}

	return c.handleEnvelope(ctx, &envelope)
}

// handleEnvelope resolves missing classifier predictions, attaches the
// feedback vote to the newest record, persists the batch, and runs one
// decision cycle. Classifier failures leave the prediction unresolved and
// are logged per record; the batch is still stored.
func (c *StreamConsumer) handleEnvelope(ctx context.Context, envelope *RecordEnvelope) error {
	if envelope.RoomID == "" {
		return fmt.Errorf("record envelope has no room_id")
	}
	if len(envelope.Records) == 0 {
		c.logger.Debug("Skipping empty record envelope", zap.String("room_id", envelope.RoomID))
		return nil
	}

	for i := range envelope.Records {
		rec := &envelope.Records[i]
		if rec.ClassifierPrediction != nil {
			continue
		}
		label, err := c.classifier.Predict(ctx, *rec)
		if err != nil {
			c.logger.Warn("Classifier prediction failed",
				zap.String("room_id", envelope.RoomID),
				zap.Time("record_ts", rec.Timestamp),
				zap.Error(err),
			)
			continue
		}
		rec.ClassifierPrediction = &label
	}

	if envelope.UserFeedback != nil {
		envelope.Records[len(envelope.Records)-1].UserFeedback = envelope.UserFeedback
	}

	if err := c.store.AppendRecords(ctx, envelope.RoomID, envelope.Records); err != nil {
		return fmt.Errorf("failed to append records: %w", err)
	}

	actions, err := c.runner.RunDecision(ctx, envelope.RoomID)
	if err != nil {
		return fmt.Errorf("decision cycle failed: %w", err)
	}

	c.logger.Info("Processed record batch",
		zap.String("room_id", envelope.RoomID),
		zap.Int("record_count", len(envelope.Records)),
		zap.Any("actions", actions),
	)
	return nil
}
