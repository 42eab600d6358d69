package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/events"
	"github.com/Gopher0727/InterviewRoom/internal/utils"
	logger "github.com/Gopher0727/InterviewRoom/middleware/log"
	"github.com/Gopher0727/InterviewRoom/utils/snowflake"
)

const sendTimeout = 15 * time.Second

// EventPublisher delivers invitation events to a Kafka topic, keyed by room
// id so one room's events stay ordered within a partition. Sends run on the
// worker pool; Publish only fails when the event cannot be stamped or queued.
type EventPublisher struct {
	producer   *Producer
	ids        *snowflake.Generator
	pool       *utils.WorkerPool
	topic      string
	maxRetries int
	logger     *zap.Logger
}

// ids may be nil, in which case events go out without an id.
func NewEventPublisher(producer *Producer, ids *snowflake.Generator, pool *utils.WorkerPool, topic string, maxRetries int, log *zap.Logger) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventPublisher{
		producer:   producer,
		ids:        ids,
		pool:       pool,
		topic:      topic,
		maxRetries: maxRetries,
		logger:     log,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, ev events.Event) error {
	if ev.ID == "" && p.ids != nil {
		id, err := p.ids.NextString()
		if err != nil {
			return fmt.Errorf("event id: %w", err)
		}
		ev.ID = id
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	key := []byte(ev.RoomID)
	traceID := logger.GetTraceID(ctx)

	return p.pool.Submit(func() {
		// the request ctx is gone once the handler returns
		sendCtx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), traceID), sendTimeout)
		defer cancel()

		partition, offset, err := p.producer.ProduceWithRetry(sendCtx, p.topic, key, value, p.maxRetries)
		log := logger.Ctx(sendCtx, p.logger).With(
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("room_id", ev.RoomID))
		if err != nil {
			log.Error("deliver event failed", zap.Error(err))
			return
		}
		log.Debug("event delivered",
			zap.String("topic", p.topic),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
	})
}
