package feedback

import (
	"context"
	"log/slog"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/kafka"
)

// Collector ships recorded feedback events to Kafka for the offline
// retraining pipeline. Publishing is asynchronous and lossy under
// backpressure: a full buffer drops events rather than blocking the
// serving path, since the authoritative copy lives in the Store.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan Event
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan Event, bufferSize),
		logger:   slog.Default().With("component", "feedback-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until ctx is cancelled or Close
// is called, draining buffered events on the way out.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case ev, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.producer.Publish(ctx, kafka.Event{
					Key:   ev.UserID,
					Value: ev,
				}); err != nil {
					c.logger.Error("failed to publish feedback event", "error", err)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("feedback collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event for publication.
func (c *Collector) Track(ev Event) {
	select {
	case c.eventCh <- ev:
	default:
		c.logger.Warn("feedback event dropped (buffer full)",
			"user_id", ev.UserID,
			"item_id", ev.ItemID,
		)
	}
}

// Close stops the publish loop after draining the buffer.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				return
			}
			if err := c.producer.Publish(context.Background(), kafka.Event{
				Key:   ev.UserID,
				Value: ev,
			}); err != nil {
				c.logger.Error("failed to publish remaining feedback event", "error", err)
			}
		default:
			return
		}
	}
}
