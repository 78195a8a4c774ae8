package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/notify"
)

// Handler delivers one decoded notification.
type Handler func(ctx context.Context, n notify.Notification) error

type ConsumerConfig struct {
	Queue       string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Consume runs a pool of delivery workers on queue until ctx ends. A failed
// delivery is parked in queue.retry for RetryDelay, and after MaxAttempts it
// is rejected into queue.dlq.
func (p *Publisher) Consume(ctx context.Context, cfg ConsumerConfig, h Handler) error {
	if cfg.Queue == "" {
		cfg.Queue = p.queue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	if err := p.ch.Qos(cfg.Concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := p.ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	jobs := make(chan amqp.Delivery, cfg.Concurrency*2)
	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				p.handle(ctx, cfg, workerID, d, h)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("rabbitmq: delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (p *Publisher) handle(ctx context.Context, cfg ConsumerConfig, workerID int, d amqp.Delivery, h Handler) {
	n, err := Decode(d.Body)
	if err != nil {
		logger.L.Warn("rabbitmq: bad message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	herr := h(ctx, n)
	if herr == nil {
		if err := d.Ack(false); err != nil {
			logger.L.Warn("rabbitmq: ack failed", "worker", workerID, "id", n.ID, "err", err)
		}
		return
	}

	attempt := attemptOf(d.Headers)
	logger.L.Warn("rabbitmq: delivery failed", "worker", workerID, "id", n.ID, "attempt", attempt, "cost", time.Since(start), "err", herr)
	if attempt >= cfg.MaxAttempts {
		_ = d.Nack(false, false)
		return
	}
	expiration := strconv.FormatInt(cfg.RetryDelay.Milliseconds(), 10)
	if err := p.publish(ctx, cfg.Queue+".retry", d.Body, attempt+1, expiration); err != nil {
		logger.L.Error("rabbitmq: retry publish failed", "id", n.ID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Decode parses a queued notification.
func Decode(body []byte) (notify.Notification, error) {
	var n notify.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, err
	}
	if n.UserID == 0 || n.Title == "" {
		return n, errors.New("rabbitmq: notification missing user_id or title")
	}
	return n, nil
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}
