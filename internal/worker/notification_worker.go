package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/metrics"
	"classbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultQueueKey      = "classbook:notifications:queue"
	defaultDeadLetterKey = "classbook:notifications:deadletter"
	sendTimeout          = 30 * time.Second
	statusTimeout        = 5 * time.Second
)

// Sender delivers one outbox message over a single channel.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker fails the message without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// NotificationWorker drains the notification outbox. New messages reach it
// through the in-memory queue or Redis; anything missed is picked up by
// polling the table.
type NotificationWorker struct {
	outbox        domain.NotificationRepository
	senders       map[string]Sender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Notification
	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        zerolog.Logger
	now           func() time.Time
}

// NewNotificationWorker builds a worker; redisClient may be nil.
func NewNotificationWorker(outbox domain.NotificationRepository, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *NotificationWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &NotificationWorker{
		outbox:        outbox,
		senders:       make(map[string]Sender),
		redis:         redisClient,
		retryPolicy:   RetryPolicyFromConfig(cfg),
		queue:         make(chan models.Notification, models.WorkerQueueSize),
		queueKey:      defaultQueueKey,
		deadLetterKey: defaultDeadLetterKey,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		logger:        logger.With().Str("component", "notification_worker").Logger(),
		now:           time.Now,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 20
	}
	return w
}

// Register binds a sender to a channel name.
func (w *NotificationWorker) Register(channel string, sender Sender) {
	w.senders[channel] = sender
}

// Enqueue persists n to the outbox and schedules it via redis or the
// in-memory queue.
func (w *NotificationWorker) Enqueue(ctx context.Context, n models.Notification) error {
	if n.Channel == "" {
		return errors.New("notification channel is required")
	}
	n.Status = models.NotificationPending
	n.RetryCount = 0

	if err := w.outbox.CreateNotification(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.queueKey, n); err != nil {
			w.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- n:
	default:
		w.logger.Warn().Int64("notification_id", n.ID).Msg("in-memory queue full, left to polling")
	}
	return nil
}

// FailedNotifications lists messages that ran out of retries.
func (w *NotificationWorker) FailedNotifications(ctx context.Context) ([]models.Notification, error) {
	return w.outbox.GetFailedNotifications(ctx)
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Int("senders", len(w.senders)).Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n, ok := w.tryLocalQueue(); ok {
			w.process(ctx, &n)
			continue
		}

		if n, ok := w.tryRedis(ctx); ok {
			w.process(ctx, &n)
			continue
		}

		if w.drainPending(ctx) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			w.process(ctx, &n)
		case <-time.After(w.pollInterval):
		}
	}
}

// drainPending processes one batch of due rows and returns its size.
func (w *NotificationWorker) drainPending(ctx context.Context) int {
	list, err := w.outbox.GetPendingNotifications(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending notifications")
		}
		return 0
	}
	for i := range list {
		w.process(ctx, &list[i])
	}
	return len(list)
}

func (w *NotificationWorker) tryLocalQueue() (models.Notification, bool) {
	select {
	case n := <-w.queue:
		return n, true
	default:
		return models.Notification{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.Notification, bool) {
	if w.redis == nil {
		return models.Notification{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.Notification{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP failed")
		return models.Notification{}, false
	}
	if len(res) != 2 {
		return models.Notification{}, false
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		w.logger.Error().Err(err).Msg("decode redis notification")
		return models.Notification{}, false
	}
	return n, true
}

func (w *NotificationWorker) process(ctx context.Context, n *models.Notification) {
	// lease covers the send plus the status write after it
	lease := w.now().Add(sendTimeout + statusTimeout)
	claimed, err := w.outbox.ClaimNotification(ctx, n.ID, lease)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("claim notification")
		}
		return
	}
	if !claimed {
		// уже обработано другим путем
		return
	}

	// Результат отправки пишем даже после отмены ctx, иначе строка
	// останется в processing до истечения lease.
	statusCtx, cancelStatus := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout+statusTimeout)
	defer cancelStatus()

	sender, ok := w.senders[n.Channel]
	if !ok {
		w.fail(statusCtx, n, fmt.Errorf("no sender for channel %q", n.Channel))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err = sender.Send(sendCtx, *n)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			w.release(statusCtx, n, err)
			return
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			w.fail(statusCtx, n, err)
			return
		}
		w.retryOrFail(statusCtx, n, err)
		return
	}

	if err := w.outbox.UpdateNotificationStatus(statusCtx, n.ID, models.NotificationCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark completed")
	}
	metrics.IncNotification(n.Channel, models.NotificationCompleted)
	w.logger.Debug().Int64("notification_id", n.ID).Str("channel", n.Channel).Msg("notification delivered")
}

// release hands a send interrupted by shutdown back to the outbox without
// spending a retry.
func (w *NotificationWorker) release(ctx context.Context, n *models.Notification, cause error) {
	if err := w.outbox.UpdateNotificationStatus(ctx, n.ID, models.NotificationPending, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("release notification")
		return
	}
	w.logger.Info().Int64("notification_id", n.ID).Msg("delivery interrupted by shutdown, released")
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, n, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt)).UTC()
	if err := w.outbox.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark retry")
	}
	metrics.IncNotification(n.Channel, models.NotificationRetry)
	w.logger.Warn().Err(cause).Int64("notification_id", n.ID).Int("attempt", attempt).Time("next_retry_at", next).
		Msg("delivery failed, will retry")
}

func (w *NotificationWorker) fail(ctx context.Context, n *models.Notification, cause error) {
	if err := w.outbox.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark failed")
	}
	metrics.IncNotification(n.Channel, models.NotificationFailed)
	w.logger.Error().Err(cause).Int64("notification_id", n.ID).Str("channel", n.Channel).Msg("delivery failed permanently")

	if w.redis == nil {
		return
	}
	msg := cause.Error()
	n.Status = models.NotificationFailed
	n.LastError = &msg
	if err := w.pushRedis(ctx, w.deadLetterKey, *n); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("deadletter push")
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
