package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the persistence the dispatcher needs for web push.
type SubscriptionStore interface {
	SubscriptionsForEquipment(ctx context.Context, equipmentID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Options configures a Dispatcher. A nil channel dependency disables that channel.
type Options struct {
	Workers   int
	QueueSize int
	Mailer    Mailer
	Chat      ChatSender
	WebPush   *webpush.Options
}

// Dispatcher manages a pool of workers delivering notification tasks.
type Dispatcher struct {
	size    int
	jobs    chan Task
	mailer  Mailer
	chat    ChatSender
	webpush *webpush.Options
	sender  NotificationSender
	subs    SubscriptionStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(opts Options, subs SubscriptionStore, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers
	}
	return &Dispatcher{
		size:    opts.Workers,
		jobs:    make(chan Task, opts.QueueSize),
		mailer:  opts.Mailer,
		chat:    opts.Chat,
		webpush: opts.WebPush,
		sender:  &WebPushSender{},
		subs:    subs,
		logger:  logger,
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case task := <-d.jobs:
			d.handle(ctx, task)
		case <-ctx.Done():
			d.logger.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a task without blocking. It reports false when the queue is full and the
// task was dropped.
func (d *Dispatcher) Dispatch(task Task) bool {
	select {
	case d.jobs <- task:
		return true
	default:
		d.logger.Warn("notification queue full, dropping task",
			zap.String("channel", string(task.Channel)),
			zap.Int64("equipment_id", task.EquipmentID))
		d.metrics.Notifications.WithLabelValues(string(task.Channel), "dropped").Inc()
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (d *Dispatcher) Jobs() chan Task {
	return d.jobs
}

func (d *Dispatcher) handle(ctx context.Context, task Task) {
	var err error
	switch task.Channel {
	case ChannelEmail:
		err = d.sendEmail(ctx, task)
	case ChannelChat:
		err = d.sendChat(ctx, task)
	case ChannelPush:
		err = d.sendPushForEquipment(ctx, task)
	default:
		d.logger.Error("unknown notification channel", zap.String("channel", string(task.Channel)))
		return
	}

	outcome := "sent"
	switch {
	case errors.Is(err, ErrNotConfigured):
		outcome = "skipped"
	case err != nil:
		outcome = "failed"
		d.logger.Error("notification delivery failed",
			zap.String("channel", string(task.Channel)),
			zap.Int64("equipment_id", task.EquipmentID),
			zap.String("subject", task.Subject),
			zap.Error(err))
	}
	d.metrics.Notifications.WithLabelValues(string(task.Channel), outcome).Inc()
}

func (d *Dispatcher) sendEmail(ctx context.Context, task Task) error {
	if d.mailer == nil || len(task.Recipients) == 0 {
		return ErrNotConfigured
	}
	return d.mailer.Send(ctx, Mail{To: task.Recipients, Subject: task.Subject, HTML: task.Body})
}

func (d *Dispatcher) sendChat(ctx context.Context, task Task) error {
	if d.chat == nil {
		return ErrNotConfigured
	}
	return d.chat.Post(ctx, ChatMessage{
		Text:     task.Subject,
		Body:     task.Body,
		Severity: task.Severity,
		Fields:   task.Fields,
		URL:      task.URL,
	})
}

type pushPayload struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	URL         string `json:"url,omitempty"`
	EquipmentID int64  `json:"equipment_id"`
	Severity    string `json:"severity"`
}

// sendPushForEquipment fetches subscriptions and sends notifications for a given equipment.
func (d *Dispatcher) sendPushForEquipment(ctx context.Context, task Task) error {
	if d.webpush == nil || d.webpush.VAPIDPrivateKey == "" || d.subs == nil {
		return ErrNotConfigured
	}

	subscriptions, err := d.subs.SubscriptionsForEquipment(ctx, task.EquipmentID)
	if err != nil {
		return err
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		Title:       task.Subject,
		Body:        task.Body,
		URL:         task.URL,
		EquipmentID: task.EquipmentID,
		Severity:    string(task.Severity),
	})
	if err != nil {
		return err
	}

	d.logger.Info("sending push notifications",
		zap.Int("subscriptions", len(subscriptions)),
		zap.Int64("equipment_id", task.EquipmentID))
	var errs []error
	for _, sub := range subscriptions {
		if err := d.sendNotification(ctx, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sendNotification sends a single web push notification. An expired subscription is deleted
// and not reported as a failure.
func (d *Dispatcher) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(payload, wpSub, d.webpush)
	if err != nil {
		d.logger.Warn("error sending push notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		d.logger.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := d.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			d.logger.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push to %s: received status code %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
