package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"centros-monitor/internal/engine"
	"centros-monitor/internal/parse"
	"centros-monitor/internal/store"
)

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

// WorkerPool manages a pool of workers that fan out online/offline
// transitions to push subscribers.
type WorkerPool struct {
	size    int
	jobs    chan engine.Transition
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan engine.Transition, size*4),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the push sender. Used by tests.
func (wp *WorkerPool) SetSender(s NotificationSender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notify worker %d started", id)
	for {
		select {
		case tr := <-wp.jobs:
			wp.notifyTransition(ctx, tr)
		case <-ctx.Done():
			log.Printf("Notify worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a transition for delivery. Drops the job when the queue is
// full so a slow push service can never stall the status poll.
func (wp *WorkerPool) Dispatch(tr engine.Transition) {
	select {
	case wp.jobs <- tr:
	default:
		log.Printf("Notify queue full, dropping transition for centro %d", tr.CentroID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan engine.Transition {
	return wp.jobs
}

// notifyTransition fetches the matching subscriptions and sends one message
// per subscriber.
func (wp *WorkerPool) notifyTransition(ctx context.Context, tr engine.Transition) {
	subs, err := wp.store.SubscriptionsForCliente(ctx, tr.ClienteID)
	if err != nil {
		log.Printf("Error fetching subscriptions for cliente %d: %v", tr.ClienteID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	label := tr.Nombre
	if label == "" && tr.UUIDEquipo != "" {
		label = parse.DisplayName(tr.UUIDEquipo)
	}
	if label == "" {
		label = fmt.Sprintf("centro %d", tr.CentroID)
	}
	var message string
	if tr.Online {
		message = fmt.Sprintf("%s vuelve a estar en línea.", label)
	} else {
		message = fmt.Sprintf("%s sin conexión.", label)
	}

	log.Printf("Sending %d notifications for centro %d (online=%v)", len(subs), tr.CentroID, tr.Online)
	for _, sub := range subs {
		wp.sendNotification(ctx, sub.Endpoint, sub.P256DH, sub.Auth, []byte(message))
	}
}

// sendNotification sends a single web push notification, pruning the
// subscription when the push service reports it gone.
func (wp *WorkerPool) sendNotification(ctx context.Context, endpoint, p256dh, auth string, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: p256dh,
			Auth:   auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", endpoint)
		if err := wp.store.DeleteSubscription(ctx, endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", endpoint, err)
		}
	}
}
