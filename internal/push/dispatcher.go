package push

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/closeshop/internal/metrics"
	"github.com/dukerupert/closeshop/internal/model"
)

const (
	defaultTitle = "New Message"
	defaultBody  = "You have a new message"

	providerFCM     = "fcm"
	providerWebPush = "webpush"
	// providerAny labels outcomes decided before any provider is chosen.
	providerAny = "any"
)

// Sender delivers a PushMessage to a device token.
type Sender interface {
	Send(ctx context.Context, msg PushMessage) error
}

// WebSender delivers a Payload to a browser push subscription.
type WebSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// ProfileLookup resolves the recipient profile for a message and drops
// device tokens FCM no longer accepts.
type ProfileLookup interface {
	Get(id string) (*model.Profile, error)
	ClearFCMToken(id, token string) error
}

// SubscriptionStore lists and prunes browser push subscriptions.
type SubscriptionStore interface {
	ListByUser(userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Dispatcher notifies the recipient of a new message. Delivery is
// fire-and-forget and at most once: every failure is logged and dropped.
type Dispatcher struct {
	profiles ProfileLookup
	subs     SubscriptionStore
	fcm      Sender
	web      WebSender
	logger   *slog.Logger
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher. fcm, web and subs may be nil to disable
// the corresponding provider.
func NewDispatcher(profiles ProfileLookup, subs SubscriptionStore, fcm Sender, web WebSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		profiles: profiles,
		subs:     subs,
		fcm:      fcm,
		web:      web,
		logger:   logger,
		timeout:  15 * time.Second,
	}
}

// Dispatch looks up the receiver of msg and sends one notification per
// configured provider. It never returns an error; callers usually run it in
// its own goroutine after the message row is committed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.Message) {
	if msg.ReceiverID == "" {
		d.logger.Warn("message has no receiver, skipping push", "message_id", msg.ID)
		return
	}

	// Detached from the triggering request, which has usually finished.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if d.fcm == nil && d.web == nil {
		return
	}

	profile, err := d.profiles.Get(msg.ReceiverID)
	if err != nil {
		d.logger.Error("lookup push recipient", "receiver_id", msg.ReceiverID, "error", err)
		metrics.PushDispatched(providerAny, metrics.PushFailed)
		return
	}
	if profile == nil {
		d.logger.Info("push recipient not found", "receiver_id", msg.ReceiverID)
		metrics.PushDispatched(providerAny, metrics.PushSkipped)
		return
	}

	body := msg.Content
	if body == "" {
		body = defaultBody
	}
	data := map[string]string{
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
	}

	d.sendFCM(ctx, profile, PushMessage{
		RecipientToken: profile.FCMToken,
		Title:          defaultTitle,
		Body:           body,
		Data:           data,
	})
	d.sendWeb(ctx, profile.ID, Payload{
		Title: defaultTitle,
		Body:  body,
		URL:   "/messageview",
		Tag:   "message-" + msg.SenderID,
		Data:  data,
	})
}

func (d *Dispatcher) sendFCM(ctx context.Context, profile *model.Profile, msg PushMessage) {
	if d.fcm == nil {
		return
	}
	if msg.RecipientToken == "" {
		d.logger.Info("no FCM token for receiver", "receiver_id", profile.ID)
		metrics.PushDispatched(providerFCM, metrics.PushSkipped)
		return
	}

	if err := d.fcm.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrExpired) {
			d.logger.Warn("FCM token no longer registered", "receiver_id", profile.ID)
			metrics.PushDispatched(providerFCM, metrics.PushExpired)
			if err := d.profiles.ClearFCMToken(profile.ID, msg.RecipientToken); err != nil {
				d.logger.Error("clear expired FCM token", "receiver_id", profile.ID, "error", err)
			}
			return
		}
		d.logger.Error("send FCM notification", "receiver_id", profile.ID, "error", err)
		metrics.PushDispatched(providerFCM, metrics.PushFailed)
		return
	}
	d.logger.Info("notification sent", "provider", providerFCM, "receiver", profile.FullName)
	metrics.PushDispatched(providerFCM, metrics.PushSent)
}

func (d *Dispatcher) sendWeb(ctx context.Context, userID string, payload Payload) {
	if d.web == nil || d.subs == nil {
		return
	}

	subs, err := d.subs.ListByUser(userID)
	if err != nil {
		d.logger.Error("list push subscriptions", "receiver_id", userID, "error", err)
		metrics.PushDispatched(providerWebPush, metrics.PushFailed)
		return
	}

	for _, sub := range subs {
		if err := d.web.Send(ctx, &sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				metrics.PushDispatched(providerWebPush, metrics.PushExpired)
				if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					d.logger.Error("delete expired subscription", "error", err)
				}
				continue
			}
			d.logger.Error("send web push", "receiver_id", userID, "error", err)
			metrics.PushDispatched(providerWebPush, metrics.PushFailed)
			continue
		}
		metrics.PushDispatched(providerWebPush, metrics.PushSent)
	}
}
