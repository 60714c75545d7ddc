package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/config"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
)

type channel int

const (
	channelEmail channel = 1 << iota
	channelWebhook
)

// routes decides which channels hear about each event type.
var routes = map[events.EventType]channel{
	events.EventRequestCreated:   channelEmail | channelWebhook,
	events.EventStatusChanged:    channelWebhook,
	events.EventPriorityChanged:  channelWebhook,
	events.EventRequestAssigned:  channelWebhook,
	events.EventMilestoneAdded:   channelWebhook,
	events.EventRequestRated:     channelWebhook,
	events.EventRequestEscalated: channelEmail | channelWebhook,
	events.EventCommentAdded:     channelEmail,
}

// NotificationService fans domain events out to the citizen and dispatch
// desks. Delivery is stubbed with log lines.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to every routed event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for eventType := range routes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	channels := n.channelsFor(event)
	n.logger.Info("request event",
		zap.String("event_type", string(event.Type)),
		zap.String("request_id", event.RequestID),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.Any("payload", event.Payload))
	if channels&channelEmail != 0 {
		n.sendEmailNotificationStub(ctx, event)
	}
	if channels&channelWebhook != 0 {
		n.sendWebhookNotificationStub(ctx, event)
	}
	return nil
}

// channelsFor applies the static route plus the citizen-facing extras:
// resolutions and disputed ratings also go out by email.
func (n *NotificationService) channelsFor(event events.Event) channel {
	channels := routes[event.Type]
	switch payload := event.Payload.(type) {
	case events.StatusChangedPayload:
		if payload.NewStatus == domain.StatusResolved || payload.NewStatus == domain.StatusClosed {
			channels |= channelEmail
		}
	case events.RequestRatedPayload:
		if payload.Disputed {
			channels |= channelEmail
		}
	}
	return channels
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}
