package service

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/models"

	"github.com/rs/zerolog"
)

type NotifierSettings struct {
	AdminEmail      string
	EmailEnabled    bool
	TelegramEnabled bool
	TelegramChatID  string
	SheetsEnabled   bool
}

// Notifier turns committed domain events into outbox messages.
type Notifier struct {
	queue    domain.NotificationQueue
	settings NotifierSettings
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewNotifier(queue domain.NotificationQueue, settings NotifierSettings, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{queue: queue, settings: settings, timeout: 5 * time.Second, logger: logger}
}

// Subscribe attaches the notifier to every event it handles.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAccountRegistered, n.onAccountRegistered)
	bus.Subscribe(events.EventAccountApproved, n.onAccountApproved)
	bus.Subscribe(events.EventAccountSuspended, n.onAccountSuspended)
	bus.Subscribe(events.EventBookingCreated, n.onBookingChanged)
	bus.Subscribe(events.EventBookingCancelled, n.onBookingChanged)
}

func (n *Notifier) onAccountRegistered(event *events.Event) error {
	var p events.AccountEventPayload
	if err := event.Decode(&p); err != nil {
		return err
	}

	var out []models.Notification
	if n.settings.EmailEnabled && n.settings.AdminEmail != "" {
		out = append(out, models.Notification{
			Channel:   models.ChannelEmail,
			Recipient: n.settings.AdminEmail,
			Subject:   "Nuova registrazione in attesa",
			Body: fmt.Sprintf("Nome: %s\nCognome: %s\nUsername: %s\nEmail: %s\n",
				p.FirstName, p.LastName, p.Username, p.Email),
		})
	}
	if n.settings.TelegramEnabled {
		out = append(out, models.Notification{
			Channel:   models.ChannelTelegram,
			Recipient: n.settings.TelegramChatID,
			Body:      fmt.Sprintf("Nuova registrazione in attesa: %s (%s %s, %s)", p.Username, p.FirstName, p.LastName, p.Email),
		})
	}
	return n.enqueue(event.Type, out)
}

func (n *Notifier) onAccountApproved(event *events.Event) error {
	var p events.AccountEventPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	if !n.settings.EmailEnabled || p.Email == "" {
		return nil
	}
	return n.enqueue(event.Type, []models.Notification{{
		Channel:   models.ChannelEmail,
		Recipient: p.Email,
		Subject:   "Account approvato",
		Body: fmt.Sprintf("Ciao %s,\n\nil tuo account %s è stato approvato. Ora puoi accedere e prenotare le lezioni.\n",
			p.FirstName, p.Username),
	}})
}

func (n *Notifier) onAccountSuspended(event *events.Event) error {
	var p events.AccountEventPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	if !n.settings.TelegramEnabled {
		return nil
	}
	return n.enqueue(event.Type, []models.Notification{{
		Channel:   models.ChannelTelegram,
		Recipient: n.settings.TelegramChatID,
		Body:      fmt.Sprintf("Account sospeso: %s", p.Username),
	}})
}

// onBookingChanged forwards the raw payload to the roster mirror.
func (n *Notifier) onBookingChanged(event *events.Event) error {
	if !n.settings.SheetsEnabled {
		return nil
	}
	return n.enqueue(event.Type, []models.Notification{{
		Channel: models.ChannelSheets,
		Body:    string(event.Payload),
	}})
}

func (n *Notifier) enqueue(eventType string, list []models.Notification) error {
	if len(list) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	for _, item := range list {
		item.EventType = eventType
		if err := n.queue.Enqueue(ctx, item); err != nil {
			n.logger.Error().Err(err).Str("event_type", eventType).Str("channel", item.Channel).Msg("failed to enqueue notification")
			return fmt.Errorf("failed to enqueue %s notification: %w", item.Channel, err)
		}
	}
	return nil
}
