package service

import (
	"strings"
	"testing"

	"classbook/internal/events"
	"classbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(queue *mockQueue, settings NotifierSettings) *events.EventBus {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	NewNotifier(queue, settings, &logger).Subscribe(bus)
	return bus
}

var allChannels = NotifierSettings{
	AdminEmail:      "admin@example.com",
	EmailEnabled:    true,
	TelegramEnabled: true,
	TelegramChatID:  "-100",
	SheetsEnabled:   true,
}

func TestNotifier_AccountRegistered(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, allChannels)

	var got []models.Notification
	queue.On("Enqueue", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = append(got, args.Get(1).(models.Notification))
	}).Return(nil)

	err := bus.PublishJSON(events.EventAccountRegistered, events.AccountEventPayload{
		AccountID: 1, Username: "mrossi", FirstName: "Mario", LastName: "Rossi", Email: "m@example.com",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.ChannelEmail, got[0].Channel)
	assert.Equal(t, "admin@example.com", got[0].Recipient)
	assert.Equal(t, "Nuova registrazione in attesa", got[0].Subject)
	assert.Contains(t, got[0].Body, "Username: mrossi")
	assert.Contains(t, got[0].Body, "Cognome: Rossi")
	assert.Equal(t, events.EventAccountRegistered, got[0].EventType)

	assert.Equal(t, models.ChannelTelegram, got[1].Channel)
	assert.Equal(t, "-100", got[1].Recipient)
	assert.True(t, strings.HasPrefix(got[1].Body, "Nuova registrazione in attesa"))
}

func TestNotifier_AccountApproved(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, allChannels)

	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Channel == models.ChannelEmail && n.Recipient == "m@example.com" && n.Subject == "Account approvato" &&
			strings.Contains(n.Body, "mrossi")
	})).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventAccountApproved, events.AccountEventPayload{
		AccountID: 1, Username: "mrossi", FirstName: "Mario", Email: "m@example.com", Status: models.AccountActive,
	}))
	queue.AssertExpectations(t)
}

func TestNotifier_BookingMirror(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, allChannels)

	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Channel == models.ChannelSheets && strings.Contains(n.Body, `"booking_id":5`)
	})).Return(nil).Twice()

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 5}))
	require.NoError(t, bus.PublishJSON(events.EventBookingCancelled, events.BookingEventPayload{BookingID: 5}))
	queue.AssertExpectations(t)
}

func TestNotifier_DisabledChannels(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, NotifierSettings{})

	require.NoError(t, bus.PublishJSON(events.EventAccountRegistered, events.AccountEventPayload{AccountID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventAccountApproved, events.AccountEventPayload{AccountID: 1, Email: "x@y"}))
	require.NoError(t, bus.PublishJSON(events.EventAccountSuspended, events.AccountEventPayload{AccountID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 1}))
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestNotifier_EnqueueFailure(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, allChannels)
	queue.On("Enqueue", mock.Anything, mock.Anything).Return(assert.AnError)

	err := bus.PublishJSON(events.EventAccountSuspended, events.AccountEventPayload{AccountID: 1, Username: "mrossi"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNotifier_BadPayload(t *testing.T) {
	queue := new(mockQueue)
	bus := newTestNotifier(queue, allChannels)

	err := bus.Publish(&events.Event{Type: events.EventAccountApproved, Payload: []byte("not json")})
	assert.Error(t, err)
}
