package transport

import (
	"encoding/json"
	"errors"
	"testing"

	"consultbot/internal/events"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestNATSBridgeForwardsBusEvents(t *testing.T) {
	logger := zerolog.Nop()
	pub := &fakePublisher{}
	bridge := NewNATSBridge(pub, "consultbot.bookings", &logger)

	bus := events.NewEventBus()
	bridge.Attach(bus)

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: "BK-1001"}))
	require.NoError(t, bus.PublishJSON(events.EventBookingCancelled, events.BookingEventPayload{BookingID: "BK-1001"}))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "consultbot.bookings.booking_created", pub.msgs[0].subject)
	assert.Equal(t, "consultbot.bookings.booking_cancelled", pub.msgs[1].subject)

	var payload events.BookingEventPayload
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &payload))
	assert.Equal(t, "BK-1001", payload.BookingID)
}

func TestNATSBridgePublishError(t *testing.T) {
	logger := zerolog.Nop()
	boom := errors.New("no responders")
	bridge := NewNATSBridge(&fakePublisher{err: boom}, "x", &logger)

	err := bridge.Forward(&events.Event{Type: events.EventBookingRescheduled})
	assert.ErrorIs(t, err, boom)
}

func TestNATSBridgeSubject(t *testing.T) {
	logger := zerolog.Nop()
	assert.Equal(t, "booking_created", NewNATSBridge(nil, "", &logger).Subject("booking_created"))
	assert.Equal(t, "a.b.booking_created", NewNATSBridge(nil, "a.b", &logger).Subject("booking_created"))
	assert.NoError(t, NewNATSBridge(nil, "", &logger).Close())
}
