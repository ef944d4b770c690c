package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/events"
)

type stubStore struct {
	last events.Event
	err  error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.last = ev
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.last.Topic)
	require.Equal(t, aggregate, store.last.AggregateID)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.ErrorContains(t, err, "topic is required")

	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, uuid.Nil, nil)
	require.ErrorContains(t, err, "aggregate id")

	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, uuid.New(), "{not json")
	require.ErrorContains(t, err, "encode payload")

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicOrderCreated, uuid.New(), nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, nil, ok}}

	ev, err := bus.Emit(context.Background(), events.TopicOrderPlaced, uuid.New(), nil)
	require.ErrorContains(t, err, "broker down")
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, ok.events, 1)
	require.JSONEq(t, `{}`, string(ok.events[0].Payload))
}

func TestEmitStoreFailureSkipsNotifiers(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPlaced, uuid.New(), nil)
	require.ErrorContains(t, err, "persist event")
	require.Empty(t, notifier.events)
}

func TestPgStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	occurred := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := events.Event{
		ID:          uuid.New(),
		Topic:       events.TopicOrderCreated,
		AggregateID: uuid.New(),
		Payload:     json.RawMessage(`{"a":1}`),
		OccurredAt:  occurred,
	}
	mock.ExpectQuery("INSERT INTO domain_events").
		WithArgs(ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt).
		WillReturnRows(pgxmock.NewRows([]string{"occurred_at"}).AddRow(occurred))

	got, err := events.PgStore{Pool: mock}.InsertDomainEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeChannel struct {
	declared  string
	published []amqp.Publishing
	keys      []string
	exchanges []string
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = name + ":" + kind
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchanges = append(f.exchanges, exchange)
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPPublisherRoutesByTopic(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := events.NewAMQPPublisher(ch, "")
	require.NoError(t, err)
	require.Equal(t, events.DefaultExchange+":topic", ch.declared)

	ev := events.Event{ID: uuid.New(), Topic: events.TopicOrderPlaced, Payload: json.RawMessage(`{"orderId":"x"}`)}
	require.NoError(t, pub.Notify(context.Background(), ev))
	require.Equal(t, []string{events.DefaultExchange}, ch.exchanges)
	require.Equal(t, []string{events.TopicOrderPlaced}, ch.keys)
	require.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	require.Equal(t, "application/json", ch.published[0].ContentType)
	require.Equal(t, ev.ID.String(), ch.published[0].MessageId)
}
