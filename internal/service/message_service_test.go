package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/phone"
	"github.com/mrusso/whatsapp-relay/internal/repository"
	"github.com/mrusso/whatsapp-relay/internal/service"
	"github.com/mrusso/whatsapp-relay/internal/store"
	"github.com/mrusso/whatsapp-relay/internal/transport"
)

func testConfig() *config.Config {
	return &config.Config{
		Twilio: config.TwilioConfig{
			FromNumber: "whatsapp:+14155238886",
			CircuitBreaker: config.CircuitBreakerConfig{
				MaxRequests:      3,
				Interval:         60,
				Timeout:          60,
				FailureRatio:     0.6,
				ConsecutiveFails: 5,
			},
		},
		Phone:     config.PhoneConfig{DefaultCountryCode: "39"},
		Retention: config.RetentionConfig{SweepIntervalMinutes: 60, AuditKeep: 1000},
	}
}

type sendCall struct {
	From, To, Body string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	resp  *transport.SendResponse
	err   error
}

func (f *fakeSender) Send(ctx context.Context, from, to, body string) (*transport.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{From: from, To: to, Body: body})
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeSender) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type recordingBus struct {
	mu     sync.Mutex
	events []interface{}
}

func (b *recordingBus) Broadcast(event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) Events() []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interface{}(nil), b.events...)
}

func newMessageServiceUnderTest(t *testing.T, sender service.Sender) (service.MessageService, repository.Repository, *recordingBus) {
	t.Helper()
	repo := repository.NewRepository(store.NewMemory())
	bus := &recordingBus{}
	svc := service.NewMessageService(testConfig(), repo, phone.NewNormalizer("39"), sender, bus, nil, zap.NewNop())
	return svc, repo, bus
}

func TestMessageService_Ingest(t *testing.T) {
	ctx := context.Background()
	svc, repo, bus := newMessageServiceUnderTest(t, &fakeSender{})

	err := svc.Ingest(ctx, models.InboundMessage{
		From:      "whatsapp:+39 333 1234567",
		Body:      "ciao",
		SID:       "SM100",
		Timestamp: 5000,
	})
	require.NoError(t, err)

	id, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	messages, err := repo.Messages().List(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "ciao", messages[0].Text)
	assert.Equal(t, models.DirectionInbound, messages[0].Direction)
	assert.Equal(t, int64(5000), messages[0].Timestamp)
	assert.Equal(t, "SM100", messages[0].SID)

	summary, err := repo.Summaries().Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.UnreadCount)
	assert.Equal(t, "ciao", summary.LastMessageText)

	events := bus.Events()
	require.Len(t, events, 1)
	msgEvent, ok := events[0].(models.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventTypeMessage, msgEvent.Type)
	assert.Equal(t, id, msgEvent.ConversationID)
	assert.Equal(t, "+393331234567", msgEvent.Phone)
	require.NotNil(t, msgEvent.Message)
	assert.Equal(t, "ciao", msgEvent.Message.Text)
}

func TestMessageService_IngestSamePhoneReusesConversation(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newMessageServiceUnderTest(t, &fakeSender{})

	require.NoError(t, svc.Ingest(ctx, models.InboundMessage{From: "+393331234567", Body: "one", Timestamp: 1000}))
	// Different surface form, same canonical key.
	require.NoError(t, svc.Ingest(ctx, models.InboundMessage{From: "whatsapp:+39 333 1234567", Body: "two", Timestamp: 2000}))

	id, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)

	messages, err := repo.Messages().List(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	summary, err := repo.Summaries().Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.UnreadCount)
	assert.Equal(t, "two", summary.LastMessageText)
}

func TestMessageService_IngestMediaOnly(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newMessageServiceUnderTest(t, &fakeSender{})

	err := svc.Ingest(ctx, models.InboundMessage{
		From:      "+393331234567",
		Timestamp: 1000,
		Media: []models.Media{{
			SID:         "ME1",
			ContentType: "image/jpeg",
			Type:        "message",
		}},
	})
	require.NoError(t, err)

	id, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)

	messages, err := repo.Messages().List(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "[media]", messages[0].Text)
	require.Len(t, messages[0].Media, 1)
	assert.Equal(t, "ME1", messages[0].Media[0].SID)
}

func TestMessageService_IngestValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		in            models.InboundMessage
		expectedError error
	}{
		{
			name:          "missing sender",
			in:            models.InboundMessage{Body: "hi"},
			expectedError: service.ErrMissingSender,
		},
		{
			name:          "sender with no digits",
			in:            models.InboundMessage{From: "whatsapp:nonsense", Body: "hi"},
			expectedError: service.ErrMissingSender,
		},
		{
			name:          "no text and no media",
			in:            models.InboundMessage{From: "+393331234567"},
			expectedError: service.ErrEmptyMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, bus := newMessageServiceUnderTest(t, &fakeSender{})

			err := svc.Ingest(ctx, tt.in)
			assert.ErrorIs(t, err, tt.expectedError)

			// Rejected input must not leave partial state behind.
			conversations, listErr := repo.Summaries().List(ctx, 10)
			require.NoError(t, listErr)
			assert.Empty(t, conversations)
			assert.Empty(t, bus.Events())
		})
	}
}

func TestMessageService_Dispatch(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{resp: &transport.SendResponse{SID: "SM200", Status: "queued"}}
	svc, repo, bus := newMessageServiceUnderTest(t, sender)

	result, err := svc.Dispatch(ctx, models.SendRequest{To: "333 1234567", Body: "reply"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "SM200", result.SID)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, "+393331234567", result.Phone)
	assert.NotEmpty(t, result.ConversationID)
	assert.NotEmpty(t, result.MessageID)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "whatsapp:+14155238886", calls[0].From)
	assert.Equal(t, "whatsapp:+393331234567", calls[0].To)
	assert.Equal(t, "reply", calls[0].Body)

	messages, err := repo.Messages().List(ctx, result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.DirectionOutbound, messages[0].Direction)
	assert.Equal(t, "SM200", messages[0].SID)
	assert.Equal(t, result.MessageID, messages[0].ID)

	link, err := repo.Statuses().Resolve(ctx, "SM200")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, result.ConversationID, link.ConversationID)
	assert.Equal(t, result.MessageID, link.MessageID)

	summary, err := repo.Summaries().Get(ctx, result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.UnreadCount, "outbound sends never bump unread")
	assert.Equal(t, "reply", summary.LastMessageText)

	require.Len(t, bus.Events(), 1)
}

func TestMessageService_DispatchDefaultsEmptyStatusToQueued(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{resp: &transport.SendResponse{SID: "SM201"}}
	svc, _, _ := newMessageServiceUnderTest(t, sender)

	result, err := svc.Dispatch(ctx, models.SendRequest{To: "+393331234567", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, result.Status)
}

func TestMessageService_DispatchInvalidRecipient(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{resp: &transport.SendResponse{SID: "SM1"}}
	svc, _, _ := newMessageServiceUnderTest(t, sender)

	_, err := svc.Dispatch(ctx, models.SendRequest{To: "garbage", Body: "x"})
	assert.ErrorIs(t, err, service.ErrInvalidRecipient)
	assert.Empty(t, sender.Calls(), "the transport must never see an invalid recipient")
}

func TestMessageService_DispatchTransportFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{err: errors.New("provider down")}
	svc, repo, bus := newMessageServiceUnderTest(t, sender)

	_, err := svc.Dispatch(ctx, models.SendRequest{To: "+393331234567", Body: "x"})
	require.Error(t, err)

	// The conversation may exist (it is resolved before the send), but
	// no message, status or summary text lands.
	id, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)
	if id != "" {
		messages, listErr := repo.Messages().List(ctx, id)
		require.NoError(t, listErr)
		assert.Empty(t, messages)

		statuses, queryErr := repo.Statuses().Query(ctx, id, 0)
		require.NoError(t, queryErr)
		assert.Empty(t, statuses)
	}
	assert.Empty(t, bus.Events())
}

func TestMessageService_DispatchHonorsExplicitConversation(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{resp: &transport.SendResponse{SID: "SM300", Status: "queued"}}
	svc, repo, _ := newMessageServiceUnderTest(t, sender)

	// Seed a conversation through ingest first.
	require.NoError(t, svc.Ingest(ctx, models.InboundMessage{From: "+393331234567", Body: "hi", Timestamp: 1000}))
	id, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)

	result, err := svc.Dispatch(ctx, models.SendRequest{
		To:             "+393331234567",
		Body:           "reply",
		ConversationID: id,
	})
	require.NoError(t, err)
	assert.Equal(t, id, result.ConversationID)

	messages, err := repo.Messages().List(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestMessageService_DispatchMissingFromNumber(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Twilio.FromNumber = ""

	repo := repository.NewRepository(store.NewMemory())
	svc := service.NewMessageService(cfg, repo, phone.NewNormalizer("39"), &fakeSender{}, &recordingBus{}, nil, zap.NewNop())

	_, err := svc.Dispatch(ctx, models.SendRequest{To: "+393331234567", Body: "x"})
	assert.ErrorIs(t, err, service.ErrMissingFromNumber)
}

func TestMessageService_CircuitBreakerStatus(t *testing.T) {
	svc, _, _ := newMessageServiceUnderTest(t, &fakeSender{resp: &transport.SendResponse{SID: "SM1"}})

	state, requests, failures := svc.CircuitBreakerStatus()
	assert.Equal(t, service.BreakerClosed, state)
	assert.Zero(t, requests)
	assert.Zero(t, failures)
}
