package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/notification"
)

func newTestMessenger(t *testing.T, handler http.HandlerFunc, chatIDs map[string]int64) *Messenger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewMessenger(Config{
		Token:   "test-token",
		BaseURL: srv.URL,
		ChatIDs: chatIDs,
	})
}

func okResponse(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
}

func TestSendToTenant(t *testing.T) {
	var got sendMessageRequest
	m := newTestMessenger(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		okResponse(w)
	}, map[string]int64{"alpha-cup": -100123})

	require.NoError(t, m.SendToTenant(context.Background(), "alpha-cup", "race is on"))
	assert.Equal(t, int64(-100123), got.ChatID)
	assert.Equal(t, "race is on", got.Text)
}

func TestSendToTenant_UnknownTenant(t *testing.T) {
	m := NewMessenger(Config{Token: "t", ChatIDs: map[string]int64{}})

	err := m.SendToTenant(context.Background(), "ghost-cup", "hello")
	assert.ErrorIs(t, err, notification.ErrUnknownTenant)
}

func TestSendToAll_FallsBackToTenantChats(t *testing.T) {
	var chatIDs []int64
	m := newTestMessenger(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		chatIDs = append(chatIDs, req.ChatID)
		okResponse(w)
	}, map[string]int64{"alpha-cup": -1, "beta-cup": -2})

	require.NoError(t, m.SendToAll(context.Background(), "season is over"))
	assert.Len(t, chatIDs, 2)
}

func TestSendToTenant_APIErrorIsNotRetried(t *testing.T) {
	var calls int
	m := newTestMessenger(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(apiResponse{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: chat not found",
		})
	}, map[string]int64{"alpha-cup": -100123})

	err := m.SendToTenant(context.Background(), "alpha-cup", "hello")
	assert.ErrorIs(t, err, notification.ErrSendFailed)
	assert.Equal(t, 1, calls)
}
