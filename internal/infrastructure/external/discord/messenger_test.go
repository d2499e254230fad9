package discord

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

func TestSendToTenant(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMessenger(Config{Webhooks: map[string]string{"alpha-cup": srv.URL}})

	require.NoError(t, m.SendToTenant(context.Background(), "alpha-cup", "race is on"))
	assert.Equal(t, "race is on", got.Content)
}

func TestSendToTenant_UnknownTenant(t *testing.T) {
	m := NewMessenger(Config{Webhooks: map[string]string{}})

	err := m.SendToTenant(context.Background(), "ghost-cup", "hello")
	assert.ErrorIs(t, err, notification.ErrUnknownTenant)
}

func TestSendToAll_PrefersAnnounceWebhook(t *testing.T) {
	var announceCalls, tenantCalls int
	announce := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		announceCalls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer announce.Close()
	tenant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantCalls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer tenant.Close()

	m := NewMessenger(Config{
		Webhooks:        map[string]string{"alpha-cup": tenant.URL},
		AnnounceWebhook: announce.URL,
	})

	require.NoError(t, m.SendToAll(context.Background(), "season is over"))
	assert.Equal(t, 1, announceCalls)
	assert.Equal(t, 0, tenantCalls)
}

func TestSendToAll_DeduplicatesSharedWebhooks(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMessenger(Config{
		Webhooks: map[string]string{"alpha-cup": srv.URL, "beta-cup": srv.URL},
	})

	require.NoError(t, m.SendToAll(context.Background(), "announcement"))
	assert.Equal(t, 1, calls)
}

func TestSendToTenant_ClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewMessenger(Config{Webhooks: map[string]string{"alpha-cup": srv.URL}})

	err := m.SendToTenant(context.Background(), "alpha-cup", "bad")
	assert.ErrorIs(t, err, notification.ErrSendFailed)
	assert.Equal(t, 1, calls)
}
