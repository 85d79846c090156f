package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingTransport_SubmitAndCursor(t *testing.T) {
	var gotBody map[string]string
	var sinceSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/room%201/events", r.URL.EscapedPath())
		switch r.Method {
		case http.MethodPost:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":true,"eventId":12}`))
		case http.MethodGet:
			sinceSeen = append(sinceSeen, r.URL.Query().Get("since"))
			if len(sinceSeen) == 1 {
				_, _ = w.Write([]byte(`{"events":[{"id":11,"type":"letter","payload":"a"},{"id":12,"type":"word","payload":"hi "}],"nextSince":12}`))
				return
			}
			_, _ = w.Write([]byte(`{"events":[],"nextSince":12}`))
		}
	}))
	defer srv.Close()

	transport := NewPollingTransport(srv.URL+"/", srv.Client())
	ctx := context.Background()

	eventID, err := transport.Submit(ctx, "room 1", domain.EventTypeWord, "hi ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), eventID)
	assert.Equal(t, map[string]string{"type": "word", "payload": "hi "}, gotBody)

	events, err := transport.Poll(ctx, "room 1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "hi ", events[1].Payload)
	assert.Equal(t, int64(12), transport.Cursor("room 1"))

	events, err = transport.Poll(ctx, "room 1")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, []string{"0", "12"}, sinceSeen)

	transport.ResetCursor("room 1")
	assert.Equal(t, int64(0), transport.Cursor("room 1"))
}

func TestPollingTransport_DeliveryRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"roomCode, type and payload are required"}`))
	}))
	defer srv.Close()

	transport := NewPollingTransport(srv.URL, nil)
	_, err := transport.Submit(context.Background(), "r", domain.EventTypeLetter, "a")

	var rejected *DeliveryRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Equal(t, "roomCode, type and payload are required", rejected.Message)
}

func TestPollingTransport_CursorUnchangedOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	transport := NewPollingTransport(srv.URL, nil)
	_, err := transport.Poll(context.Background(), "r")

	var rejected *DeliveryRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusTooManyRequests, rejected.StatusCode)
	assert.Equal(t, int64(0), transport.Cursor("r"))
}
