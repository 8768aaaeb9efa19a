package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashdeck-backend/internal/events"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
)

func newTestHub(t *testing.T) (*Hub, *miniredis.Miniredis, *redis.Client, *middleware.JWTAuth, *httptest.Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	auth := middleware.NewJWTAuth("ws-secret")
	hub := NewHub(client, auth, "http://localhost:5173")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)
	return hub, mr, client, auth, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
}

func TestHub_RejectsMissingOrBadToken(t *testing.T) {
	_, _, _, _, srv := newTestHub(t)

	for _, token := range []string{"", "not-a-jwt"} {
		resp, err := http.Get(srv.URL + "?token=" + token)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, _, _, auth, srv := newTestHub(t)
	token, err := auth.IssueToken(uuid.New(), time.Hour)
	require.NoError(t, err)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_RelaysPublishedEventsToEveryTab(t *testing.T) {
	hub, mr, client, auth, srv := newTestHub(t)
	userID := uuid.New()
	token, err := auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)

	tab1, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer tab1.Close()
	tab2, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer tab2.Close()

	channel := events.Channel(userID)
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == 2 && mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := events.CardReviewed{FlashcardID: uuid.New(), Difficulty: 3, EaseFactor: 2.36, IntervalDays: 1}
	err = events.NewPublisher(client).Publish(context.Background(), userID, models.WSMessage{Type: events.TypeCardReviewed, Payload: payload})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type    string              `json:"type"`
			Payload events.CardReviewed `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, events.TypeCardReviewed, msg.Type)
		assert.Equal(t, payload.FlashcardID, msg.Payload.FlashcardID)
	}
}

func TestHub_UnsubscribesAfterLastDisconnect(t *testing.T) {
	hub, mr, _, auth, srv := newTestHub(t)
	userID := uuid.New()
	token, err := auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)

	channel := events.Channel(userID)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == 0 && mr.PubSubNumSub(channel)[channel] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
