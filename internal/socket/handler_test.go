package socket_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/presence"
	"github.com/example/raksha/internal/socket"
	"github.com/example/raksha/internal/sos/domain"
	"github.com/example/raksha/internal/sos/repository"
)

func startServer(t *testing.T, reg *presence.Registry, dir domain.Directory) string {
	t.Helper()
	handler := socket.NewHandler(reg, dir, zap.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func identify(t *testing.T, conn *websocket.Conn, userID uuid.UUID) {
	t.Helper()
	msg := map[string]string{"type": "identify", "user_id": userID.String()}
	require.NoError(t, conn.WriteJSON(msg))
}

func waitForCount(t *testing.T, reg *presence.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, want, reg.Count())
}

func waitForSession(t *testing.T, reg *presence.Registry, userID uuid.UUID) domain.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.Lookup(userID); ok {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session for %s never registered", userID)
	return nil
}

func TestIdentifyRegistersSession(t *testing.T) {
	reg := presence.NewRegistry()
	url := startServer(t, reg, repository.NewMemoryDirectory())

	conn := dial(t, url)
	userID := uuid.New()
	identify(t, conn, userID)

	waitForSession(t, reg, userID)
	require.Equal(t, 1, reg.Count())
}

func TestUnidentifiedConnectionInvisible(t *testing.T) {
	reg := presence.NewRegistry()
	url := startServer(t, reg, repository.NewMemoryDirectory())

	dial(t, url)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, reg.Count())
}

func TestPushAlertReachesClient(t *testing.T) {
	reg := presence.NewRegistry()
	url := startServer(t, reg, repository.NewMemoryDirectory())

	conn := dial(t, url)
	userID := uuid.New()
	identify(t, conn, userID)
	session := waitForSession(t, reg, userID)

	alert := domain.Alert{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		UserName: "Aoife",
		Point:    domain.GeoPoint{Lat: 53.35, Lng: -6.26},
	}
	require.NoError(t, session.PushAlert(alert))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type  string       `json:"type"`
		Alert domain.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "sos-alert", msg.Type)
	require.Equal(t, alert.ID, msg.Alert.ID)
	require.Equal(t, "Aoife", msg.Alert.UserName)
}

func TestDisconnectUnregisters(t *testing.T) {
	reg := presence.NewRegistry()
	url := startServer(t, reg, repository.NewMemoryDirectory())

	conn := dial(t, url)
	userID := uuid.New()
	identify(t, conn, userID)
	waitForSession(t, reg, userID)

	require.NoError(t, conn.Close())
	waitForCount(t, reg, 0)
}

func TestStaleDisconnectKeepsNewerSession(t *testing.T) {
	reg := presence.NewRegistry()
	url := startServer(t, reg, repository.NewMemoryDirectory())
	userID := uuid.New()

	older := dial(t, url)
	identify(t, older, userID)
	olderSession := waitForSession(t, reg, userID)

	newer := dial(t, url)
	identify(t, newer, userID)
	var newerSession domain.Session
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.Lookup(userID); ok && s != olderSession {
			newerSession = s
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, newerSession)

	// The older connection drops after being replaced; the registry must
	// keep pointing at the newer session.
	require.NoError(t, older.Close())
	time.Sleep(100 * time.Millisecond)
	got, ok := reg.Lookup(userID)
	require.True(t, ok)
	require.Equal(t, newerSession, got)
}

func TestReportLocationOverSocket(t *testing.T) {
	reg := presence.NewRegistry()
	dir := repository.NewMemoryDirectory()
	userID := dir.AddUser("Niamh", domain.StatusApproved, nil)
	url := startServer(t, reg, dir)

	conn := dial(t, url)
	identify(t, conn, userID)
	waitForSession(t, reg, userID)

	lat, lng := 53.2707, -9.0568
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "report-location", "lat": lat, "lng": lng,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		user, err := dir.GetUser(context.Background(), userID)
		require.NoError(t, err)
		if user.Location != nil {
			require.Equal(t, lat, user.Location.Lat)
			require.Equal(t, lng, user.Location.Lng)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("location never updated")
}
