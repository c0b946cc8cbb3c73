package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/auth"
	"github.com/example/raksha/internal/presence"
	"github.com/example/raksha/internal/sos/dispatch"
	"github.com/example/raksha/internal/sos/domain"
	"github.com/example/raksha/internal/sos/handler"
	"github.com/example/raksha/internal/sos/repository"
)

const secret = "handler-test-secret"

type env struct {
	dir    *repository.MemoryDirectory
	alerts *repository.MemoryAlertRepository
	reg    *presence.Registry
	router http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := repository.NewMemoryDirectory()
	alerts := repository.NewMemoryAlertRepository()
	reg := presence.NewRegistry()
	d := dispatch.New(dir, alerts, reg, nil, domain.SystemClock{}, zap.NewNop())
	h := handler.NewHTTP(d, dir, alerts, secret, zap.NewNop())
	return &env{dir: dir, alerts: alerts, reg: reg, router: h.Router()}
}

func token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := auth.Claims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router http.Handler, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token(t, userID))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateLocation(t *testing.T) {
	e := newEnv(t)
	userID := e.dir.AddUser("Saoirse", domain.StatusApproved, nil)

	rec := doJSON(t, e.router, http.MethodPost, "/v1/users/location", userID,
		map[string]float64{"latitude": 53.35, "longitude": -6.26})
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := e.dir.GetUser(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, user.Location)
	require.Equal(t, 53.35, user.Location.Lat)
}

func TestUpdateLocationMissingCoordinates(t *testing.T) {
	e := newEnv(t)
	userID := e.dir.AddUser("Saoirse", domain.StatusApproved, nil)

	rec := doJSON(t, e.router, http.MethodPost, "/v1/users/location", userID,
		map[string]float64{"latitude": 53.35})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerAlert(t *testing.T) {
	e := newEnv(t)
	origin := domain.GeoPoint{Lat: 53.3498, Lng: -6.2603}
	senderID := e.dir.AddUser("Sender", domain.StatusApproved, &origin)

	nearby := domain.GeoPoint{Lat: 53.3510, Lng: -6.2600}
	nearbyID := e.dir.AddUser("Nearby", domain.StatusApproved, &nearby)
	session := &recordingSession{}
	e.reg.Register(nearbyID, session)

	rec := doJSON(t, e.router, http.MethodPost, "/v1/sos/alert", senderID,
		map[string]float64{"latitude": origin.Lat, "longitude": origin.Lng})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success       bool      `json:"success"`
		AlertID       uuid.UUID `json:"alert_id"`
		NotifiedUsers int       `json:"notified_users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEqual(t, uuid.Nil, resp.AlertID)
	require.Equal(t, 1, resp.NotifiedUsers)
	require.Len(t, session.alerts, 1)
}

func TestTriggerAlertMissingLocation(t *testing.T) {
	e := newEnv(t)
	senderID := e.dir.AddUser("Sender", domain.StatusApproved, nil)

	rec := doJSON(t, e.router, http.MethodPost, "/v1/sos/alert", senderID, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerAlertUnknownUser(t *testing.T) {
	e := newEnv(t)
	rec := doJSON(t, e.router, http.MethodPost, "/v1/sos/alert", uuid.New(),
		map[string]float64{"latitude": 1, "longitude": 2})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerAlertUnauthenticated(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sos/alert", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecentAlerts(t *testing.T) {
	e := newEnv(t)
	origin := domain.GeoPoint{Lat: 53.3498, Lng: -6.2603}
	senderID := e.dir.AddUser("Sender", domain.StatusApproved, &origin)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, e.router, http.MethodPost, "/v1/sos/alert", senderID,
			map[string]float64{"latitude": origin.Lat, "longitude": origin.Lng})
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("dispatch %d", i))
	}

	rec := doJSON(t, e.router, http.MethodGet, "/v1/sos/recent", senderID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 2)
	require.NotEqual(t, resp.Alerts[0].ID, resp.Alerts[1].ID)
}

func TestProfile(t *testing.T) {
	e := newEnv(t)
	userID := e.dir.AddUser("Saoirse", domain.StatusApproved, nil)

	rec := doJSON(t, e.router, http.MethodGet, "/v1/users/profile", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Saoirse", resp.User.Name)
	require.Equal(t, "approved", resp.User.Status)
}

type recordingSession struct{ alerts []domain.Alert }

func (r *recordingSession) PushAlert(alert domain.Alert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}
