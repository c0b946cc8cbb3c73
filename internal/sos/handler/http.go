package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/auth"
	"github.com/example/raksha/internal/sos/dispatch"
	"github.com/example/raksha/internal/sos/domain"
)

const recentAlertsLimit = 50

// HTTP exposes the SOS and user-location endpoints.
type HTTP struct {
	dispatcher *dispatch.Dispatcher
	users      domain.Directory
	alerts     domain.AlertRepository
	jwtSecret  string
	logger     *zap.Logger
}

// NewHTTP constructs a handler.
func NewHTTP(dispatcher *dispatch.Dispatcher, users domain.Directory, alerts domain.AlertRepository, jwtSecret string, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{dispatcher: dispatcher, users: users, alerts: alerts, jwtSecret: jwtSecret, logger: logger}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret))
		r.Post("/v1/users/location", h.updateLocation)
		r.Get("/v1/users/profile", h.profile)
		r.Post("/v1/sos/alert", h.triggerAlert)
		r.Get("/v1/sos/recent", h.recentAlerts)
	})
	return r
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *HTTP) updateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	var payload locationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		http.Error(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}

	point := domain.GeoPoint{Lat: *payload.Latitude, Lng: *payload.Longitude}
	if err := h.users.UpdateLocation(r.Context(), userID, point); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("location update failed", zap.Error(err), zap.String("user_id", userID.String()))
		http.Error(w, "failed to update location", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTP) profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to get profile", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{
		"id":     user.ID,
		"name":   user.Name,
		"email":  user.Email,
		"county": user.County,
		"status": user.Status,
	}})
}

func (h *HTTP) triggerAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	var payload locationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), userID, payload.Latitude, payload.Longitude)
	switch {
	case errors.Is(err, domain.ErrLocationRequired):
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("dispatch failed", zap.Error(err), zap.String("user_id", userID.String()))
		http.Error(w, "failed to send SOS alert", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"alert_id":       result.AlertID,
		"notified_users": result.Notified,
	})
}

func (h *HTTP) recentAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.RecentAlerts(r.Context(), recentAlertsLimit)
	if err != nil {
		h.logger.Error("recent alerts query failed", zap.Error(err))
		http.Error(w, "failed to get alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
