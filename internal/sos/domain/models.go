package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RadiusMeters is the fixed alert radius. It is a property of the whole
// system, not configurable per alert.
const RadiusMeters = 3000.0

type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusApproved UserStatus = "approved"
	StatusRejected UserStatus = "rejected"
)

// ErrLocationRequired rejects a dispatch or location report with missing coordinates.
var ErrLocationRequired = errors.New("location is required")

// ErrUserNotFound indicates the user identity is unresolvable.
var ErrUserNotFound = errors.New("user not found")

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// User is the directory record consulted by the dispatcher. Location is nil
// until the user reports coordinates at least once; a location reported once
// stays valid indefinitely.
type User struct {
	ID              uuid.UUID
	Name            string
	Email           string
	County          string
	Status          UserStatus
	Location        *GeoPoint
	LocationUpdated *time.Time
	CreatedAt       time.Time
}

// Candidate is an approved user with known coordinates, eligible for
// distance filtering during a dispatch.
type Candidate struct {
	UserID uuid.UUID
	Name   string
	Point  GeoPoint
}

// Alert is the persisted SOS record. Immutable once created; broadcast
// zero or more times, never mutated.
type Alert struct {
	ID        uuid.UUID `json:"alert_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	Point     GeoPoint  `json:"location"`
	CreatedAt time.Time `json:"timestamp"`
}

// Directory exposes the user records and last-known locations the dispatcher
// reads. Storage failures must surface as errors, never be swallowed.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, point GeoPoint) error
	CandidatesExcluding(ctx context.Context, id uuid.UUID) ([]Candidate, error)
}

// AlertRepository persists alert records.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert Alert) (Alert, error)
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// Session is a live, addressable connection for a user. Handles are borrowed
// references owned by the presence registry and valid only until disconnect.
type Session interface {
	PushAlert(alert Alert) error
}

// EventPublisher broadcasts alert events to interested consumers (audit,
// admin dashboards). Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, alert Alert) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
