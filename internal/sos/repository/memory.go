package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/raksha/internal/sos/domain"
)

// MemoryDirectory provides an in-memory user directory suitable for tests
// and local demos.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[uuid.UUID]domain.User)}
}

// AddUser inserts a user and returns its generated id.
func (m *MemoryDirectory) AddUser(name string, status domain.UserStatus, location *domain.GeoPoint) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	user := domain.User{
		ID:        id,
		Name:      name,
		Status:    status,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
	if location != nil {
		now := time.Now().UTC()
		user.LocationUpdated = &now
	}
	m.users[id] = user
	return id
}

// GetUser retrieves a user record.
func (m *MemoryDirectory) GetUser(_ context.Context, id uuid.UUID) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// UpdateLocation overwrites the user's last-known coordinates.
func (m *MemoryDirectory) UpdateLocation(_ context.Context, id uuid.UUID, point domain.GeoPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.Location = &point
	user.LocationUpdated = &now
	m.users[id] = user
	return nil
}

// CandidatesExcluding returns approved users with known coordinates, minus
// the given user.
func (m *MemoryDirectory) CandidatesExcluding(_ context.Context, id uuid.UUID) ([]domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidates := make([]domain.Candidate, 0, len(m.users))
	for _, user := range m.users {
		if user.ID == id || user.Status != domain.StatusApproved || user.Location == nil {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			UserID: user.ID,
			Name:   user.Name,
			Point:  *user.Location,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UserID.String() < candidates[j].UserID.String()
	})
	return candidates, nil
}

// MemoryAlertRepository stores alert records in memory.
type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts []domain.Alert
}

// NewMemoryAlertRepository constructs an empty repository.
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{}
}

// CreateAlert stores the alert and returns it.
func (m *MemoryAlertRepository) CreateAlert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (m *MemoryAlertRepository) RecentAlerts(_ context.Context, limit int) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

// Alerts returns all stored alerts (for tests).
func (m *MemoryAlertRepository) Alerts() []domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Alert(nil), m.alerts...)
}
