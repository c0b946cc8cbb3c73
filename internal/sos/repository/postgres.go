package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/raksha/internal/sos/domain"
)

// PostgresStore backs the directory and alert repository with Postgres.
// Alert writes also append to the outbox table inside the same transaction
// so the relay worker can publish them without dual-write races.
type PostgresStore struct {
	db           *sql.DB
	outboxTopic  string
	outboxEnable bool
}

// NewPostgresStore constructs the store. An empty outboxTopic disables the
// outbox append.
func NewPostgresStore(db *sql.DB, outboxTopic string) *PostgresStore {
	return &PostgresStore{db: db, outboxTopic: outboxTopic, outboxEnable: outboxTopic != ""}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			county TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			last_location_lat DOUBLE PRECISION,
			last_location_lng DOUBLE PRECISION,
			last_location_updated TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sos_alerts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// GetUser retrieves a user record by id.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, county, status, last_location_lat, last_location_lng, last_location_updated, created_at FROM users WHERE id = $1`, id)
	var user domain.User
	var lat, lng sql.NullFloat64
	var updated sql.NullTime
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.County, &user.Status, &lat, &lng, &updated, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	if lat.Valid && lng.Valid {
		user.Location = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if updated.Valid {
		t := updated.Time
		user.LocationUpdated = &t
	}
	return user, nil
}

// UpdateLocation overwrites the user's last-known coordinates.
func (s *PostgresStore) UpdateLocation(ctx context.Context, id uuid.UUID, point domain.GeoPoint) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_location_lat = $1, last_location_lng = $2, last_location_updated = now() WHERE id = $3`, point.Lat, point.Lng, id)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update location result: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// CandidatesExcluding returns approved users with known coordinates, minus
// the given user.
func (s *PostgresStore) CandidatesExcluding(ctx context.Context, id uuid.UUID) ([]domain.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, last_location_lat, last_location_lng FROM users WHERE status = 'approved' AND id != $1 AND last_location_lat IS NOT NULL AND last_location_lng IS NOT NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.UserID, &c.Name, &c.Point.Lat, &c.Point.Lng); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// CreateAlert persists the alert and, when enabled, appends the serialised
// event to the outbox in the same transaction.
func (s *PostgresStore) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT INTO sos_alerts (id, user_id, latitude, longitude, created_at) VALUES ($1, $2, $3, $4, $5)`,
		alert.ID, alert.UserID, alert.Point.Lat, alert.Point.Lng, alert.CreatedAt); err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}

	if s.outboxEnable {
		payload, err := json.Marshal(alert)
		if err != nil {
			return domain.Alert{}, fmt.Errorf("marshal alert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2)`, s.outboxTopic, payload); err != nil {
			return domain.Alert{}, fmt.Errorf("insert outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Alert{}, fmt.Errorf("commit alert: %w", err)
	}
	return alert, nil
}

// RecentAlerts returns the latest alerts joined with the sender's name.
func (s *PostgresStore) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a.id, a.user_id, u.name, a.latitude, a.longitude, a.created_at FROM sos_alerts a JOIN users u ON a.user_id = u.id ORDER BY a.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.Point.Lat, &a.Point.Lng, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
