package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/raksha/internal/sos/domain"
)

const defaultGeoKey = "user:locs"

// RedisGeoIndex maintains a Redis GEO set of user coordinates. It is a
// coarse index only: the dispatcher always re-checks candidates with the
// exact haversine filter, so a slightly generous search radius is safe.
type RedisGeoIndex struct {
	client redis.Cmdable
	key    string
}

// NewRedisGeoIndex constructs a Redis-backed geo index.
func NewRedisGeoIndex(client redis.Cmdable, key string) *RedisGeoIndex {
	if key == "" {
		key = defaultGeoKey
	}
	return &RedisGeoIndex{client: client, key: key}
}

// UpsertLocation stores the user's coordinates in the geo set.
func (r *RedisGeoIndex) UpsertLocation(ctx context.Context, userID uuid.UUID, point domain.GeoPoint) error {
	if r == nil || r.client == nil {
		return errors.New("redis geo index not configured")
	}
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      userID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Nearby returns ids of users indexed within radiusMeters of the point,
// closest first.
func (r *RedisGeoIndex) Nearby(ctx context.Context, point domain.GeoPoint, radiusMeters float64) ([]uuid.UUID, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis geo index not configured")
	}

	results, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  point.Lng,
			Latitude:   point.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	for _, res := range results {
		id, err := uuid.Parse(res.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid geo member %q: %w", res.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IndexedDirectory layers the geo index over a base directory. Location
// writes go through to both; candidate reads use the index to narrow the
// set before hydrating names and statuses from the base directory.
type IndexedDirectory struct {
	base  domain.Directory
	index *RedisGeoIndex
}

// NewIndexedDirectory wraps base with the geo index.
func NewIndexedDirectory(base domain.Directory, index *RedisGeoIndex) *IndexedDirectory {
	return &IndexedDirectory{base: base, index: index}
}

// GetUser delegates to the base directory.
func (d *IndexedDirectory) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	return d.base.GetUser(ctx, id)
}

// UpdateLocation writes through to the base directory and the index. The
// base write is authoritative; an index failure is surfaced after the base
// has been updated, so on error the base already holds the new point while
// the index keeps the old one until the next successful report. Candidates
// pulled from the stale index are still re-checked against base coordinates
// by the exact distance filter.
func (d *IndexedDirectory) UpdateLocation(ctx context.Context, id uuid.UUID, point domain.GeoPoint) error {
	if err := d.base.UpdateLocation(ctx, id, point); err != nil {
		return err
	}
	return d.index.UpsertLocation(ctx, id, point)
}

// CandidatesExcluding delegates the exhaustive scan to the base directory.
func (d *IndexedDirectory) CandidatesExcluding(ctx context.Context, id uuid.UUID) ([]domain.Candidate, error) {
	return d.base.CandidatesExcluding(ctx, id)
}

// CandidatesNear returns candidates the index places within radiusMeters of
// the point, excluding the given user, hydrated from the base directory.
// Users missing from the index fall back into the result via the base scan
// only when the index itself fails.
func (d *IndexedDirectory) CandidatesNear(ctx context.Context, id uuid.UUID, point domain.GeoPoint, radiusMeters float64) ([]domain.Candidate, error) {
	// Pad the radius: geohash quantisation can shift a stored point by a
	// few meters, and the dispatcher re-filters exactly anyway.
	ids, err := d.index.Nearby(ctx, point, radiusMeters*1.05)
	if err != nil {
		return d.base.CandidatesExcluding(ctx, id)
	}

	candidates := make([]domain.Candidate, 0, len(ids))
	for _, candidateID := range ids {
		if candidateID == id {
			continue
		}
		user, err := d.base.GetUser(ctx, candidateID)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if user.Status != domain.StatusApproved || user.Location == nil {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			UserID: user.ID,
			Name:   user.Name,
			Point:  *user.Location,
		})
	}
	return candidates, nil
}
