package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type mockCourseRepo struct {
	courses map[string]*models.Course
	active  map[string]int
	reads   int
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	m.reads++
	if c, ok := m.courses[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var result []models.Course
	for _, c := range m.courses {
		result = append(result, *c)
	}
	return result, len(result), nil
}

func (m *mockCourseRepo) CountActiveEnrollments(ctx context.Context, courseID string) (int, error) {
	return m.active[courseID], nil
}

func (m *mockCourseRepo) Deactivate(ctx context.Context, id string) error {
	if c, ok := m.courses[id]; ok {
		c.Active = false
	}
	return nil
}

type mockCache struct {
	entries map[string][]byte
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string][]byte{}}
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		delete(m.entries, key)
		m.deleted = append(m.deleted, key)
	}
}

func TestCourseAvailabilityCaching(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"c-1": openCourse("c-1", 3, 10),
	}}
	cache := newMockCache()
	svc := NewCourseService(repo, cache, 30*time.Second, nil)

	snapshot, err := svc.Availability(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snapshot.Total)
	assert.Equal(t, 3, snapshot.Occupied)
	assert.Equal(t, 7, snapshot.Available)
	firstReads := repo.reads

	// A second read is served from cache.
	snapshot, err = svc.Availability(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 7, snapshot.Available)
	assert.Equal(t, firstReads, repo.reads)

	// Invalidation forces the next read through the repository.
	repo.courses["c-1"].CapacityOccupied = 4
	svc.InvalidateAvailability(context.Background(), "c-1")
	snapshot, err = svc.Availability(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 6, snapshot.Available)
	assert.Greater(t, repo.reads, firstReads)
}

func TestCourseAvailabilityWithoutCache(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"c-1": openCourse("c-1", 9, 10),
	}}
	svc := NewCourseService(repo, nil, 30*time.Second, nil)

	snapshot, err := svc.Availability(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Available)
}

func TestCourseAvailabilityNotFound(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{courses: map[string]*models.Course{}}, nil, 0, nil)

	_, err := svc.Availability(context.Background(), "c-missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCourseDeactivate(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]*models.Course{"c-1": openCourse("c-1", 0, 10)},
		active:  map[string]int{},
	}
	svc := NewCourseService(repo, newMockCache(), time.Minute, nil)

	course, err := svc.Deactivate(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, course.Active)
}

func TestCourseDeactivateWithActiveEnrollments(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]*models.Course{"c-1": openCourse("c-1", 2, 10)},
		active:  map[string]int{"c-1": 2},
	}
	svc := NewCourseService(repo, nil, time.Minute, nil)

	_, err := svc.Deactivate(context.Background(), "c-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.True(t, repo.courses["c-1"].Active)
}
