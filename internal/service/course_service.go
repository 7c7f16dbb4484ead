package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	CountActiveEnrollments(ctx context.Context, courseID string) (int, error)
	Deactivate(ctx context.Context, id string) error
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string)
}

// CourseService serves course reads and the cached seat-availability
// snapshot.
type CourseService struct {
	repo     courseRepository
	cache    availabilityCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, cache availabilityCache, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &CourseService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func availabilityKey(courseID string) string {
	return fmt.Sprintf("course:availability:%s", courseID)
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Availability returns the seat snapshot for a course, served from cache
// when fresh. The snapshot is advisory; promotion re-checks capacity
// under the course row lock.
func (s *CourseService) Availability(ctx context.Context, courseID string) (*models.CourseAvailability, error) {
	key := availabilityKey(courseID)
	if s.cache != nil {
		var cached models.CourseAvailability
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("availability cache read failed", zap.String("course_id", courseID), zap.Error(err))
		}
	}

	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	snapshot := &models.CourseAvailability{
		CourseID:  course.ID,
		Total:     course.CapacityTotal,
		Occupied:  course.CapacityOccupied,
		Available: course.CapacityTotal - course.CapacityOccupied,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("availability cache write failed", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	return snapshot, nil
}

// InvalidateAvailability drops the cached snapshot after a seat movement.
func (s *CourseService) InvalidateAvailability(ctx context.Context, courseID string) {
	if s.cache != nil {
		s.cache.Delete(ctx, availabilityKey(courseID))
	}
}

// Deactivate marks a course inactive once no active enrollments remain.
func (s *CourseService) Deactivate(ctx context.Context, id string) (*models.Course, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	active, err := s.repo.CountActiveEnrollments(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if active > 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course still has active enrollments")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate course")
	}
	s.InvalidateAvailability(ctx, id)
	return s.Get(ctx, id)
}
