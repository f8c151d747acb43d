package cache

import (
	"context"
	"errors"

	"student-records/internal/student"
)

const (
	studentViewPrefix       = "student:view:"
	studentGenerationPrefix = "student:view-gen:"
)

// StudentViews adapts Cache to the record service's view cache.
type StudentViews struct {
	cache *Cache
}

func NewStudentViews(c *Cache) *StudentViews {
	return &StudentViews{cache: c}
}

func studentViewKey(uid string) string {
	return studentViewPrefix + uid
}

func studentGenerationKey(uid string) string {
	return studentGenerationPrefix + uid
}

func (s *StudentViews) Get(ctx context.Context, uid string) (*student.StudentView, bool, error) {
	var view student.StudentView
	if err := s.cache.Get(ctx, studentViewKey(uid), &view); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &view, true, nil
}

func (s *StudentViews) Generation(ctx context.Context, uid string) (int64, error) {
	return s.cache.Generation(ctx, studentGenerationKey(uid))
}

func (s *StudentViews) Set(ctx context.Context, uid string, view *student.StudentView, generation int64) (bool, error) {
	return s.cache.SetIfGeneration(ctx, studentViewKey(uid), studentGenerationKey(uid), generation, view)
}

func (s *StudentViews) Invalidate(ctx context.Context, uid string) error {
	return s.cache.Advance(ctx, studentGenerationKey(uid), studentViewKey(uid))
}

var _ student.ViewCache = (*StudentViews)(nil)
