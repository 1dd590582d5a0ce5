package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// ClassroomStore decorates an inner store with Redis bookkeeping:
//   - a liveness key per classroom, refreshed on access, so stale
//     classrooms expire by disuse;
//   - a join-code index so code resolution skips the inner store on the
//     hot join path.
//
// All writes remain the inner store's; the Redis keys are best-effort.
type ClassroomStore struct {
	inner  app.ClassroomStore
	client *redis.Client
	ttl    time.Duration
}

func NewClassroomStore(inner app.ClassroomStore, client *redis.Client, ttl time.Duration) *ClassroomStore {
	return &ClassroomStore{inner: inner, client: client, ttl: ttl}
}

func (s *ClassroomStore) CreateClassroom(ctx context.Context, c domain.Classroom) error {
	if err := s.inner.CreateClassroom(ctx, c); err != nil {
		return err
	}
	_ = s.client.Set(ctx, liveKey(c.ID), "1", s.ttl).Err()
	_ = s.client.Set(ctx, codeKey(c.JoinCode), c.ID, s.ttl).Err()
	return nil
}

func (s *ClassroomStore) GetClassroom(ctx context.Context, id string) (domain.Classroom, error) {
	c, err := s.inner.GetClassroom(ctx, id)
	if err != nil {
		return domain.Classroom{}, err
	}
	_ = s.client.Expire(ctx, liveKey(id), s.ttl).Err()
	return c, nil
}

func (s *ClassroomStore) ResolveJoinCode(ctx context.Context, code string) (domain.Classroom, error) {
	if id, err := s.client.Get(ctx, codeKey(code)).Result(); err == nil && id != "" {
		return s.GetClassroom(ctx, id)
	}
	c, err := s.inner.ResolveJoinCode(ctx, code)
	if err != nil {
		return domain.Classroom{}, err
	}
	_ = s.client.Set(ctx, codeKey(code), c.ID, s.ttl).Err()
	return c, nil
}

func (s *ClassroomStore) CompareAndSetRound(ctx context.Context, classroomID string, prevRound, nextRound int, exerciseID string, started bool) (bool, error) {
	applied, err := s.inner.CompareAndSetRound(ctx, classroomID, prevRound, nextRound, exerciseID, started)
	if err == nil && applied {
		_ = s.client.Expire(ctx, liveKey(classroomID), s.ttl).Err()
	}
	return applied, err
}

func (s *ClassroomStore) AddParticipant(ctx context.Context, p domain.Participant) error {
	return s.inner.AddParticipant(ctx, p)
}

func (s *ClassroomStore) ListParticipants(ctx context.Context, classroomID string) ([]domain.Participant, error) {
	return s.inner.ListParticipants(ctx, classroomID)
}

func (s *ClassroomStore) InsertScore(ctx context.Context, score domain.Score) error {
	return s.inner.InsertScore(ctx, score)
}

func (s *ClassroomStore) ListScores(ctx context.Context, classroomID string) ([]domain.Score, error) {
	return s.inner.ListScores(ctx, classroomID)
}

func liveKey(classroomID string) string {
	return "classroom:live:" + classroomID
}

func codeKey(code string) string {
	return "classroom:code:" + code
}
