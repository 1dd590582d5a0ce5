package memory

import (
	"context"
	"sync"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// ClassroomStore is an in-memory implementation of app.ClassroomStore,
// authoritative for a single-process deployment and used by tests.
type ClassroomStore struct {
	mu           sync.RWMutex
	classrooms   map[string]domain.Classroom
	byJoinCode   map[string]string
	participants map[string][]domain.Participant
	scores       map[string][]domain.Score
	scoreKeys    map[string]struct{} // participantID+"|"+exerciseID
}

func NewClassroomStore() *ClassroomStore {
	return &ClassroomStore{
		classrooms:   make(map[string]domain.Classroom),
		byJoinCode:   make(map[string]string),
		participants: make(map[string][]domain.Participant),
		scores:       make(map[string][]domain.Score),
		scoreKeys:    make(map[string]struct{}),
	}
}

func (s *ClassroomStore) CreateClassroom(_ context.Context, c domain.Classroom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byJoinCode[c.JoinCode]; ok {
		return app.ErrJoinCodeTaken
	}
	s.classrooms[c.ID] = c
	s.byJoinCode[c.JoinCode] = c.ID
	return nil
}

func (s *ClassroomStore) GetClassroom(_ context.Context, id string) (domain.Classroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classrooms[id]
	if !ok {
		return domain.Classroom{}, domain.ErrClassroomNotFound
	}
	return c, nil
}

func (s *ClassroomStore) ResolveJoinCode(_ context.Context, code string) (domain.Classroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byJoinCode[code]
	if !ok {
		return domain.Classroom{}, domain.ErrClassroomNotFound
	}
	return s.classrooms[id], nil
}

func (s *ClassroomStore) CompareAndSetRound(_ context.Context, classroomID string, prevRound, nextRound int, exerciseID string, started bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classrooms[classroomID]
	if !ok {
		return false, domain.ErrClassroomNotFound
	}
	if c.CurrentRound != prevRound {
		return false, nil
	}
	c.CurrentRound = nextRound
	c.CurrentExercise = exerciseID
	c.TestStarted = started
	s.classrooms[classroomID] = c
	return true, nil
}

func (s *ClassroomStore) AddParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classrooms[p.ClassroomID]; !ok {
		return domain.ErrClassroomNotFound
	}
	s.participants[p.ClassroomID] = append(s.participants[p.ClassroomID], p)
	return nil
}

func (s *ClassroomStore) ListParticipants(_ context.Context, classroomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants := s.participants[classroomID]
	out := make([]domain.Participant, len(participants))
	copy(out, participants)
	return out, nil
}

func (s *ClassroomStore) InsertScore(_ context.Context, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classrooms[score.ClassroomID]; !ok {
		return domain.ErrClassroomNotFound
	}
	key := score.ParticipantID + "|" + score.ExerciseID
	if _, ok := s.scoreKeys[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	s.scoreKeys[key] = struct{}{}
	s.scores[score.ClassroomID] = append(s.scores[score.ClassroomID], score)
	return nil
}

func (s *ClassroomStore) ListScores(_ context.Context, classroomID string) ([]domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := s.scores[classroomID]
	out := make([]domain.Score, len(scores))
	copy(out, scores)
	return out, nil
}
