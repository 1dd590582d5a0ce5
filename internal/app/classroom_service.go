package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"draw-class-service/internal/domain"
)

// ErrJoinCodeTaken is returned by stores when a generated join code
// collides with an existing classroom; the service retries with a new one.
var ErrJoinCodeTaken = errors.New("join code already in use")

// joinCodeAttempts bounds collision retries at classroom creation.
const joinCodeAttempts = 5

// ClassroomStore is the authoritative session state all components read
// and write through (in-memory, Postgres).
type ClassroomStore interface {
	CreateClassroom(ctx context.Context, c domain.Classroom) error
	GetClassroom(ctx context.Context, id string) (domain.Classroom, error)
	ResolveJoinCode(ctx context.Context, code string) (domain.Classroom, error)
	// CompareAndSetRound applies the round transition only if the stored
	// round still equals prevRound, and reports whether it did.
	CompareAndSetRound(ctx context.Context, classroomID string, prevRound, nextRound int, exerciseID string, started bool) (bool, error)
	AddParticipant(ctx context.Context, p domain.Participant) error
	ListParticipants(ctx context.Context, classroomID string) ([]domain.Participant, error)
	// InsertScore writes a score atomically, failing with
	// domain.ErrDuplicateSubmission if the (participant, exercise) pair
	// already has one.
	InsertScore(ctx context.Context, s domain.Score) error
	ListScores(ctx context.Context, classroomID string) ([]domain.Score, error)
}

// CatalogRepository serves the ordered exercise catalog (from cache or a
// backing store).
type CatalogRepository interface {
	GetByIndex(ctx context.Context, index int) (domain.Exercise, error)
	Len(ctx context.Context) (int, error)
}

// ClassroomService contains the round lifecycle and scoring use cases.
type ClassroomService struct {
	store   ClassroomStore
	catalog CatalogRepository
	now     func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	sessMu   sync.Mutex
	sessions map[string]*session
}

func NewClassroomService(store ClassroomStore, catalog CatalogRepository) *ClassroomService {
	return &ClassroomService{
		store:    store,
		catalog:  catalog,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*session),
	}
}

// NewClassroomServiceWithClock is test-only for deterministic timestamps.
func NewClassroomServiceWithClock(store ClassroomStore, catalog CatalogRepository, now func() time.Time) *ClassroomService {
	svc := NewClassroomService(store, catalog)
	svc.now = now
	return svc
}

// CreateClassroom opens a new session in the lobby state and registers the
// teacher as its first participant.
func (s *ClassroomService) CreateClassroom(ctx context.Context, teacherName string) (domain.Classroom, domain.Participant, error) {
	var classroom domain.Classroom
	for attempt := 0; ; attempt++ {
		classroom = domain.Classroom{
			ID:           uuid.NewString(),
			JoinCode:     s.nextJoinCode(),
			CurrentRound: domain.LobbyIndex,
			TestStarted:  false,
			CreatedAt:    s.now(),
		}
		err := s.store.CreateClassroom(ctx, classroom)
		if err == nil {
			break
		}
		if errors.Is(err, ErrJoinCodeTaken) && attempt < joinCodeAttempts {
			continue
		}
		return domain.Classroom{}, domain.Participant{}, fmt.Errorf("create classroom: %w", err)
	}

	teacher := domain.Participant{
		ID:          uuid.NewString(),
		ClassroomID: classroom.ID,
		Name:        teacherName,
		Role:        domain.RoleTeacher,
		JoinedAt:    s.now(),
	}
	if err := s.store.AddParticipant(ctx, teacher); err != nil {
		return domain.Classroom{}, domain.Participant{}, fmt.Errorf("add teacher: %w", err)
	}
	s.broadcast(classroom.ID, domain.Event{Entity: domain.EntityParticipant, Kind: domain.KindUpsert, Participant: &teacher})
	return classroom, teacher, nil
}

// Join resolves a join code and registers a student participant. Unknown
// codes create nothing. Students joining without a name get one assigned.
func (s *ClassroomService) Join(ctx context.Context, joinCode, name string) (domain.Classroom, domain.Participant, error) {
	classroom, err := s.store.ResolveJoinCode(ctx, joinCode)
	if err != nil {
		return domain.Classroom{}, domain.Participant{}, err
	}

	if name == "" {
		s.rndMu.Lock()
		name = domain.RandomDisplayName(s.rnd)
		s.rndMu.Unlock()
	}
	student := domain.Participant{
		ID:          uuid.NewString(),
		ClassroomID: classroom.ID,
		Name:        name,
		Role:        domain.RoleStudent,
		JoinedAt:    s.now(),
	}
	if err := s.store.AddParticipant(ctx, student); err != nil {
		return domain.Classroom{}, domain.Participant{}, fmt.Errorf("add participant: %w", err)
	}
	s.broadcast(classroom.ID, domain.Event{Entity: domain.EntityParticipant, Kind: domain.KindUpsert, Participant: &student})
	return classroom, student, nil
}

// StartGame moves a classroom from the lobby into round 0. Starting an
// already-started classroom is an invalid transition.
func (s *ClassroomService) StartGame(ctx context.Context, classroomID string) (domain.Classroom, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Classroom{}, err
	}
	if classroom.TestStarted {
		return domain.Classroom{}, domain.ErrInvalidTransition
	}

	first, err := s.catalog.GetByIndex(ctx, 0)
	if err != nil {
		return domain.Classroom{}, err
	}
	return s.transition(ctx, classroomID, domain.LobbyIndex, 0, first.ID, true)
}

// AdvanceRound moves the classroom from round fromIndex to the next one,
// or to the finished state past the end of the catalog. It is valid only
// once the current round is complete, and the transition is conditioned
// on the stored round still being fromIndex, so a duplicate retry loses
// the compare-and-set and is dropped with ErrInvalidTransition instead of
// skipping a round.
func (s *ClassroomService) AdvanceRound(ctx context.Context, classroomID string, fromIndex int) (domain.Classroom, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Classroom{}, err
	}
	if !classroom.TestStarted || fromIndex < 0 {
		return domain.Classroom{}, domain.ErrInvalidTransition
	}
	complete, err := s.IsRoundComplete(ctx, classroomID)
	if err != nil {
		return domain.Classroom{}, err
	}
	if !complete {
		return domain.Classroom{}, domain.ErrInvalidTransition
	}

	length, err := s.catalog.Len(ctx)
	if err != nil {
		return domain.Classroom{}, err
	}
	next := fromIndex + 1
	if next >= length {
		return s.transition(ctx, classroomID, fromIndex, domain.LobbyIndex, "", false)
	}
	exercise, err := s.catalog.GetByIndex(ctx, next)
	if err != nil {
		return domain.Classroom{}, err
	}
	return s.transition(ctx, classroomID, fromIndex, next, exercise.ID, true)
}

func (s *ClassroomService) transition(ctx context.Context, classroomID string, prev, next int, exerciseID string, started bool) (domain.Classroom, error) {
	applied, err := s.store.CompareAndSetRound(ctx, classroomID, prev, next, exerciseID, started)
	if err != nil {
		return domain.Classroom{}, fmt.Errorf("round transition: %w", err)
	}
	if !applied {
		return domain.Classroom{}, domain.ErrInvalidTransition
	}
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Classroom{}, err
	}
	s.broadcast(classroomID, domain.Event{Entity: domain.EntityClassroom, Kind: domain.KindUpsert, Classroom: &classroom})
	return classroom, nil
}

// CurrentExercise returns the exercise of the active round.
func (s *ClassroomService) CurrentExercise(ctx context.Context, classroomID string) (domain.Exercise, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Exercise{}, err
	}
	if !classroom.TestStarted {
		return domain.Exercise{}, domain.ErrInvalidTransition
	}
	return s.catalog.GetByIndex(ctx, classroom.CurrentRound)
}

// RoundState derives the coordinator state from the store. The round index
// accompanies active and scoring states; it is -1 otherwise.
func (s *ClassroomService) RoundState(ctx context.Context, classroomID string) (domain.RoundState, int, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return "", domain.LobbyIndex, err
	}
	if !classroom.TestStarted {
		scores, err := s.store.ListScores(ctx, classroomID)
		if err != nil {
			return "", domain.LobbyIndex, err
		}
		if len(scores) > 0 {
			return domain.StateFinished, domain.LobbyIndex, nil
		}
		return domain.StateLobby, domain.LobbyIndex, nil
	}
	complete, err := s.IsRoundComplete(ctx, classroomID)
	if err != nil {
		return "", domain.LobbyIndex, err
	}
	if complete {
		return domain.StateRoundScoring, classroom.CurrentRound, nil
	}
	return domain.StateRoundActive, classroom.CurrentRound, nil
}

// RecordSubmission turns a graded rule vector into a score row. Results
// for an exercise that is no longer the active round are discarded, and a
// second submission for the same (participant, exercise) pair is rejected
// without touching the first.
func (s *ClassroomService) RecordSubmission(ctx context.Context, classroomID, participantID, exerciseID string, results []domain.RuleResult, timeTaken int) (domain.Score, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Score{}, err
	}
	if !classroom.TestStarted {
		return domain.Score{}, domain.ErrStaleSubmission
	}
	exercise, err := s.catalog.GetByIndex(ctx, classroom.CurrentRound)
	if err != nil {
		return domain.Score{}, err
	}
	if exercise.ID != exerciseID {
		return domain.Score{}, domain.ErrStaleSubmission
	}
	if err := s.requireParticipant(ctx, classroomID, participantID); err != nil {
		return domain.Score{}, err
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	total := len(exercise.Rules)
	if passed > total {
		passed = total
	}
	score := domain.Score{
		ID:            uuid.NewString(),
		ClassroomID:   classroomID,
		ParticipantID: participantID,
		ExerciseID:    exerciseID,
		Score:         passed,
		Total:         total,
		TimeTaken:     timeTaken,
		Results:       results,
		CompletedAt:   s.now(),
	}
	if err := s.store.InsertScore(ctx, score); err != nil {
		return domain.Score{}, err
	}
	s.broadcast(classroomID, domain.Event{Entity: domain.EntityScore, Kind: domain.KindUpsert, Score: &score})
	return score, nil
}

// IsRoundComplete reports whether every current student has a score for
// the active exercise. It recomputes from the store on every call so that
// students joining mid-round are counted. A round with no students is
// vacuously complete, so a teacher-only classroom can still advance.
func (s *ClassroomService) IsRoundComplete(ctx context.Context, classroomID string) (bool, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return false, err
	}
	if !classroom.TestStarted {
		return false, nil
	}
	exercise, err := s.catalog.GetByIndex(ctx, classroom.CurrentRound)
	if err != nil {
		return false, err
	}

	participants, err := s.store.ListParticipants(ctx, classroomID)
	if err != nil {
		return false, err
	}
	scores, err := s.store.ListScores(ctx, classroomID)
	if err != nil {
		return false, err
	}

	submitted := make(map[string]bool)
	for _, sc := range scores {
		if sc.ExerciseID == exercise.ID {
			submitted[sc.ParticipantID] = true
		}
	}
	for _, p := range participants {
		if p.Role != domain.RoleStudent {
			continue
		}
		if !submitted[p.ID] {
			return false, nil
		}
	}
	return true, nil
}

// Leaderboard sums each student's scores and times across all rounds.
// Ordering is total score descending, then total time ascending; entries
// tied on both share a rank.
func (s *ClassroomService) Leaderboard(ctx context.Context, classroomID string) (domain.Leaderboard, error) {
	if _, err := s.store.GetClassroom(ctx, classroomID); err != nil {
		return domain.Leaderboard{}, err
	}
	participants, err := s.store.ListParticipants(ctx, classroomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	scores, err := s.store.ListScores(ctx, classroomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	byID := make(map[string]*domain.LeaderboardEntry, len(participants))
	for _, p := range participants {
		if p.Role != domain.RoleStudent {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{ParticipantID: p.ID, Name: p.Name})
		byID[p.ID] = &entries[len(entries)-1]
	}
	for _, sc := range scores {
		entry, ok := byID[sc.ParticipantID]
		if !ok {
			continue
		}
		entry.TotalScore += sc.Score
		entry.TotalTime += sc.TimeTaken
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].TotalTime != entries[j].TotalTime {
			return entries[i].TotalTime < entries[j].TotalTime
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		if i > 0 && entries[i].TotalScore == entries[i-1].TotalScore && entries[i].TotalTime == entries[i-1].TotalTime {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}

	return domain.Leaderboard{
		ClassroomID: classroomID,
		Entries:     entries,
		UpdatedAt:   s.now(),
	}, nil
}

// Subscribe registers for the classroom's change stream. The returned
// snapshot reflects the store at subscription time; clients apply it
// before any incremental events. The cancel func must be called to avoid
// leaks.
func (s *ClassroomService) Subscribe(ctx context.Context, classroomID string) (domain.Snapshot, <-chan domain.Event, func(), error) {
	snapshot, err := s.snapshot(ctx, classroomID)
	if err != nil {
		return domain.Snapshot{}, nil, nil, err
	}
	ch, cancel := s.getSession(classroomID).subscribe()
	return snapshot, ch, cancel, nil
}

func (s *ClassroomService) snapshot(ctx context.Context, classroomID string) (domain.Snapshot, error) {
	classroom, err := s.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	participants, err := s.store.ListParticipants(ctx, classroomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	scores, err := s.store.ListScores(ctx, classroomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	state, index, err := s.RoundState(ctx, classroomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Classroom:    classroom,
		Participants: participants,
		Scores:       scores,
		State:        state,
		RoundIndex:   index,
	}, nil
}

func (s *ClassroomService) requireParticipant(ctx context.Context, classroomID, participantID string) error {
	participants, err := s.store.ListParticipants(ctx, classroomID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.ID == participantID {
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (s *ClassroomService) getSession(classroomID string) *session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[classroomID]
	if !ok {
		sess = newSession(classroomID)
		s.sessions[classroomID] = sess
	}
	return sess
}

func (s *ClassroomService) broadcast(classroomID string, ev domain.Event) {
	s.getSession(classroomID).broadcast(ev)
}

func (s *ClassroomService) nextJoinCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return domain.NewJoinCode(s.rnd)
}
