package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
)

// pgUniqueViolation is the Postgres error code for unique constraint hits.
const pgUniqueViolation = "23505"

// Store is the Postgres implementation of app.ClassroomStore. Round
// transitions are conditioned on the stored round value, so concurrent
// advances race on the row and exactly one wins.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateClassroom(ctx context.Context, c domain.Classroom) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO classrooms (id, join_code, current_exercise_id, test_started, current_round, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`,
		c.ID, c.JoinCode, c.CurrentExercise, c.TestStarted, c.CurrentRound, c.CreatedAt)
	if isUniqueViolation(err) {
		return app.ErrJoinCodeTaken
	}
	if err != nil {
		return storeErr("insert classroom", err)
	}
	return nil
}

func (s *Store) GetClassroom(ctx context.Context, id string) (domain.Classroom, error) {
	return s.scanClassroom(ctx,
		`SELECT id, join_code, COALESCE(current_exercise_id, ''), test_started, current_round, created_at
		 FROM classrooms WHERE id = $1`, id)
}

func (s *Store) ResolveJoinCode(ctx context.Context, code string) (domain.Classroom, error) {
	return s.scanClassroom(ctx,
		`SELECT id, join_code, COALESCE(current_exercise_id, ''), test_started, current_round, created_at
		 FROM classrooms WHERE join_code = $1`, code)
}

func (s *Store) scanClassroom(ctx context.Context, query, arg string) (domain.Classroom, error) {
	var c domain.Classroom
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&c.ID, &c.JoinCode, &c.CurrentExercise, &c.TestStarted, &c.CurrentRound, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Classroom{}, domain.ErrClassroomNotFound
	}
	if err != nil {
		return domain.Classroom{}, storeErr("load classroom", err)
	}
	return c, nil
}

func (s *Store) CompareAndSetRound(ctx context.Context, classroomID string, prevRound, nextRound int, exerciseID string, started bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE classrooms
		 SET current_round = $1, current_exercise_id = NULLIF($2, ''), test_started = $3
		 WHERE id = $4 AND current_round = $5`,
		nextRound, exerciseID, started, classroomID, prevRound)
	if err != nil {
		return false, storeErr("cas round", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, classroom_id, name, role, finished, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.ClassroomID, p.Name, string(p.Role), p.Finished, p.JoinedAt)
	if err != nil {
		return storeErr("insert participant", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, classroomID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, classroom_id, name, role, finished, created_at
		 FROM participants WHERE classroom_id = $1 ORDER BY created_at, id`, classroomID)
	if err != nil {
		return nil, storeErr("list participants", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var role string
		if err := rows.Scan(&p.ID, &p.ClassroomID, &p.Name, &role, &p.Finished, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Role = domain.Role(role)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Store) InsertScore(ctx context.Context, score domain.Score) error {
	results, err := json.Marshal(score.Results)
	if err != nil {
		return fmt.Errorf("marshal rule results: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scores (id, exercise_id, participant_id, classroom_id, score, time_taken, results, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		score.ID, score.ExerciseID, score.ParticipantID, score.ClassroomID, score.Score, score.TimeTaken, string(results), score.CompletedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSubmission
	}
	if err != nil {
		return storeErr("insert score", err)
	}
	return nil
}

// ListScores joins exercises to recover each score's rule total, which is
// derived from the exercise's validation rules rather than stored.
func (s *Store) ListScores(ctx context.Context, classroomID string) ([]domain.Score, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sc.id, sc.exercise_id, sc.participant_id, sc.classroom_id, sc.score, sc.time_taken, sc.results, sc.completed_at,
		        COALESCE(jsonb_array_length(e.validation_rules), 0)
		 FROM scores sc
		 LEFT JOIN exercises e ON e.id = sc.exercise_id
		 WHERE sc.classroom_id = $1
		 ORDER BY sc.completed_at, sc.id`, classroomID)
	if err != nil {
		return nil, storeErr("list scores", err)
	}
	defer rows.Close()

	var scores []domain.Score
	for rows.Next() {
		var (
			sc      domain.Score
			results []byte
		)
		if err := rows.Scan(&sc.ID, &sc.ExerciseID, &sc.ParticipantID, &sc.ClassroomID, &sc.Score, &sc.TimeTaken, &results, &sc.CompletedAt, &sc.Total); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &sc.Results); err != nil {
				return nil, fmt.Errorf("unmarshal rule results for %s: %w", sc.ID, err)
			}
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
