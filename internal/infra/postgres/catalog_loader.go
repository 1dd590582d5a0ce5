package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"draw-class-service/internal/domain"
)

// catalogEpoch seeds the created_at of synced exercises. Row i gets
// epoch+i seconds, so catalog order survives the round trip through a
// schema that has no explicit position column.
const catalogEpoch = 1700000000

// CatalogLoader reads the exercise catalog from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]domain.Exercise, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, instructions, validation_rules
		 FROM exercises ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var exercises []domain.Exercise
	for rows.Next() {
		var (
			ex           domain.Exercise
			instructions []byte
			rules        []byte
		)
		if err := rows.Scan(&ex.ID, &ex.Name, &instructions, &rules); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		if err := json.Unmarshal(instructions, &ex.Instructions); err != nil {
			return nil, fmt.Errorf("unmarshal instructions for %s: %w", ex.ID, err)
		}
		if err := json.Unmarshal(rules, &ex.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules for %s: %w", ex.ID, err)
		}
		exercises = append(exercises, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exercises) == 0 {
		return nil, domain.ErrExerciseNotFound
	}
	return exercises, nil
}

// SyncCatalog upserts the exercise list into Postgres keyed by exercise
// id. It is idempotent and safe to run on every startup.
func SyncCatalog(ctx context.Context, pool *pgxpool.Pool, exercises []domain.Exercise) error {
	for i, ex := range exercises {
		instructions, err := json.Marshal(ex.Instructions)
		if err != nil {
			return fmt.Errorf("marshal instructions for %s: %w", ex.ID, err)
		}
		rules, err := json.Marshal(ex.Rules)
		if err != nil {
			return fmt.Errorf("marshal rules for %s: %w", ex.ID, err)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO exercises (id, name, instructions, validation_rules, created_at)
			 VALUES ($1, $2, $3::jsonb, $4::jsonb, to_timestamp($5))
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name,
			     instructions = EXCLUDED.instructions,
			     validation_rules = EXCLUDED.validation_rules`,
			ex.ID, ex.Name, string(instructions), string(rules), catalogEpoch+i)
		if err != nil {
			return fmt.Errorf("upsert exercise %s: %w", ex.ID, err)
		}
	}
	return nil
}
