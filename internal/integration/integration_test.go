package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"draw-class-service/internal/app"
	"draw-class-service/internal/domain"
	pgstore "draw-class-service/internal/infra/postgres"
	pgmigrations "draw-class-service/internal/infra/postgres/migrations"
	infraredis "draw-class-service/internal/infra/redis"
)

func TestClassroomFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	if err := pgstore.SyncCatalog(ctx, pool, domain.BuiltinExercises()); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	loader := pgstore.NewCatalogLoader(pool)
	catalog := infraredis.NewCatalogRepository(redisClient, loader, 5*time.Minute)
	store := infraredis.NewClassroomStore(pgstore.NewStore(pool), redisClient, 5*time.Minute)
	service := app.NewClassroomService(store, catalog)

	classroom, teacher, err := service.CreateClassroom(ctx, "Ms. Frizzle")
	if err != nil {
		t.Fatalf("create classroom: %v", err)
	}
	if teacher.Role != domain.RoleTeacher {
		t.Fatalf("expected teacher role, got %q", teacher.Role)
	}

	_, alice, err := service.Join(ctx, classroom.JoinCode, "Alice")
	if err != nil {
		t.Fatalf("alice join: %v", err)
	}
	_, bob, err := service.Join(ctx, classroom.JoinCode, "Bob")
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}

	if _, err := service.StartGame(ctx, classroom.ID); err != nil {
		t.Fatalf("start game: %v", err)
	}
	exercise, err := service.CurrentExercise(ctx, classroom.ID)
	if err != nil {
		t.Fatalf("current exercise: %v", err)
	}
	if exercise.ID != "snowman" {
		t.Fatalf("expected first catalog exercise, got %q", exercise.ID)
	}

	submit(t, ctx, service, classroom.ID, alice.ID, exercise, 12, true)
	complete, err := service.IsRoundComplete(ctx, classroom.ID)
	if err != nil || complete {
		t.Fatalf("round should wait for bob, got complete=%v err=%v", complete, err)
	}
	submit(t, ctx, service, classroom.ID, bob.ID, exercise, 20, false)
	complete, err = service.IsRoundComplete(ctx, classroom.ID)
	if err != nil || !complete {
		t.Fatalf("round should be complete, got complete=%v err=%v", complete, err)
	}

	next, err := service.AdvanceRound(ctx, classroom.ID, 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if next.CurrentRound != 1 || next.CurrentExercise != "house" {
		t.Fatalf("unexpected next round %+v", next)
	}
	// A concurrent retry of the same advance must be dropped.
	if _, err := service.AdvanceRound(ctx, classroom.ID, 0); err == nil {
		t.Fatalf("expected stale advance to fail")
	}

	// Per-rule results survive the round trip through postgres.
	scores, err := store.ListScores(ctx, classroom.ID)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected two scores, got %+v", scores)
	}
	for _, sc := range scores {
		if len(sc.Results) != len(exercise.Rules) || sc.Total != len(exercise.Rules) {
			t.Fatalf("expected %d rule results on score %s, got %+v", len(exercise.Rules), sc.ID, sc)
		}
	}

	lb, err := service.Leaderboard(ctx, classroom.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected two students on the board, got %+v", lb.Entries)
	}
	if lb.Entries[0].ParticipantID != alice.ID || lb.Entries[0].Rank != 1 {
		t.Fatalf("expected alice leading, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].ParticipantID != bob.ID || lb.Entries[1].Rank != 2 {
		t.Fatalf("expected bob second, got %+v", lb.Entries[1])
	}
}

// submit grades every rule of the exercise as passed or failed and
// records the result.
func submit(t *testing.T, ctx context.Context, service *app.ClassroomService, classroomID, participantID string, ex domain.Exercise, timeTaken int, allPass bool) {
	t.Helper()
	results := make([]domain.RuleResult, len(ex.Rules))
	for i, rule := range ex.Rules {
		results[i] = domain.RuleResult{Rule: rule.Label, Passed: allPass}
	}
	if _, err := service.RecordSubmission(ctx, classroomID, participantID, ex.ID, results, timeTaken); err != nil {
		t.Fatalf("record submission for %s: %v", participantID, err)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "draw", "POSTGRES_PASSWORD": "drawpass", "POSTGRES_DB": "drawdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://draw:drawpass@%s:%s/drawdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
