package nutrition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEntryNotFound  = errors.New("log entry not found")
	ErrGoalNotFound   = errors.New("goal not found")
	ErrInvalidEntry   = errors.New("log entry invalid")
	ErrInvalidMetric  = errors.New("body metric invalid")
	ErrInvalidGoal    = errors.New("goal invalid")
	ErrMetricNotFound = errors.New("body metric not found")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func validateEntry(entry *LogEntry) error {
	if entry.Food == "" || entry.Date.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}

func (r *Repo) AddEntry(ctx context.Context, entry *LogEntry) (*LogEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO nutrition_log
			(id, date, meal, food, description, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		entry.ID, entry.Date, entry.Meal, entry.Food, entry.Description,
		entry.Kcal, entry.Protein, entry.Fat, entry.Carbs,
		entry.AddedSugar, entry.Fiber, entry.Alcohol, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert log entry: %w", err)
	}

	return entry, nil
}

// AddEntries inserts a batch of entries in a single transaction. All or
// nothing: one bad entry fails the whole batch.
func (r *Repo) AddEntries(ctx context.Context, entries []*LogEntry) ([]*LogEntry, error) {
	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			return nil, err
		}
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, entry := range entries {
		entry.ID = uuid.New()
		entry.CreatedAt = now
		batch.Queue(
			`INSERT INTO nutrition_log
				(id, date, meal, food, description, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
			entry.ID, entry.Date, entry.Meal, entry.Food, entry.Description,
			entry.Kcal, entry.Protein, entry.Fat, entry.Carbs,
			entry.AddedSugar, entry.Fiber, entry.Alcohol, entry.CreatedAt,
		)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("batch insert log entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}

	return entries, nil
}

func (r *Repo) GetEntry(ctx context.Context, id uuid.UUID) (*LogEntry, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, date, meal, food, description, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at
		FROM nutrition_log WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}

	entry, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[LogEntry])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repo) UpdateEntry(ctx context.Context, entry *LogEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE nutrition_log SET
			date = $1, meal = $2, food = $3, description = $4,
			kcal = $5, protein = $6, fat = $7, carbs = $8,
			added_sugar = $9, fiber = $10, alcohol = $11
		WHERE id = $12;`,
		entry.Date, entry.Meal, entry.Food, entry.Description,
		entry.Kcal, entry.Protein, entry.Fat, entry.Carbs,
		entry.AddedSugar, entry.Fiber, entry.Alcohol, entry.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *Repo) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM nutrition_log WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *Repo) ListEntries(ctx context.Context, from, to time.Time) ([]LogEntry, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, date, meal, food, description, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at
		FROM nutrition_log
		WHERE date >= $1 AND date <= $2
		ORDER BY date, created_at;`,
		from, to,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByPos[LogEntry])
}

// Summaries aggregates entries per calendar day over the given range.
func (r *Repo) Summaries(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT
			date_trunc('day', date) AS day,
			count(*),
			coalesce(sum(kcal), 0),
			coalesce(sum(protein), 0),
			coalesce(sum(fat), 0),
			coalesce(sum(carbs), 0),
			coalesce(sum(added_sugar), 0),
			coalesce(sum(fiber), 0),
			coalesce(sum(alcohol), 0)
		FROM nutrition_log
		WHERE date >= $1 AND date <= $2
		GROUP BY day
		ORDER BY day;`,
		from, to,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByPos[DailySummary])
}

func (r *Repo) SetGoal(ctx context.Context, goal *Goal) (*Goal, error) {
	if goal.EffectiveFrom.IsZero() {
		return nil, ErrInvalidGoal
	}

	goal.ID = uuid.New()
	goal.CreatedAt = time.Now()

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO nutrition_goal
			(id, effective_from, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
		goal.ID, goal.EffectiveFrom,
		goal.Kcal, goal.Protein, goal.Fat, goal.Carbs,
		goal.AddedSugar, goal.Fiber, goal.Alcohol, goal.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}

	return goal, nil
}

func (r *Repo) ListGoals(ctx context.Context) ([]Goal, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, effective_from, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at
		FROM nutrition_goal
		ORDER BY effective_from DESC;`,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByPos[Goal])
}

// CurrentGoal returns the goal in effect at the given moment.
func (r *Repo) CurrentGoal(ctx context.Context, at time.Time) (*Goal, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, effective_from, kcal, protein, fat, carbs, added_sugar, fiber, alcohol, created_at
		FROM nutrition_goal
		WHERE effective_from <= $1
		ORDER BY effective_from DESC, created_at DESC
		LIMIT 1;`,
		at,
	)
	if err != nil {
		return nil, err
	}

	goal, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[Goal])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}
	return goal, nil
}

func (r *Repo) AddBodyMetric(ctx context.Context, metric *BodyMetric) (*BodyMetric, error) {
	if metric.Date.IsZero() || metric.WeightKg <= 0 {
		return nil, ErrInvalidMetric
	}

	metric.ID = uuid.New()
	metric.CreatedAt = time.Now()

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO body_metric (id, date, weight_kg, body_fat, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);`,
		metric.ID, metric.Date, metric.WeightKg, metric.BodyFat, metric.Notes, metric.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert body metric: %w", err)
	}

	return metric, nil
}

func (r *Repo) ListBodyMetrics(ctx context.Context, from, to time.Time) ([]BodyMetric, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, date, weight_kg, body_fat, notes, created_at
		FROM body_metric
		WHERE date >= $1 AND date <= $2
		ORDER BY date;`,
		from, to,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByPos[BodyMetric])
}
