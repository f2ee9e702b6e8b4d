package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedDimension is returned by GetCostSummary for an unknown dimension.
	ErrUnsupportedDimension = errors.New("unsupported dimension")
)

// summaryDimensions maps user-facing dimension names to SQL columns. Only
// these identifiers are ever interpolated into queries.
var summaryDimensions = map[string]string{
	"user":     "user_id",
	"model":    "model",
	"provider": "provider",
	"kind":     "routing_kind",
	"variant":  "variant",
}

// Dimensions lists the accepted GetCostSummary dimensions.
func Dimensions() []string {
	return []string{"kind", "model", "provider", "user", "variant"}
}

const requestColumns = `id, user_id, variant, mode, routing_kind, provider, model,
	input_tokens, output_tokens, total_tokens, cost_usd,
	latency_ms, fallback_used, complexity, savings_usd, timestamp`

const budgetColumns = `id, scope, entity_id, limit_usd, spent_usd, period_days, created_at, updated_at`

func summaryQuery(dimension string) (string, error) {
	col, ok := summaryDimensions[dimension]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDimension, dimension)
	}
	// Aggregates are cast so they scan into plain Go numbers.
	return fmt.Sprintf(`
		SELECT
			'%s' AS dimension,
			%s AS dimension_id,
			COALESCE(SUM(cost_usd), 0)::DOUBLE PRECISION AS total_cost_usd,
			COUNT(*) AS total_requests,
			COALESCE(SUM(total_tokens), 0)::BIGINT AS total_tokens,
			COALESCE(AVG(latency_ms), 0)::DOUBLE PRECISION AS avg_latency_ms,
			COUNT(*) FILTER (WHERE fallback_used) AS fallback_count,
			COALESCE(SUM(savings_usd), 0)::DOUBLE PRECISION AS total_savings_usd
		FROM express_requests
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY %s
		ORDER BY total_cost_usd DESC
	`, dimension, col, col), nil
}

// InsertRequest stores a request record.
func (db *DB) InsertRequest(ctx context.Context, r *models.RequestRecord) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO express_requests (`+requestColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		r.ID, r.UserID, r.Variant, r.Mode, r.RoutingKind, string(r.Provider), r.Model,
		r.InputTokens, r.OutputTokens, r.TotalTokens, r.CostUSD,
		r.LatencyMs, r.FallbackUsed, r.Complexity, r.SavingsUSD, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// GetCostSummary returns aggregated cost data grouped by dimension.
func (db *DB) GetCostSummary(ctx context.Context, dimension string, from, to time.Time) ([]models.CostSummary, error) {
	query, err := summaryQuery(dimension)
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying cost summary: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CostSummary])
	if err != nil {
		return nil, fmt.Errorf("scanning cost summary: %w", err)
	}
	return out, nil
}

// GetRecentRequests returns the most recent limit request records.
func (db *DB) GetRecentRequests(ctx context.Context, limit int) ([]models.RequestRecord, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+requestColumns+` FROM express_requests ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent requests: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.RequestRecord])
	if err != nil {
		return nil, fmt.Errorf("scanning requests: %w", err)
	}
	return out, nil
}

// GetBudget retrieves a budget by scope and entity ID.
func (db *DB) GetBudget(ctx context.Context, scope, entityID string) (*models.Budget, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE scope = $1 AND entity_id = $2`, scope, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying budget: %w", err)
	}
	b, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.Budget])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning budget: %w", err)
	}
	return b, nil
}

// UpsertBudget creates or updates a budget. The current spend is kept on update.
func (db *DB) UpsertBudget(ctx context.Context, b *models.Budget) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO budgets (id, scope, entity_id, limit_usd, spent_usd, period_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, entity_id) DO UPDATE
		SET limit_usd = EXCLUDED.limit_usd,
		    period_days = EXCLUDED.period_days,
		    updated_at = NOW()
	`, b.ID, b.Scope, b.EntityID, b.LimitUSD, b.SpentUSD, b.PeriodDays)
	if err != nil {
		return fmt.Errorf("upserting budget: %w", err)
	}
	return nil
}

// ListBudgets returns all budgets, optionally filtered by scope.
func (db *DB) ListBudgets(ctx context.Context, scope string) ([]models.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets`
	var args []any
	if scope != "" {
		query += ` WHERE scope = $1`
		args = append(args, scope)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying budgets: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Budget])
	if err != nil {
		return nil, fmt.Errorf("scanning budgets: %w", err)
	}
	return out, nil
}

// DeleteBudget removes a budget by scope and entity ID.
func (db *DB) DeleteBudget(ctx context.Context, scope, entityID string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM budgets WHERE scope = $1 AND entity_id = $2`, scope, entityID); err != nil {
		return fmt.Errorf("deleting budget: %w", err)
	}
	return nil
}
