package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists decision results to the decision_log table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the decision_log table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decision_log (
			id           VARCHAR(40) PRIMARY KEY,
			identity     VARCHAR(42) NOT NULL,
			verdict      VARCHAR(10) NOT NULL,
			confidence   DOUBLE PRECISION NOT NULL,
			risk_tier    VARCHAR(10) NOT NULL,
			reasoning    JSONB NOT NULL,
			summary      TEXT NOT NULL,
			suggestions  JSONB,
			evaluated_at TIMESTAMPTZ NOT NULL,
			duration_ms  BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decision_log_identity
			ON decision_log(identity, evaluated_at DESC);
	`)
	return err
}

func (p *PostgresStore) Record(ctx context.Context, result *Result) error {
	reasoning, err := json.Marshal(result.Reasoning)
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(result.Suggestions)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO decision_log
			(id, identity, verdict, confidence, risk_tier, reasoning, summary,
			 suggestions, evaluated_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.ID, result.Identity, result.Verdict, result.Confidence,
		result.RiskTier, reasoning, result.Summary, suggestions,
		result.EvaluatedAt, result.DurationMs)
	return err
}

func (p *PostgresStore) ListByIdentity(ctx context.Context, identity string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, identity, verdict, confidence, risk_tier, reasoning,
		       summary, suggestions, evaluated_at, duration_ms
		FROM decision_log
		WHERE identity = $1
		ORDER BY evaluated_at DESC
		LIMIT $2`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var (
			r           Result
			reasoning   []byte
			suggestions []byte
			evaluatedAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.Identity, &r.Verdict, &r.Confidence,
			&r.RiskTier, &reasoning, &r.Summary, &suggestions,
			&evaluatedAt, &r.DurationMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reasoning, &r.Reasoning); err != nil {
			return nil, err
		}
		if len(suggestions) > 0 {
			if err := json.Unmarshal(suggestions, &r.Suggestions); err != nil {
				return nil, err
			}
		}
		r.EvaluatedAt = evaluatedAt
		out = append(out, &r)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
