package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresStore is the relational side of a case: applications, decisions,
// validations and the persisted conversation history.
type PostgresStore struct {
	DB     *sql.DB
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Successfully connected to the database")
	return &PostgresStore{DB: db, logger: logger}, nil
}

// EnsureSchema creates the relational and vector tables if they do not already exist.
// dims is the embedding width of the case_embeddings column.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS applications (
            case_id TEXT PRIMARY KEY,
            applicant_name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'SUBMITTED',
            monthly_income DOUBLE PRECISION NOT NULL DEFAULT 0,
            monthly_expenses DOUBLE PRECISION NOT NULL DEFAULT 0,
            family_size INTEGER NOT NULL DEFAULT 0,
            employment_status TEXT NOT NULL DEFAULT '',
            company_name TEXT NOT NULL DEFAULT '',
            current_position TEXT NOT NULL DEFAULT '',
            total_assets DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_liabilities DOUBLE PRECISION NOT NULL DEFAULT 0,
            credit_score INTEGER NOT NULL DEFAULT 0,
            credit_rating TEXT NOT NULL DEFAULT '',
            submission_date TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS decisions (
            decision_id TEXT PRIMARY KEY,
            case_id TEXT NOT NULL REFERENCES applications(case_id) ON DELETE CASCADE,
            decision TEXT NOT NULL,
            policy_score DOUBLE PRECISION NOT NULL DEFAULT 0,
            priority TEXT NOT NULL DEFAULT '',
            reasoning TEXT NOT NULL DEFAULT '',
            support_type TEXT NOT NULL DEFAULT '',
            support_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
            duration_months INTEGER NOT NULL DEFAULT 0,
            conditions TEXT[] DEFAULT '{}'::TEXT[],
            decision_date TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_case_date ON decisions(case_id, decision_date DESC)`,
		`CREATE TABLE IF NOT EXISTS validations (
            id UUID PRIMARY KEY,
            case_id TEXT NOT NULL REFERENCES applications(case_id) ON DELETE CASCADE,
            status TEXT NOT NULL,
            score DOUBLE PRECISION NOT NULL DEFAULT 0,
            issues TEXT[] DEFAULT '{}'::TEXT[],
            validated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_validations_case_date ON validations(case_id, validated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            case_id TEXT NOT NULL,
            question TEXT NOT NULL,
            answer TEXT NOT NULL,
            confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
            cached BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_case_created_at ON conversations(case_id, created_at DESC)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS case_embeddings (
            case_id TEXT PRIMARY KEY,
            document TEXT NOT NULL,
            metadata JSONB DEFAULT '{}'::jsonb,
            embedding vector(%d) NOT NULL,
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`, dims),
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
