package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"case-explainer/types"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GetApplication returns (nil, nil) when the case has no application row.
func (s *PostgresStore) GetApplication(ctx context.Context, caseID string) (*types.Application, error) {
	const query = `
		SELECT case_id, applicant_name, status, monthly_income, monthly_expenses, family_size,
		       employment_status, company_name, current_position, total_assets, total_liabilities,
		       credit_score, credit_rating, submission_date, updated_at
		FROM applications
		WHERE case_id = $1
	`
	var app types.Application
	var submitted, updated sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, caseID).Scan(
		&app.CaseID, &app.ApplicantName, &app.Status, &app.MonthlyIncome, &app.MonthlyExpenses,
		&app.FamilySize, &app.EmploymentStatus, &app.CompanyName, &app.CurrentPosition,
		&app.TotalAssets, &app.TotalLiabilities, &app.CreditScore, &app.CreditRating,
		&submitted, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch application %s: %w", caseID, err)
	}
	app.SubmittedAt = submitted.Time
	app.UpdatedAt = updated.Time
	return &app, nil
}

// GetDecision returns the most recent decision, or (nil, nil) if none was made yet.
func (s *PostgresStore) GetDecision(ctx context.Context, caseID string) (*types.Decision, error) {
	const query = `
		SELECT decision_id, case_id, decision, policy_score, priority, reasoning, support_type,
		       support_amount, duration_months, conditions, decision_date
		FROM decisions
		WHERE case_id = $1
		ORDER BY decision_date DESC
		LIMIT 1
	`
	var d types.Decision
	var conditions pq.StringArray
	var decided sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, caseID).Scan(
		&d.DecisionID, &d.CaseID, &d.Outcome, &d.PolicyScore, &d.Priority, &d.Reasoning,
		&d.SupportType, &d.SupportAmount, &d.DurationMonths, &conditions, &decided,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch decision for %s: %w", caseID, err)
	}
	d.Conditions = []string(conditions)
	d.DecidedAt = decided.Time
	return &d, nil
}

func (s *PostgresStore) GetLatestValidation(ctx context.Context, caseID string) (*types.Validation, error) {
	const query = `
		SELECT case_id, status, score, issues, validated_at
		FROM validations
		WHERE case_id = $1
		ORDER BY validated_at DESC
		LIMIT 1
	`
	var v types.Validation
	var issues pq.StringArray
	var validated sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, caseID).Scan(&v.CaseID, &v.Status, &v.Score, &issues, &validated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch validation for %s: %w", caseID, err)
	}
	v.Issues = []string(issues)
	v.ValidatedAt = validated.Time
	return &v, nil
}

// UpsertApplication inserts or replaces an application row. Used by seeding and tests.
func (s *PostgresStore) UpsertApplication(ctx context.Context, app types.Application) error {
	const query = `
		INSERT INTO applications (case_id, applicant_name, status, monthly_income, monthly_expenses,
		    family_size, employment_status, company_name, current_position, total_assets,
		    total_liabilities, credit_score, credit_rating, submission_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()), NOW())
		ON CONFLICT (case_id) DO UPDATE SET
		    applicant_name = EXCLUDED.applicant_name,
		    status = EXCLUDED.status,
		    monthly_income = EXCLUDED.monthly_income,
		    monthly_expenses = EXCLUDED.monthly_expenses,
		    family_size = EXCLUDED.family_size,
		    employment_status = EXCLUDED.employment_status,
		    company_name = EXCLUDED.company_name,
		    current_position = EXCLUDED.current_position,
		    total_assets = EXCLUDED.total_assets,
		    total_liabilities = EXCLUDED.total_liabilities,
		    credit_score = EXCLUDED.credit_score,
		    credit_rating = EXCLUDED.credit_rating,
		    updated_at = NOW()
	`
	var submitted sql.NullTime
	if !app.SubmittedAt.IsZero() {
		submitted = sql.NullTime{Time: app.SubmittedAt, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, query,
		app.CaseID, app.ApplicantName, app.Status, app.MonthlyIncome, app.MonthlyExpenses,
		app.FamilySize, app.EmploymentStatus, app.CompanyName, app.CurrentPosition, app.TotalAssets,
		app.TotalLiabilities, app.CreditScore, app.CreditRating, submitted,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert application %s: %w", app.CaseID, err)
	}
	return nil
}

func (s *PostgresStore) InsertDecision(ctx context.Context, d types.Decision) error {
	if d.DecisionID == "" {
		d.DecisionID = "DEC_" + d.CaseID
	}
	const query = `
		INSERT INTO decisions (decision_id, case_id, decision, policy_score, priority, reasoning,
		    support_type, support_amount, duration_months, conditions, decision_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (decision_id) DO NOTHING
	`
	_, err := s.DB.ExecContext(ctx, query, d.DecisionID, d.CaseID, d.Outcome, d.PolicyScore, d.Priority,
		d.Reasoning, d.SupportType, d.SupportAmount, d.DurationMonths, pq.Array(d.Conditions))
	if err != nil {
		return fmt.Errorf("failed to insert decision for %s: %w", d.CaseID, err)
	}
	return nil
}

func (s *PostgresStore) InsertValidation(ctx context.Context, v types.Validation) error {
	const query = `
		INSERT INTO validations (id, case_id, status, score, issues, validated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := s.DB.ExecContext(ctx, query, uuid.New(), v.CaseID, v.Status, v.Score, pq.Array(v.Issues))
	if err != nil {
		return fmt.Errorf("failed to insert validation for %s: %w", v.CaseID, err)
	}
	return nil
}
