// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// openTimeout bounds the initial connection in New.
const openTimeout = 30 * time.Second

// New opens the configured database and applies pending migrations.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(ctx, cfg)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

const upsertStudent = `
	INSERT INTO students (
		id, tenant_id, university_id, gpa, cca, attendance,
		midterm, final_exam, label, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tenant_id, id) DO UPDATE SET
		university_id = excluded.university_id,
		gpa = excluded.gpa,
		cca = excluded.cca,
		attendance = excluded.attendance,
		midterm = excluded.midterm,
		final_exam = excluded.final_exam,
		label = excluded.label,
		updated_at = excluded.updated_at
`

const selectStudent = `
	SELECT id, tenant_id, university_id, gpa, cca, attendance,
		   midterm, final_exam, label, created_at, updated_at
	FROM students
`

// SaveStudent creates or replaces a student record. CreatedAt is kept on
// replace; UpdatedAt is always refreshed.
func (r *SQLRepository) SaveStudent(ctx context.Context, tenantID string, s *domain.Student) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	r.stamp(tenantID, s)

	_, err := r.db.ExecContext(ctx, r.rebind(upsertStudent), studentArgs(s)...)
	return err
}

// GetStudent retrieves a student record with tenant isolation.
func (r *SQLRepository) GetStudent(ctx context.Context, tenantID string, studentID string) (*domain.Student, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectStudent + ` WHERE tenant_id = ? AND id = ?`

	s, err := scanStudent(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListStudents retrieves a tenant's students ordered by ID.
func (r *SQLRepository) ListStudents(ctx context.Context, tenantID string, filter domain.StudentFilter) ([]*domain.Student, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var b strings.Builder
	b.WriteString(selectStudent)
	b.WriteString(` WHERE tenant_id = ?`)
	args := []any{tenantID}

	if filter.UniversityID != "" {
		b.WriteString(` AND university_id = ?`)
		args = append(args, filter.UniversityID)
	}
	b.WriteString(` ORDER BY id`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ` + strconv.Itoa(filter.Limit))
		if filter.Offset > 0 {
			b.WriteString(` OFFSET ` + strconv.Itoa(filter.Offset))
		}
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*domain.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}

	return students, rows.Err()
}

// DeleteStudent removes a student record.
func (r *SQLRepository) DeleteStudent(ctx context.Context, tenantID string, studentID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM students WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, studentID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ImportStudents upserts a batch in one transaction. Either every record
// is stored or none is.
func (r *SQLRepository) ImportStudents(ctx context.Context, tenantID string, students []*domain.Student) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	for i, s := range students {
		if err := s.Validate(); err != nil {
			return 0, fmt.Errorf("%w: record %d (%s): %v", ErrInvalidInput, i+1, s.ID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(upsertStudent))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, s := range students {
		r.stamp(tenantID, s)
		if _, err := stmt.ExecContext(ctx, studentArgs(s)...); err != nil {
			return 0, fmt.Errorf("import %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(students), nil
}

func (r *SQLRepository) stamp(tenantID string, s *domain.Student) {
	now := time.Now().UTC()
	s.TenantID = tenantID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

func studentArgs(s *domain.Student) []any {
	return []any{
		s.ID, s.TenantID, s.UniversityID,
		s.GPA, s.CCA, s.Attendance,
		s.Midterm, s.FinalExam, s.Label.String(),
		s.CreatedAt, s.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*domain.Student, error) {
	var s domain.Student
	var label string

	if err := row.Scan(
		&s.ID, &s.TenantID, &s.UniversityID,
		&s.GPA, &s.CCA, &s.Attendance,
		&s.Midterm, &s.FinalExam, &label,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if label != "" {
		c, err := fuzzy.ParseCategory(label)
		if err != nil {
			return nil, fmt.Errorf("student %s: %w", s.ID, err)
		}
		s.Label = c
	}
	return &s, nil
}

// SaveAdvisoryRule stores an advisory rule with tenant isolation.
func (r *SQLRepository) SaveAdvisoryRule(ctx context.Context, tenantID string, rule *domain.AdvisoryRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("%w: bands: %v", ErrInvalidInput, err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO advisory_rules (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetAdvisoryRule retrieves the latest enabled version of an advisory rule.
func (r *SQLRepository) GetAdvisoryRule(ctx context.Context, tenantID string, ruleID string) (*domain.AdvisoryRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM advisory_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := scanAdvisoryRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListAdvisoryRules retrieves all enabled advisory rules for a tenant.
func (r *SQLRepository) ListAdvisoryRules(ctx context.Context, tenantID string) ([]*domain.AdvisoryRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM advisory_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AdvisoryRule
	for rows.Next() {
		rule, err := scanAdvisoryRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func scanAdvisoryRule(row rowScanner) (*domain.AdvisoryRule, error) {
	var rule domain.AdvisoryRule
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &bands, &rule.Weight, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &rule.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for advisory rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
