// Package domain holds the types and ports shared by Kestrel's packages.
package domain

import (
	"context"
	"time"
)

// Repository persists student records and advisory rules. Every row
// belongs to one tenant and is invisible to the others.
type Repository interface {
	// SaveStudent inserts or replaces a record, keeping its CreatedAt.
	SaveStudent(ctx context.Context, tenantID string, s *Student) error
	GetStudent(ctx context.Context, tenantID string, studentID string) (*Student, error)
	ListStudents(ctx context.Context, tenantID string, filter StudentFilter) ([]*Student, error)
	DeleteStudent(ctx context.Context, tenantID string, studentID string) error

	// ImportStudents saves a batch atomically and returns how many rows
	// were written.
	ImportStudents(ctx context.Context, tenantID string, students []*Student) (int, error)

	SaveAdvisoryRule(ctx context.Context, tenantID string, rule *AdvisoryRule) error
	GetAdvisoryRule(ctx context.Context, tenantID string, ruleID string) (*AdvisoryRule, error)
	ListAdvisoryRules(ctx context.Context, tenantID string) ([]*AdvisoryRule, error)

	Ping(ctx context.Context) error
	Close() error
}

// StudentFilter narrows ListStudents. Zero fields do not filter.
type StudentFilter struct {
	UniversityID string
	Limit        int
	Offset       int
}

// RepositoryConfig selects the SQL backend.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	SQLitePath string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GlobalTenantID owns the advisories shared by all tenants. It cannot be
// used as a request tenant.
const GlobalTenantID = "*"
