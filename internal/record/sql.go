package record

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SQL persists records in Postgres (pgx) or SQLite.
type SQL struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name    string
	schema  string
	bindvar func(i int) string
}

var postgresDialect = dialect{
	name: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS students (
		id          TEXT PRIMARY KEY,
		school_name TEXT NOT NULL,
		class_name  TEXT NOT NULL,
		section     TEXT NOT NULL,
		name        TEXT NOT NULL,
		roll_number TEXT NOT NULL,
		department  TEXT NOT NULL,
		year        TEXT NOT NULL,
		image_url   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_students_school  ON students(school_name);
	CREATE INDEX IF NOT EXISTS idx_students_created ON students(created_at);
	`,
	bindvar: func(i int) string { return fmt.Sprintf("$%d", i) },
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS students (
		id          TEXT PRIMARY KEY,
		school_name TEXT NOT NULL,
		class_name  TEXT NOT NULL,
		section     TEXT NOT NULL,
		name        TEXT NOT NULL,
		roll_number TEXT NOT NULL,
		department  TEXT NOT NULL,
		year        TEXT NOT NULL,
		image_url   TEXT,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_students_school  ON students(school_name);
	CREATE INDEX IF NOT EXISTS idx_students_created ON students(created_at);
	`,
	bindvar: func(int) string { return "?" },
}

// NewPostgres wraps a pgx-backed *sql.DB.
func NewPostgres(db *sql.DB) *SQL {
	return &SQL{db: db, dialect: postgresDialect}
}

// NewSQLite wraps a go-sqlite3 *sql.DB.
func NewSQLite(db *sql.DB) *SQL {
	return &SQL{db: db, dialect: sqliteDialect}
}

// Migrate creates the students table when missing.
func (r *SQL) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.schema); err != nil {
		return fmt.Errorf("%s: migrate: %w", r.dialect.name, err)
	}
	return nil
}

// Ping checks the connection.
func (r *SQL) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const studentColumns = "id, school_name, class_name, section, name, roll_number, department, year, image_url, created_at"

// Insert writes a new record.
func (r *SQL) Insert(ctx context.Context, s Student) (Student, error) {
	if err := s.Validate(); err != nil {
		return Student{}, err
	}
	s = stamp(s)
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	binds := make([]string, 10)
	for i := range binds {
		binds[i] = r.dialect.bindvar(i + 1)
	}
	query := "INSERT INTO students (" + studentColumns + ") VALUES (" + strings.Join(binds, ", ") + ")"
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.SchoolName, s.ClassName, s.Section, s.Name, s.RollNumber, s.Department, s.Year, nullable(s.ImageURL), s.CreatedAt)
	if err != nil {
		return Student{}, fmt.Errorf("%s: insert student: %w", r.dialect.name, err)
	}
	return s, nil
}

// ListAll returns every record, oldest first.
func (r *SQL) ListAll(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("%s: list students: %w", r.dialect.name, err)
	}
	defer rows.Close()

	res := make([]Student, 0)
	for rows.Next() {
		var s Student
		var image sql.NullString
		if err := rows.Scan(&s.ID, &s.SchoolName, &s.ClassName, &s.Section, &s.Name, &s.RollNumber, &s.Department, &s.Year, &image, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan student: %w", r.dialect.name, err)
		}
		if image.Valid {
			url := image.String
			s.ImageURL = &url
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
